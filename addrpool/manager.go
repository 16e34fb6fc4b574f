//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package addrpool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/joshuapare/superpool/internal/addr"
	"github.com/joshuapare/superpool/internal/check"
	"github.com/joshuapare/superpool/internal/logger"
)

// ExhaustionFunc is called when Alloc finds no room in a pool, before the
// error is returned. It runs on the allocating goroutine without any manager
// or pool lock held.
type ExhaustionFunc func(h Handle, size uintptr)

// Manager maps handles to pools and routes Alloc and Free to them.
type Manager struct {
	unit uintptr

	mu sync.RWMutex
	// pools[i] is the pool for Handle(i+1), nil when the slot is free.
	pools       [NumPools]*pool
	onExhausted ExhaustionFunc
}

var (
	instance     *Manager
	instanceOnce sync.Once
)

// Instance returns the process-wide manager, creating it with DefaultConfig
// on first use.
func Instance() *Manager {
	instanceOnce.Do(func() {
		instance = New(nil)
	})
	return instance
}

// New creates a manager with no pools. A nil cfg means DefaultConfig.
func New(cfg *Config) *Manager {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	if !addr.IsPowerOfTwo(cfg.SuperPageSize) {
		check.Fail("super-page size %d is not a power of two", cfg.SuperPageSize)
	}
	return &Manager{unit: cfg.SuperPageSize}
}

// SuperPageSize returns the manager's allocation unit in bytes.
func (m *Manager) SuperPageSize() uintptr {
	return m.unit
}

// Add registers the reserved range [address, address+length) as a new pool
// and returns its handle. The range must be super-page aligned, must not
// overlap a registered pool, and a free slot must exist.
func (m *Manager) Add(address, length uintptr) Handle {
	p := newPool(address, length, m.unit)

	m.mu.Lock()
	defer m.mu.Unlock()

	slot := -1
	for i, other := range m.pools {
		switch {
		case other == nil:
			if slot < 0 {
				slot = i
			}
		case other.overlaps(p.begin, p.end):
			check.Fail("pool [%#x, %#x) overlaps registered pool [%#x, %#x)",
				p.begin, p.end, other.begin, other.end)
		}
	}
	if slot < 0 {
		check.Fail("all %d pool slots are in use", NumPools)
	}

	m.pools[slot] = p
	h := Handle(slot + 1)
	if logger.Enabled(slog.LevelDebug) {
		logger.Debug("pool added",
			"handle", h,
			"base", fmt.Sprintf("%#x", address),
			"size", humanize.IBytes(uint64(length)))
	}
	return h
}

// Remove unregisters the pool for h so its slot can be reused. Allocations
// still outstanding in the pool are not detected.
func (m *Manager) Remove(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.poolLocked(h)
	m.pools[h-1] = nil
	logger.Debug("pool removed", "handle", h)
}

// Alloc claims length bytes, a positive multiple of the super-page size,
// from the pool for h and returns the chunk's address. When the pool has no
// free run that large it returns an error wrapping ErrExhausted.
func (m *Manager) Alloc(h Handle, length uintptr) (uintptr, error) {
	p := m.pool(h)
	if chunk, ok := p.findChunk(length); ok {
		return chunk, nil
	}

	m.mu.RLock()
	fn := m.onExhausted
	m.mu.RUnlock()

	if logger.Enabled(slog.LevelWarn) {
		logger.Warn("pool exhausted", "handle", h, "size", humanize.IBytes(uint64(length)))
	}
	if fn != nil {
		fn(h, length)
	}
	st := p.stats()
	err := errors.Wrapf(ErrExhausted, "pool %d: allocating %s", h, humanize.IBytes(uint64(length)))
	return 0, errors.WithDetailf(err, "%d of %d super-pages free, largest free run %d",
		st.FreeUnits(), st.TotalUnits, st.LargestFreeRun)
}

// Free returns [ptr, ptr+length) to the pool for h. ptr and length must
// describe super-pages that are currently allocated, normally a chunk
// returned by Alloc with the same length.
func (m *Manager) Free(h Handle, ptr, length uintptr) {
	m.pool(h).freeChunk(ptr, length)
}

// Stats returns a snapshot of the pool for h.
func (m *Manager) Stats(h Handle) Stats {
	st := m.pool(h).stats()
	st.Handle = h
	return st
}

// Handles returns the handles of all registered pools in slot order.
func (m *Manager) Handles() []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hs []Handle
	for i, p := range m.pools {
		if p != nil {
			hs = append(hs, Handle(i+1))
		}
	}
	return hs
}

// Lookup returns the handle of the pool whose range contains address.
func (m *Manager) Lookup(address uintptr) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, p := range m.pools {
		if p != nil && p.contains(address) {
			return Handle(i + 1), true
		}
	}
	return InvalidHandle, false
}

// SetExhaustionCallback installs fn to be called whenever Alloc fails for
// lack of space. It may be set once; pass nil to clear it.
func (m *Manager) SetExhaustionCallback(fn ExhaustionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	check.DCheck(fn == nil || m.onExhausted == nil, "exhaustion callback already set")
	m.onExhausted = fn
}

// ResetForTesting drops every pool and the exhaustion callback, leaving the
// manager as New returned it.
func (m *Manager) ResetForTesting() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pools = [NumPools]*pool{}
	m.onExhausted = nil
	logger.Debug("pool manager reset")
}

func (m *Manager) pool(h Handle) *pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.poolLocked(h)
}

func (m *Manager) poolLocked(h Handle) *pool {
	if h == InvalidHandle || h > NumPools {
		check.Fail("invalid pool handle %d", h)
	}
	p := m.pools[h-1]
	if p == nil {
		check.Fail("pool handle %d is not registered", h)
	}
	return p
}
