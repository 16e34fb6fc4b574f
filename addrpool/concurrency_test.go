//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package addrpool

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// owners records which worker holds each unit of a pool.
type owners struct {
	mu    sync.Mutex
	base  uintptr
	units map[int]int
}

func (o *owners) claim(worker int, c chunk) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	first := int((c.addr - o.base) / unit)
	for u := first; u < first+int(c.size/unit); u++ {
		if prev, ok := o.units[u]; ok {
			return errors.Newf("unit %d given to worker %d while held by worker %d", u, worker, prev)
		}
		o.units[u] = worker
	}
	return nil
}

func (o *owners) release(c chunk) {
	o.mu.Lock()
	defer o.mu.Unlock()
	first := int((c.addr - o.base) / unit)
	for u := first; u < first+int(c.size/unit); u++ {
		delete(o.units, u)
	}
}

func Test_Concurrent_AllocFreeAcrossPools(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrency stress in short mode")
	}
	const (
		units   = 512
		workers = 8
		ops     = 2000
	)
	m := newTestManager(t)
	handles := []Handle{m.Add(testBase, units*unit), m.Add(otherBase, units*unit)}
	own := map[Handle]*owners{
		handles[0]: {base: testBase, units: map[int]int{}},
		handles[1]: {base: otherBase, units: map[int]int{}},
	}

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(w)))
			h := handles[w%len(handles)]
			var live []chunk
			for range ops {
				if len(live) > 0 && rng.Intn(2) == 0 {
					c := live[len(live)-1]
					live = live[:len(live)-1]
					own[h].release(c)
					m.Free(h, c.addr, c.size)
					continue
				}
				size := uintptr(1+rng.Intn(8)) * unit
				a, err := m.Alloc(h, size)
				if errors.Is(err, ErrExhausted) {
					continue
				}
				if err != nil {
					return err
				}
				c := chunk{a, size}
				if err := own[h].claim(w, c); err != nil {
					return err
				}
				live = append(live, c)
			}
			for _, c := range live {
				own[h].release(c)
				m.Free(h, c.addr, c.size)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, h := range handles {
		require.Zero(t, m.Stats(h).AllocatedUnits, "pool %d", h)
	}
}

func Test_Concurrent_LookupDuringAllocs(t *testing.T) {
	m := newTestManager(t)
	h := m.Add(testBase, 64*unit)

	var g errgroup.Group
	g.Go(func() error {
		for range 1000 {
			a, err := m.Alloc(h, unit)
			if err != nil {
				return err
			}
			m.Free(h, a, unit)
		}
		return nil
	})
	g.Go(func() error {
		for range 1000 {
			if got, ok := m.Lookup(testBase); !ok || got != h {
				return errors.Newf("lookup returned %d, %v", got, ok)
			}
			_ = m.Handles()
		}
		return nil
	})
	require.NoError(t, g.Wait())
}
