//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package addrpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/superpool/internal/check"
)

const (
	// unit is the super-page size used by most tests.
	unit = uintptr(SuperPageSize)

	// testBase and otherBase are fake reserved ranges. The manager never
	// touches the memory, so they need not be mapped.
	testBase  = uintptr(0x10_0000_0000)
	otherBase = uintptr(0x20_0000_0000)
)

func newTestManager(t testing.TB) *Manager {
	t.Helper()
	return New(&Config{SuperPageSize: unit})
}

// requireCheckFailure runs fn and fails the test unless it panics with an
// assertion failure.
func requireCheckFailure(t testing.TB, fn func(), msgAndArgs ...any) {
	t.Helper()
	var v any
	func() {
		defer func() { v = recover() }()
		fn()
	}()
	require.NotNil(t, v, msgAndArgs...)
	require.True(t, check.IsFailure(v), "panic value %v is not an assertion failure", v)
}

// allocatedUnits returns the indexes of all set bits in p, for comparing
// bitmap states.
func allocatedUnits(p *pool) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var set []int
	for i := 0; i < p.totalBits; i++ {
		if p.bits.Test(i) {
			set = append(set, i)
		}
	}
	return set
}
