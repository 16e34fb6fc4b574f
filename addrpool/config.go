package addrpool

import "github.com/joshuapare/superpool/internal/bitset"

const (
	// SuperPageSize is the default allocation granularity (2 MiB).
	SuperPageSize = 1 << 21

	// MaxUnits is the number of super-pages one pool can track.
	MaxUnits = bitset.Capacity

	// NumPools is the number of pools a manager can hold at once.
	NumPools = 2
)

// Handle identifies a pool registered with a Manager.
type Handle uint32

// InvalidHandle is never returned by Add.
const InvalidHandle Handle = 0

// Config holds the manager's build-time parameters.
type Config struct {
	// SuperPageSize is the allocation unit in bytes. Must be a power of two.
	// Pool bases, pool lengths, chunk addresses and chunk sizes are all
	// multiples of it.
	SuperPageSize uintptr
}

// DefaultConfig is used by Instance and by New(nil).
var DefaultConfig = Config{
	SuperPageSize: SuperPageSize,
}

// MaxPoolSize returns the largest pool length, in bytes, a manager with
// this configuration accepts (16 GiB with the default super-page size).
func (c Config) MaxPoolSize() uint64 {
	return uint64(MaxUnits) * uint64(c.SuperPageSize)
}

// Stats is a point-in-time view of one pool.
type Stats struct {
	Handle         Handle
	Begin          uintptr // first address of the pool
	End            uintptr // first address past the pool
	UnitSize       uintptr
	TotalUnits     int
	AllocatedUnits int
	LargestFreeRun int // longest run of free super-pages
	Hint           int // bit index where the next search starts
}

// FreeUnits returns the number of super-pages not allocated.
func (s Stats) FreeUnits() int {
	return s.TotalUnits - s.AllocatedUnits
}
