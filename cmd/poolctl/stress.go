//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	sigar "github.com/cloudfoundry/gosigar"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/superpool/addrpool"
	"github.com/joshuapare/superpool/internal/reserve"
)

type stressOptions struct {
	pools    int
	size     string
	workers  int
	ops      int
	maxChunk int
	seed     int64
	touch    bool
}

var stressOpts stressOptions

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressOpts.pools, "pools", addrpool.NumPools, "Number of pools to reserve and register")
	cmd.Flags().StringVar(&stressOpts.size, "size", "1GiB", "Size of each pool (e.g. 512MiB, 4GiB)")
	cmd.Flags().IntVar(&stressOpts.workers, "workers", 4, "Number of concurrent workers")
	cmd.Flags().IntVar(&stressOpts.ops, "ops", 10000, "Operations per worker")
	cmd.Flags().IntVar(&stressOpts.maxChunk, "max-chunk", 8, "Largest request, in super-pages")
	cmd.Flags().Int64Var(&stressOpts.seed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&stressOpts.touch, "touch", false, "Commit and write every chunk before freeing it")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrent alloc/free workload",
		Long: `The stress command reserves address space for each pool, registers it
with the pool manager and runs workers that allocate and free random chunk
sizes. Every chunk is checked against the chunks other workers hold, and
after the run every pool must be empty again.

Example:
  poolctl stress
  poolctl stress --pools 1 --size 256MiB --workers 8 --touch
  poolctl stress --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.OutOrStdout(), stressOpts)
		},
	}
}

// PoolReport summarises one pool after a stress run.
type PoolReport struct {
	Handle         addrpool.Handle `json:"handle"`
	Base           string          `json:"base"`
	Size           uint64          `json:"size"`
	Units          int             `json:"units"`
	PeakAllocated  int64           `json:"peak_allocated_units"`
	LargestFreeRun int             `json:"largest_free_run"`
}

// StressReport is the result of a stress run.
type StressReport struct {
	Pools     []PoolReport  `json:"pools"`
	Allocs    int64         `json:"allocs"`
	Frees     int64         `json:"frees"`
	Exhausted int64         `json:"exhausted"`
	Duration  time.Duration `json:"duration_ns"`

	// Process memory from the OS, zero when unavailable.
	VirtualBefore uint64 `json:"virtual_before,omitempty"`
	VirtualAfter  uint64 `json:"virtual_after,omitempty"`
	ResidentAfter uint64 `json:"resident_after,omitempty"`
}

// stressPool is one registered pool and its overlap tracker.
type stressPool struct {
	h      addrpool.Handle
	region *reserve.Region
	unit   uintptr

	mu    sync.Mutex
	owner map[uintptr]int // super-page index -> worker holding it
	inUse int64
	peak  int64
}

func (p *stressPool) claim(worker int, a, size uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	first := (a - p.region.Base) / p.unit
	n := size / p.unit
	for u := first; u < first+n; u++ {
		if prev, ok := p.owner[u]; ok {
			return errors.AssertionFailedf("pool %d: super-page %d handed to worker %d while held by worker %d",
				p.h, u, worker, prev)
		}
		p.owner[u] = worker
	}
	p.inUse += int64(n)
	p.peak = max(p.peak, p.inUse)
	return nil
}

func (p *stressPool) release(a, size uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	first := (a - p.region.Base) / p.unit
	n := size / p.unit
	for u := first; u < first+n; u++ {
		delete(p.owner, u)
	}
	p.inUse -= int64(n)
}

type liveChunk struct {
	pool *stressPool
	addr uintptr
	size uintptr
}

func validateStressOptions(o stressOptions) (uint64, error) {
	if !addrpool.Supported {
		return 0, errors.New("the pool manager is not supported on this architecture")
	}
	if o.pools < 1 || o.pools > addrpool.NumPools {
		return 0, errors.Newf("--pools must be between 1 and %d", addrpool.NumPools)
	}
	if o.workers < 1 {
		return 0, errors.New("--workers must be at least 1")
	}
	if o.ops < 0 {
		return 0, errors.New("--ops must not be negative")
	}
	if o.maxChunk < 1 {
		return 0, errors.New("--max-chunk must be at least 1")
	}
	size, err := humanize.ParseBytes(o.size)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid --size %q", o.size)
	}
	cfg := addrpool.DefaultConfig
	if size == 0 || size%uint64(cfg.SuperPageSize) != 0 || size > cfg.MaxPoolSize() {
		return 0, errors.Newf("--size must be a multiple of %s up to %s",
			humanize.IBytes(uint64(cfg.SuperPageSize)), humanize.IBytes(cfg.MaxPoolSize()))
	}
	return size, nil
}

func processMemory() (sigar.ProcMem, bool) {
	var mem sigar.ProcMem
	if err := mem.Get(os.Getpid()); err != nil {
		return mem, false
	}
	return mem, true
}

func runStress(w io.Writer, o stressOptions) error {
	size, err := validateStressOptions(o)
	if err != nil {
		return err
	}

	m := addrpool.Instance()
	unit := m.SuperPageSize()
	var report StressReport
	if mem, ok := processMemory(); ok {
		report.VirtualBefore = mem.Size
	}

	pools := make([]*stressPool, 0, o.pools)
	for range o.pools {
		region, err := reserve.Reserve(uintptr(size), unit)
		if err != nil {
			return err
		}
		defer region.Release()

		h := m.Add(region.Base, region.Len)
		defer m.Remove(h)

		printVerbose(w, "Registered pool %d at %#x (%s)\n", h, region.Base, humanize.IBytes(size))
		pools = append(pools, &stressPool{h: h, region: region, unit: unit, owner: map[uintptr]int{}})
	}

	var allocs, frees, exhausted atomic.Int64
	m.SetExhaustionCallback(func(addrpool.Handle, uintptr) { exhausted.Add(1) })
	defer m.SetExhaustionCallback(nil)

	start := time.Now()
	var g errgroup.Group
	for worker := range o.workers {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(o.seed + int64(worker)))
			var live []liveChunk

			free := func(c liveChunk) error {
				if o.touch {
					if err := verifyChunk(c, worker); err != nil {
						return err
					}
					if err := c.pool.region.Decommit(c.addr, c.size); err != nil {
						return err
					}
				}
				c.pool.release(c.addr, c.size)
				m.Free(c.pool.h, c.addr, c.size)
				frees.Add(1)
				return nil
			}

			for range o.ops {
				if len(live) > 0 && rng.Intn(2) == 0 {
					i := rng.Intn(len(live))
					c := live[i]
					live[i] = live[len(live)-1]
					live = live[:len(live)-1]
					if err := free(c); err != nil {
						return err
					}
					continue
				}

				p := pools[rng.Intn(len(pools))]
				chunkSize := uintptr(1+rng.Intn(o.maxChunk)) * unit
				a, err := m.Alloc(p.h, chunkSize)
				if errors.Is(err, addrpool.ErrExhausted) {
					continue
				}
				if err != nil {
					return err
				}
				allocs.Add(1)
				if err := p.claim(worker, a, chunkSize); err != nil {
					return err
				}
				c := liveChunk{pool: p, addr: a, size: chunkSize}
				if o.touch {
					if err := stampChunk(c, worker); err != nil {
						return err
					}
				}
				live = append(live, c)
			}

			for _, c := range live {
				if err := free(c); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	report.Duration = time.Since(start)
	report.Allocs, report.Frees, report.Exhausted = allocs.Load(), frees.Load(), exhausted.Load()

	for _, p := range pools {
		st := m.Stats(p.h)
		if st.AllocatedUnits != 0 {
			return errors.AssertionFailedf("pool %d still has %d super-pages allocated after all frees",
				p.h, st.AllocatedUnits)
		}
		report.Pools = append(report.Pools, PoolReport{
			Handle:         p.h,
			Base:           fmt.Sprintf("%#x", st.Begin),
			Size:           uint64(st.End - st.Begin),
			Units:          st.TotalUnits,
			PeakAllocated:  p.peak,
			LargestFreeRun: st.LargestFreeRun,
		})
	}
	if mem, ok := processMemory(); ok {
		report.VirtualAfter = mem.Size
		report.ResidentAfter = mem.Resident
	}

	if jsonOut {
		return printJSON(w, report)
	}
	printStressReport(w, report)
	return nil
}

// stampChunk commits a chunk and marks its first and last byte with the
// owning worker.
func stampChunk(c liveChunk, worker int) error {
	if err := c.pool.region.Commit(c.addr, c.size); err != nil {
		return err
	}
	b, err := c.pool.region.Bytes(c.addr, c.size)
	if err != nil {
		return err
	}
	b[0], b[len(b)-1] = byte(worker), byte(worker)
	return nil
}

func verifyChunk(c liveChunk, worker int) error {
	b, err := c.pool.region.Bytes(c.addr, c.size)
	if err != nil {
		return err
	}
	if b[0] != byte(worker) || b[len(b)-1] != byte(worker) {
		return errors.AssertionFailedf("chunk %#x of worker %d was overwritten (%d, %d)",
			c.addr, worker, b[0], b[len(b)-1])
	}
	return nil
}

func printStressReport(w io.Writer, r StressReport) {
	p := message.NewPrinter(language.English)
	printInfo(w, "Allocations:  %s\n", p.Sprintf("%d", r.Allocs))
	printInfo(w, "Frees:        %s\n", p.Sprintf("%d", r.Frees))
	printInfo(w, "Exhausted:    %s\n", p.Sprintf("%d", r.Exhausted))
	printInfo(w, "Duration:     %s\n", r.Duration.Round(time.Millisecond))
	for _, pr := range r.Pools {
		printInfo(w, "Pool %d:       base %s, %s, %s super-pages, peak %s in use\n",
			pr.Handle, pr.Base, humanize.IBytes(pr.Size),
			p.Sprintf("%d", pr.Units), p.Sprintf("%d", pr.PeakAllocated))
	}
	if r.VirtualAfter > 0 {
		printInfo(w, "Process VSZ:  %s -> %s (RSS %s)\n",
			humanize.IBytes(r.VirtualBefore), humanize.IBytes(r.VirtualAfter), humanize.IBytes(r.ResidentAfter))
	}
}
