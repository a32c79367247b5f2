// Package parallel provides the blocking parallel-for primitive used by
// the attention kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool    // Whether parallel execution is enabled.
	NumWorkers   int     // Number of worker goroutines to use.
	MinChunkSize int     // Minimum items per goroutine to avoid overhead.
	MinCostPerGo float64 // Minimum estimated work per goroutine for ForCost.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
		MinCostPerGo: 32 * 1024,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		// Sequential fallback.
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForCost executes f(i) for i in [0, n), choosing the degree of
// parallelism from a per-unit cost estimate rather than from n alone.
// costPerUnit is the caller's estimate of the work one unit performs
// (e.g. the flop count of a matrix multiply).
//
// Every unit executes exactly once and ForCost returns only when all
// units have finished, so the call site acts as a barrier. Units may run
// in any order and must write disjoint memory.
func ForCost(n int, costPerUnit float64, f func(i int), cfg Config) {
	if n <= 0 {
		return
	}
	workers := workersFor(n, costPerUnit, cfg)
	if workers <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// workersFor derives a worker count from total estimated cost: cheap
// fan-outs run sequentially, expensive ones use up to NumWorkers
// goroutines but never more than one per unit.
func workersFor(n int, costPerUnit float64, cfg Config) int {
	if !cfg.Enabled || cfg.NumWorkers <= 1 {
		return 1
	}
	minCost := cfg.MinCostPerGo
	if minCost <= 0 {
		minCost = DefaultConfig().MinCostPerGo
	}
	total := costPerUnit * float64(n)
	byCost := int(total / minCost)
	return max(1, min(min(cfg.NumWorkers, n), byCost))
}

// ForBatch optimized for batch*heads iteration patterns.
func ForBatch(batch, heads int, f func(b, h int), cfg Config) {
	n := batch * heads
	For(n, func(k int) {
		f(k/heads, k%heads)
	}, cfg)
}
