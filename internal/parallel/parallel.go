// Package parallel provides the goroutine fan-out the software device uses
// to run the thread groups of one dispatch concurrently.
package parallel

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// GroupConfig returns defaults for coarse work items such as whole thread
// groups, where even two items are worth splitting.
func GroupConfig(workers int) Config {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return Config{
		Enabled:      workers > 1,
		NumWorkers:   workers,
		MinChunkSize: 1,
	}
}

// ForErr executes f(i) for i in [0, n), stopping at the first error.
// Falls back to sequential execution if parallelism is disabled or n is too small.
// Items already running finish; items not yet started in a failed chunk are
// skipped. A panic in f is converted into an error for that item.
func ForErr(n int, f func(i int) error, cfg Config) error {
	run := func(i int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("parallel: item %d panicked: %v", i, r)
			}
		}()
		return f(i)
	}

	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers <= 1 {
		for i := 0; i < n; i++ {
			if err := run(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, max(cfg.MinChunkSize, 1))

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := run(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
