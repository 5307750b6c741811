package systems

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

/**
 * @brief JobSystem runs batches of independent jobs over a bounded number of
 * workers. Each Dispatch call blocks until every job of the batch finished.
 */
type JobSystem struct {
	numWorkers int
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")

// NewJobSystem creates a job system. A numWorkers of 0 uses one worker per CPU.
func NewJobSystem(numWorkers int) (*JobSystem, error) {
	if numWorkers == 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers < 0 {
		return nil, ErrNoWorkers
	}
	return &JobSystem{numWorkers: numWorkers}, nil
}

func (js *JobSystem) WorkerCount() int {
	return js.numWorkers
}

/**
 * @brief Dispatch runs job(ctx, i) for every i in [0, count). The first error
 * cancels the context handed to the jobs still running and is returned.
 */
func (js *JobSystem) Dispatch(ctx context.Context, count int, job func(ctx context.Context, index int) error) error {
	if count <= 0 {
		return nil
	}
	if count == 1 || js.numWorkers == 1 {
		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := job(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(js.numWorkers)
	for i := 0; i < count; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return job(gctx, i)
		})
	}
	return g.Wait()
}
