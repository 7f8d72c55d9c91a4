package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunPool executes the workers concurrently, one goroutine each, and waits
// for all of them. Workers are isolated: a fatal error in one forfeits only
// that worker's remaining partition, so the group deliberately carries no
// shared cancel context. External cancellation still reaches every worker
// through ctx. Wait returns the first worker error, if any.
func RunPool(ctx context.Context, workers []*Worker) error {
	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	return g.Wait()
}
