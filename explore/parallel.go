package explore

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll runs independent explorations concurrently, at most workers at a
// time (0 or less means one per exploration). The explorations must not
// share a GTS or a session. The first error cancels the others; results
// are returned in input order and are nil for runs that did not finish.
func RunAll(ctx context.Context, workers int, xs ...*Exploration) ([]*Result, error) {
	results := make([]*Result, len(xs))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, x := range xs {
		i, x := i, x
		g.Go(func() error {
			res, err := x.Run(gctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
