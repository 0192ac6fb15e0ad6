package chain

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MapConcurrently runs fn for every input concurrently and returns the results in
// input order. Callers apply the results to shared state afterwards, one at a time.
func MapConcurrently[In, Out any](ctx context.Context, inputs []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := fn(gctx, in)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
