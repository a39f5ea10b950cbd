package facematch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEachImage calls fn for every image, at most concurrency at a time.
// With concurrency <= 1 images are processed sequentially in order.
// It stops early and returns ctx.Err() when the context is cancelled.
func forEachImage(ctx context.Context, images []string, concurrency int, fn func(ctx context.Context, i int, path string)) error {
	if concurrency <= 1 {
		for i, path := range images {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, i, path)
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, i, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
