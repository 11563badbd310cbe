// Package batch runs independent jobs concurrently and joins their errors.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
)

// Run calls fn for every index in [0, n) with at most limit jobs in
// flight. Every job runs to completion; failures are folded into one
// AggregateError. A limit below 1 means no limit.
func Run(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	errs := make([]error, n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			errs[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Aggregate(errs)
}

// Map runs fn over items and returns results in input order
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	err := Run(ctx, len(items), limit, func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	return results, err
}
