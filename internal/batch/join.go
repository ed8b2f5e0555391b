// Package batch fans a classification call out over many units and gathers
// the outcomes back in input order.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Settled is the outcome of one call, tagged with its input index.
type Settled[T any] struct {
	Index int
	Value T
	Err   error
}

// JoinAll runs fn for every index in [0, n) and waits for all of them. A
// failing or panicking call never stops its siblings. The result is indexed
// by input position, not by completion order. limit <= 0 means unbounded.
func JoinAll[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) (T, error)) []Settled[T] {
	out := make([]Settled[T], n)
	if n == 0 {
		return out
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					out[i] = Settled[T]{Index: i, Err: fmt.Errorf("panic: %v", r)}
				}
			}()

			v, err := fn(ctx, i)
			out[i] = Settled[T]{Index: i, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return out
}
