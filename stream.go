package anoa

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// From wraps every record of seq in a present Value with no metadata.
func From[T, M any](seq iter.Seq[T]) iter.Seq[Value[T, M]] {
	return func(yield func(Value[T, M]) bool) {
		for v := range seq {
			if !yield(Value[T, M]{value: v, present: true}) {
				return
			}
		}
	}
}

// Through applies stage to every Value of seq, lazily and in order.
func Through[T, R, M any](seq iter.Seq[Value[T, M]], stage Stage[T, R, M]) iter.Seq[Value[R, M]] {
	return func(yield func(Value[R, M]) bool) {
		for v := range seq {
			if !yield(stage(v)) {
				return
			}
		}
	}
}

// Present yields the records of the present values of seq, discarding
// absent values and all metadata.
func Present[T, M any](seq iter.Seq[Value[T, M]]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range seq {
			if v.present && !yield(v.value) {
				return
			}
		}
	}
}

// ParallelThrough applies stage to the values of seq on up to workers
// goroutines. Each value is transformed by exactly one goroutine, so its
// metadata keeps the order its stages were applied, but results are yielded
// in completion order, not source order.
//
// seq is pulled from a single goroutine. When ctx ends no further values are
// pulled, but every value already handed to a worker is still yielded, so a
// collector accounts for each record whose stage ran.
//
// When the consumer stops iterating, ParallelThrough returns at once, without
// waiting for the source or the workers. Results still in flight are discarded
// and never reach the consumer's counts. A pull blocked inside seq keeps its
// goroutine until seq yields or ends; the value it returns is not processed.
func ParallelThrough[T, R, M any](ctx context.Context, seq iter.Seq[Value[T, M]], workers int, stage Stage[T, R, M]) iter.Seq[Value[R, M]] {
	if workers < 1 {
		workers = 1
	}
	return func(yield func(Value[R, M]) bool) {
		stopped := make(chan struct{})
		out := make(chan Value[R, M], workers)

		var g errgroup.Group
		g.SetLimit(workers)

		go func() {
			defer close(out)
			defer func() { _ = g.Wait() }() //nolint:errcheck
			for v := range seq {
				select {
				case <-stopped:
					return
				case <-ctx.Done():
					return
				default:
				}
				g.Go(func() error {
					r := stage(v)
					select {
					case out <- r:
					case <-stopped:
					}
					return nil
				})
			}
		}()

		for r := range out {
			if !yield(r) {
				close(stopped)
				return
			}
		}
	}
}
