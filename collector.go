package anoa

import (
	"context"
	"iter"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Counts maps labels to occurrence counts. Labels are reported in the order
// they were first seen. The zero Counts is empty and ready to use.
type Counts[M comparable] struct {
	counts map[M]int
	order  []M
}

// Add adds n occurrences of label.
func (c *Counts[M]) Add(label M, n int) {
	if c.counts == nil {
		c.counts = make(map[M]int)
	}
	if _, ok := c.counts[label]; !ok {
		c.order = append(c.order, label)
	}
	c.counts[label] += n
}

// Get returns the count recorded for label.
func (c *Counts[M]) Get(label M) int {
	return c.counts[label]
}

// Len returns the number of distinct labels.
func (c *Counts[M]) Len() int {
	return len(c.order)
}

// Total returns the sum of all counts.
func (c *Counts[M]) Total() int {
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Merge adds every count of other into c.
func (c *Counts[M]) Merge(other *Counts[M]) {
	for _, label := range other.order {
		c.Add(label, other.counts[label])
	}
}

// All yields (label, count) pairs in first-seen order.
func (c *Counts[M]) All() iter.Seq2[M, int] {
	return func(yield func(M, int) bool) {
		for _, label := range c.order {
			if !yield(label, c.counts[label]) {
				return
			}
		}
	}
}

// Map returns a copy of the counts as a map.
func (c *Counts[M]) Map() map[M]int {
	return maps.Clone(c.counts)
}

// CollectOption configures the label accounting of a collector.
type CollectOption[M comparable] func(*tally[M])

// WithMarkers counts present once for every present record and dropped for
// every absent record that carries no metadata, so presence shows up in the
// same counts as specific causes.
func WithMarkers[M comparable](present, dropped M) CollectOption[M] {
	return func(t *tally[M]) {
		t.markers = true
		t.present = present
		t.dropped = dropped
	}
}

type tally[M comparable] struct {
	counts  Counts[M]
	present M
	dropped M
	markers bool
}

func newTally[M comparable](opts []CollectOption[M]) tally[M] {
	var t tally[M]
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// count records every metadata entry of one record.
func (t *tally[M]) count(present bool, meta []M) {
	for _, m := range meta {
		t.counts.Add(m, 1)
	}
	if !t.markers {
		return
	}
	switch {
	case present:
		t.counts.Add(t.present, 1)
	case len(meta) == 0:
		t.counts.Add(t.dropped, 1)
	}
}

// Collector is the terminal reduction of a record sequence: it keeps the
// present records in arrival order and counts every metadata entry of every
// record, present or not.
//
// A Collector is not safe for concurrent use. Collect independent shards into
// separate collectors and Merge them; merging is associative.
type Collector[T any, M comparable] struct {
	values []T
	tally  tally[M]
}

// NewCollector creates an empty Collector.
func NewCollector[T any, M comparable](opts ...CollectOption[M]) *Collector[T, M] {
	return &Collector[T, M]{tally: newTally(opts)}
}

// Add accumulates one record.
func (c *Collector[T, M]) Add(v Value[T, M]) {
	if v.present {
		c.values = append(c.values, v.value)
	}
	c.tally.count(v.present, v.meta)
}

// Merge appends the records of other after those of c and sums the counts.
func (c *Collector[T, M]) Merge(other *Collector[T, M]) *Collector[T, M] {
	c.values = append(c.values, other.values...)
	c.tally.counts.Merge(&other.tally.counts)
	return c
}

// Values returns a copy of the present records.
func (c *Collector[T, M]) Values() []T {
	return slices.Clone(c.values)
}

// Len returns the number of present records.
func (c *Collector[T, M]) Len() int {
	return len(c.values)
}

// Counts returns the label counts. The result is owned by the collector.
func (c *Collector[T, M]) Counts() *Counts[M] {
	return &c.tally.counts
}

// SetCollector is a Collector that keeps distinct present records only.
// Records are reported in the order they were first seen.
type SetCollector[T, M comparable] struct {
	seen   map[T]struct{}
	values []T
	tally  tally[M]
}

// NewSetCollector creates an empty SetCollector.
func NewSetCollector[T, M comparable](opts ...CollectOption[M]) *SetCollector[T, M] {
	return &SetCollector[T, M]{
		seen:  make(map[T]struct{}),
		tally: newTally(opts),
	}
}

// Add accumulates one record. Duplicate records still contribute their metadata.
func (c *SetCollector[T, M]) Add(v Value[T, M]) {
	if v.present {
		c.insert(v.value)
	}
	c.tally.count(v.present, v.meta)
}

func (c *SetCollector[T, M]) insert(v T) {
	if _, ok := c.seen[v]; ok {
		return
	}
	c.seen[v] = struct{}{}
	c.values = append(c.values, v)
}

// Merge unions the records of other into c and sums the counts.
func (c *SetCollector[T, M]) Merge(other *SetCollector[T, M]) *SetCollector[T, M] {
	for _, v := range other.values {
		c.insert(v)
	}
	c.tally.counts.Merge(&other.tally.counts)
	return c
}

// Values returns a copy of the distinct present records.
func (c *SetCollector[T, M]) Values() []T {
	return slices.Clone(c.values)
}

// Contains reports whether v was collected.
func (c *SetCollector[T, M]) Contains(v T) bool {
	_, ok := c.seen[v]
	return ok
}

// Len returns the number of distinct present records.
func (c *SetCollector[T, M]) Len() int {
	return len(c.values)
}

// Counts returns the label counts. The result is owned by the collector.
func (c *SetCollector[T, M]) Counts() *Counts[M] {
	return &c.tally.counts
}

// Collect drains seq into a new Collector.
func Collect[T any, M comparable](seq iter.Seq[Value[T, M]], opts ...CollectOption[M]) *Collector[T, M] {
	c := NewCollector[T](opts...)
	for v := range seq {
		c.Add(v)
	}
	return c
}

// CollectSet drains seq into a new SetCollector.
func CollectSet[T, M comparable](seq iter.Seq[Value[T, M]], opts ...CollectOption[M]) *SetCollector[T, M] {
	c := NewSetCollector[T](opts...)
	for v := range seq {
		c.Add(v)
	}
	return c
}

// Count drains seq keeping only the label counts. Use it for runs whose
// records are written to a sink as they pass and need not be retained.
func Count[T any, M comparable](seq iter.Seq[Value[T, M]], opts ...CollectOption[M]) *Counts[M] {
	t := newTally(opts)
	for v := range seq {
		t.count(v.present, v.meta)
	}
	return &t.counts
}

// CollectShards drains independent shards in parallel, one goroutine per
// shard, and merges the partial collectors in shard order. Shards must not
// share an underlying source.
//
// If ctx ends first, collection stops and the context error is returned.
func CollectShards[T any, M comparable](ctx context.Context, shards []iter.Seq[Value[T, M]], opts ...CollectOption[M]) (*Collector[T, M], error) {
	partials := make([]*Collector[T, M], len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			c := NewCollector[T](opts...)
			for v := range shard {
				if err := gctx.Err(); err != nil {
					return err
				}
				c.Add(v)
			}
			partials[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := NewCollector[T](opts...)
	for _, c := range partials {
		merged.Merge(c)
	}
	return merged, nil
}
