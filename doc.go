// Package anoa provides resilient record pipelines: single-record functions that may
// fail are lifted into stages that never abort a batch.
//
// # Overview
//
// A conversion job decodes, reshapes, validates and re-encodes thousands of records.
// One malformed record should cost exactly one record, and the job should still be
// able to say which records failed, where, and why. anoa makes that the default by
// routing every record through a Value that carries either the record or nothing,
// plus an append-only trail of metadata written by every stage that touched it.
//
// # Core Concepts
//
//   - Value[T, M]: at most one record of type T plus ordered metadata of type M
//   - Handler[M]: lifts plain functions into Stages, mapping errors into metadata
//   - Stage[T, R, M]: func(Value[T, M]) Value[R, M]
//   - Collector: terminal reduction into present records and per-label counts
//   - Interner: canonical, comparable *Counted labels for metadata
//
// Once a stage drops a record, every later lifted stage passes it through untouched
// without calling the wrapped function. Metadata is never removed, so the final
// Value explains every stage that failed it.
//
// # Lifting
//
//   - Supply / TrySupply: suppliers
//   - Effect / TryEffect, EffectWith / TryEffectWith: consumers
//   - Transform / Apply, TransformWith / ApplyWith: functions
//   - Predicate / TryPredicate: predicates with rejection metadata
//   - Write: external sinks
//   - Throttle: token-bucket pacing
//
// The Try and Apply variants accept functions returning an error. An error, or a
// panic inside the function, drops the record and appends the handler's mapping of
// the error. Panicking with ErrNoSuchElement, which Value.Get raises on an absent
// Value, is a programming error and is never recovered.
//
// # Usage Example
//
//	labels := anoa.NewInterner()
//	h := anoa.NewHandler(labels.Mapper())
//
//	const (
//	    DecodeJSON = anoa.Name("decode-json")
//	    RequireID  = anoa.Name("require-id")
//	)
//
//	decode := anoa.Apply(h, DecodeJSON, jsonCodec.Decode)
//	requireID := anoa.Predicate(h, RequireID,
//	    func(r record.Record) bool { return r["id"] != nil },
//	    func(record.Record) []*anoa.Counted {
//	        return []*anoa.Counted{labels.Rejection(RequireID, "missing id")}
//	    },
//	)
//
//	lines := source.Lines[*anoa.Counted](h, os.Stdin)
//	records := anoa.Through(anoa.Through(lines, decode), requireID)
//	result := anoa.Collect(records, anoa.WithMarkers(labels.Present(), labels.Dropped()))
//
//	for label, n := range result.Counts().All() {
//	    fmt.Printf("%6d %s\n", n, label)
//	}
//
// # Concurrency
//
// Lifted stages hold no per-record state, so a stage may run on many records at
// once. ParallelThrough fans a sequence out to a bounded number of goroutines and
// CollectShards collects independent shards in parallel. Each record's metadata
// keeps the order its stages ran in; the order between records is not preserved.
// The ErrorMapper must be safe for concurrent use; Interner.Mapper is.
package anoa
