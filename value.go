package anoa

import (
	"fmt"
	"iter"
	"slices"
)

// Value holds at most one record of type T together with the ordered
// metadata of type M accumulated by every stage that touched it.
//
// A Value is either present (it carries a record) or absent (the record was
// dropped somewhere upstream). Metadata is append-only along a derivation
// chain: stages may add entries but never remove the ones added before them.
// The zero Value is absent and carries no metadata.
//
// Values are immutable. Every operation returns a new Value and never writes
// into the metadata of its receiver, so two stages deriving from the same
// Value cannot observe each other's entries.
type Value[T, M any] struct {
	value   T
	meta    []M
	present bool
}

// Of returns a present Value wrapping v with meta as its initial metadata.
func Of[T, M any](v T, meta ...M) Value[T, M] {
	return Value[T, M]{
		value:   v,
		meta:    slices.Clone(meta),
		present: true,
	}
}

// Empty returns an absent Value carrying meta.
func Empty[T, M any](meta ...M) Value[T, M] {
	return Value[T, M]{
		meta: slices.Clone(meta),
	}
}

// Get returns the wrapped record.
//
// Get panics with ErrNoSuchElement when the Value is absent. That is a misuse
// of the API, not a data error, and lifted stages never convert it into
// metadata.
func (v Value[T, M]) Get() T {
	if !v.present {
		panic(ErrNoSuchElement)
	}
	return v.value
}

// Lookup returns the record and true when present, the zero T and false otherwise.
func (v Value[T, M]) Lookup() (T, bool) {
	return v.value, v.present
}

// All returns a sequence yielding the record once when present and nothing otherwise.
func (v Value[T, M]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		if v.present {
			yield(v.value)
		}
	}
}

// Meta returns a sequence over the accumulated metadata in the order stages recorded it.
func (v Value[T, M]) Meta() iter.Seq[M] {
	return slices.Values(v.meta)
}

// Metadata returns a copy of the accumulated metadata.
func (v Value[T, M]) Metadata() []M {
	return slices.Clone(v.meta)
}

// IsPresent reports whether the Value carries a record.
func (v Value[T, M]) IsPresent() bool {
	return v.present
}

// IfPresent calls fn with the record when present.
func (v Value[T, M]) IfPresent(fn func(T)) {
	if v.present {
		fn(v.value)
	}
}

// OrElse returns the record when present and fallback otherwise.
func (v Value[T, M]) OrElse(fallback T) T {
	if v.present {
		return v.value
	}
	return fallback
}

// OrElseGet returns the record when present and the result of supplier otherwise.
func (v Value[T, M]) OrElseGet(supplier func() T) T {
	if v.present {
		return v.value
	}
	return supplier()
}

// OrElseErr returns the record when present. When absent it returns the error
// built by factory; factory is not called for present values.
func (v Value[T, M]) OrElseErr(factory func() error) (T, error) {
	if v.present {
		return v.value, nil
	}
	var zero T
	return zero, factory()
}

// Filter keeps the record when keep returns true and turns the Value absent
// otherwise. Filter never adds metadata; use Predicate to record why a record
// was rejected. Absent values are returned unchanged and keep is not called.
func (v Value[T, M]) Filter(keep func(T) bool) Value[T, M] {
	if !v.present || keep(v.value) {
		return v
	}
	return Value[T, M]{meta: v.meta}
}

// String implements fmt.Stringer for debugging.
func (v Value[T, M]) String() string {
	if !v.present {
		return fmt.Sprintf("Empty%v", v.meta)
	}
	return fmt.Sprintf("Of(%v)%v", v.value, v.meta)
}

// drop returns an absent Value carrying the receiver's metadata followed by meta.
func (v Value[T, M]) drop(meta ...M) Value[T, M] {
	return Value[T, M]{meta: appendMeta(v.meta, meta...)}
}

// Map applies fn to the record of a present Value, keeping its metadata.
// Absent values pass through unchanged and fn is not called.
//
// Map is a function rather than a method because Go methods cannot introduce
// the result type parameter R.
func Map[T, R, M any](v Value[T, M], fn func(T) R) Value[R, M] {
	if !v.present {
		return Value[R, M]{meta: v.meta}
	}
	return Value[R, M]{value: fn(v.value), meta: v.meta, present: true}
}

// FlatMap calls fn with the record of a present Value and returns a Value
// whose presence is that of fn's result and whose metadata is v's metadata
// followed by the result's metadata. Absent values pass through unchanged and
// fn is not called.
func FlatMap[T, R, M any](v Value[T, M], fn func(T) Value[R, M]) Value[R, M] {
	if !v.present {
		return Value[R, M]{meta: v.meta}
	}
	next := fn(v.value)
	next.meta = appendMeta(v.meta, next.meta...)
	return next
}

// appendMeta returns prior followed by extra. The result never shares spare
// capacity with prior, so sibling derivations cannot overwrite each other.
func appendMeta[M any](prior []M, extra ...M) []M {
	if len(extra) == 0 {
		return prior
	}
	return append(slices.Clip(prior), extra...)
}
