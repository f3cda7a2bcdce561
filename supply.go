package anoa

// Supply lifts a supplier that cannot fail. Each call of the returned function
// produces a present Value with no metadata.
func Supply[T, M any](h *Handler[M], _ Name, fn func() T) func() Value[T, M] {
	return func() Value[T, M] {
		v := fn()
		h.applied()
		return Value[T, M]{value: v, present: true}
	}
}

// TrySupply lifts a supplier that may fail. A failure produces an absent Value
// carrying the mapped error, which is how a source reports a record it could
// not read without aborting the run.
func TrySupply[T, M any](h *Handler[M], stage Name, fn func() (T, error)) func() Value[T, M] {
	return func() Value[T, M] {
		v, err := call(stage, fn)
		if err != nil {
			return Empty[T](h.failure(stage, err)...)
		}
		h.applied()
		return Value[T, M]{value: v, present: true}
	}
}
