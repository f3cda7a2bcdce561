package anoa

// Apply lifts a function that may fail. Apply is the workhorse lift: decoders,
// encoders and field accessors are all Apply stages.
//
// When fn returns an error, or panics, the record is dropped from this point
// on: the result is absent and carries the prior metadata followed by the
// handler's mapping of the error. Nothing is propagated to the caller, so a
// malformed record never aborts the run.
//
// Example:
//
//	parseJSON := anoa.Apply(h, "parse-json", func(line []byte) (record.Record, error) {
//	    var r record.Record
//	    if err := json.Unmarshal(line, &r); err != nil {
//	        return nil, fmt.Errorf("%w: %w", anoa.ErrDecode, err)
//	    }
//	    return r, nil
//	})
func Apply[T, R, M any](h *Handler[M], stage Name, fn func(T) (R, error)) Stage[T, R, M] {
	return func(v Value[T, M]) Value[R, M] {
		if !v.present {
			h.skipped()
			return Value[R, M]{meta: v.meta}
		}
		r, err := call(stage, func() (R, error) {
			return fn(v.value)
		})
		if err != nil {
			return Value[R, M]{meta: appendMeta(v.meta, h.failure(stage, err)...)}
		}
		h.applied()
		return Value[R, M]{value: r, meta: v.meta, present: true}
	}
}

// ApplyWith lifts a bi-function that may fail. The returned function takes the
// Value and a plain argument u.
func ApplyWith[T, U, R, M any](h *Handler[M], stage Name, fn func(T, U) (R, error)) func(Value[T, M], U) Value[R, M] {
	return func(v Value[T, M], u U) Value[R, M] {
		if !v.present {
			h.skipped()
			return Value[R, M]{meta: v.meta}
		}
		r, err := call(stage, func() (R, error) {
			return fn(v.value, u)
		})
		if err != nil {
			return Value[R, M]{meta: appendMeta(v.meta, h.failure(stage, err)...)}
		}
		h.applied()
		return Value[R, M]{value: r, meta: v.meta, present: true}
	}
}
