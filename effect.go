package anoa

// Effect lifts a consumer that cannot fail. The consumer sees the record of a
// present Value, which then passes through unchanged. Use it for logging,
// counting or other side effects that must not alter the record.
func Effect[T, M any](h *Handler[M], _ Name, fn func(T)) Stage[T, T, M] {
	return func(v Value[T, M]) Value[T, M] {
		if !v.present {
			h.skipped()
			return v
		}
		fn(v.value)
		h.applied()
		return v
	}
}

// TryEffect lifts a consumer that may fail. On success the Value passes
// through unchanged; on failure it becomes absent with the mapped error
// appended.
//
// Example:
//
//	audit := anoa.TryEffect(h, "audit", func(r record.Record) error {
//	    return auditLog.Append(r)
//	})
func TryEffect[T, M any](h *Handler[M], stage Name, fn func(T) error) Stage[T, T, M] {
	return func(v Value[T, M]) Value[T, M] {
		if !v.present {
			h.skipped()
			return v
		}
		if _, err := call(stage, func() (struct{}, error) {
			return struct{}{}, fn(v.value)
		}); err != nil {
			return v.drop(h.failure(stage, err)...)
		}
		h.applied()
		return v
	}
}

// EffectWith lifts a bi-consumer that cannot fail. The returned function
// takes the Value and a plain argument u.
func EffectWith[T, U, M any](h *Handler[M], _ Name, fn func(T, U)) func(Value[T, M], U) Value[T, M] {
	return func(v Value[T, M], u U) Value[T, M] {
		if !v.present {
			h.skipped()
			return v
		}
		fn(v.value, u)
		h.applied()
		return v
	}
}

// TryEffectWith lifts a bi-consumer that may fail.
func TryEffectWith[T, U, M any](h *Handler[M], stage Name, fn func(T, U) error) func(Value[T, M], U) Value[T, M] {
	return func(v Value[T, M], u U) Value[T, M] {
		if !v.present {
			h.skipped()
			return v
		}
		if _, err := call(stage, func() (struct{}, error) {
			return struct{}{}, fn(v.value, u)
		}); err != nil {
			return v.drop(h.failure(stage, err)...)
		}
		h.applied()
		return v
	}
}
