package anoa

// Transform lifts a function that cannot fail. The function is applied to the
// record of a present Value and the metadata is carried forward.
//
// If the function might fail (parsing, encoding, field access), use Apply.
//
// Example:
//
//	const Uppercase = anoa.Name("uppercase")
//	upper := anoa.Transform(h, Uppercase, strings.ToUpper)
func Transform[T, R, M any](h *Handler[M], _ Name, fn func(T) R) Stage[T, R, M] {
	return func(v Value[T, M]) Value[R, M] {
		if !v.present {
			h.skipped()
			return Value[R, M]{meta: v.meta}
		}
		r := fn(v.value)
		h.applied()
		return Value[R, M]{value: r, meta: v.meta, present: true}
	}
}

// TransformWith lifts a bi-function that cannot fail. The returned function
// takes the Value and a plain argument u.
func TransformWith[T, U, R, M any](h *Handler[M], _ Name, fn func(T, U) R) func(Value[T, M], U) Value[R, M] {
	return func(v Value[T, M], u U) Value[R, M] {
		if !v.present {
			h.skipped()
			return Value[R, M]{meta: v.meta}
		}
		r := fn(v.value, u)
		h.applied()
		return Value[R, M]{value: r, meta: v.meta, present: true}
	}
}
