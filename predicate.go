package anoa

// Predicate lifts a predicate that cannot fail. Present records for which keep
// returns false become absent, and the metadata returned by reject is appended
// after the prior metadata. A nil reject appends nothing, matching
// Value.Filter.
//
// Example:
//
//	const RequireID = anoa.Name("require-id")
//	requireID := anoa.Predicate(h, RequireID,
//	    func(r record.Record) bool { return r["id"] != nil },
//	    func(record.Record) []*anoa.Counted {
//	        return []*anoa.Counted{labels.Rejection(RequireID, "missing id")}
//	    },
//	)
func Predicate[T, M any](h *Handler[M], stage Name, keep func(T) bool, reject func(T) []M) Stage[T, T, M] {
	return func(v Value[T, M]) Value[T, M] {
		if !v.present {
			h.skipped()
			return v
		}
		if keep(v.value) {
			h.applied()
			return v
		}
		h.rejection(stage)
		if reject == nil {
			return v.drop()
		}
		return v.drop(reject(v.value)...)
	}
}

// TryPredicate lifts a predicate that may fail. A false result behaves like
// Predicate. An error, or a panic, takes the failure path instead: the
// appended metadata comes from the handler's mapper and reject is not called.
func TryPredicate[T, M any](h *Handler[M], stage Name, keep func(T) (bool, error), reject func(T) []M) Stage[T, T, M] {
	return func(v Value[T, M]) Value[T, M] {
		if !v.present {
			h.skipped()
			return v
		}
		ok, err := call(stage, func() (bool, error) {
			return keep(v.value)
		})
		if err != nil {
			return v.drop(h.failure(stage, err)...)
		}
		if ok {
			h.applied()
			return v
		}
		h.rejection(stage)
		if reject == nil {
			return v.drop()
		}
		return v.drop(reject(v.value)...)
	}
}
