// Package record holds the generic structured record shared by the codecs,
// and the compiled helpers that reshape, validate and tabulate it.
//
// Field paths and column tables are compiled once, when a pipeline is built,
// and then applied to every record without any further lookup.
package record

import "maps"

// Record is a decoded structured record: field names mapped to scalars,
// nested records ([map[string]any]) or lists ([]any).
type Record = map[string]any

// Clone returns a shallow copy of r.
func Clone(r Record) Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}
