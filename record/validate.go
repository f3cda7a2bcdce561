package record

import "fmt"

// Validator checks that records carry a set of required fields. A field is
// missing when the path does not resolve or resolves to nil.
type Validator struct {
	paths []Path
}

// NewValidator compiles the required field paths.
func NewValidator(fields ...string) (*Validator, error) {
	v := &Validator{paths: make([]Path, 0, len(fields))}
	for _, f := range fields {
		p, err := Compile(f)
		if err != nil {
			return nil, err
		}
		v.paths = append(v.paths, p)
	}
	return v, nil
}

// Valid reports whether r carries every required field.
func (v *Validator) Valid(r Record) bool {
	for _, p := range v.paths {
		if val, err := p.Get(r); err != nil || val == nil {
			return false
		}
	}
	return true
}

// Missing returns one rejection reason per required field r lacks, in the
// order the fields were configured.
func (v *Validator) Missing(r Record) []string {
	var reasons []string
	for _, p := range v.paths {
		if val, err := p.Get(r); err != nil || val == nil {
			reasons = append(reasons, fmt.Sprintf("missing required field %q", p.raw))
		}
	}
	return reasons
}

// Fields returns the required field paths.
func (v *Validator) Fields() []string {
	out := make([]string, len(v.paths))
	for i, p := range v.paths {
		out[i] = p.raw
	}
	return out
}
