package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zoobzio/anoa"
)

// ErrInvalidPath is returned by Compile for malformed field paths, and by
// the accessors of a zero Path.
var ErrInvalidPath = errors.New("invalid field path")

var errZeroPath = fmt.Errorf("%w: path was not compiled", ErrInvalidPath)

// Path is a compiled dotted field path such as "user.address.zip".
type Path struct {
	raw      string
	segments []string
}

// Compile parses a dotted field path.
func Compile(path string) (Path, error) {
	if path == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return Path{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return Path{raw: path, segments: segments}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(path string) Path {
	p, err := Compile(path)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the path as written.
func (p Path) String() string {
	return p.raw
}

// Get returns the value at the path. Missing fields and non-record
// intermediate values are errors wrapping anoa.ErrFieldAccess.
func (p Path) Get(r Record) (any, error) {
	if len(p.segments) == 0 {
		return nil, errZeroPath
	}
	cur := r
	for i, seg := range p.segments {
		v, ok := cur[seg]
		if !ok {
			return nil, p.missing(i)
		}
		if i == len(p.segments)-1 {
			return v, nil
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, p.notRecord(i, v)
		}
		cur = next
	}
	return nil, p.missing(0)
}

// Null returns a copy of r with the field at the path set to nil. Every
// record along the path is copied, so r itself is never modified.
func (p Path) Null(r Record) (Record, error) {
	return p.Set(r, nil)
}

// Set returns a copy of r with the field at the path set to v. Like Null, it
// fails if any segment of the path is missing.
func (p Path) Set(r Record, v any) (Record, error) {
	if len(p.segments) == 0 {
		return nil, errZeroPath
	}
	return p.set(r, 0, v)
}

func (p Path) set(r Record, i int, v any) (Record, error) {
	seg := p.segments[i]
	cur, ok := r[seg]
	if !ok {
		return nil, p.missing(i)
	}
	out := Clone(r)
	if i == len(p.segments)-1 {
		out[seg] = v
		return out, nil
	}
	child, ok := cur.(map[string]any)
	if !ok {
		return nil, p.notRecord(i, cur)
	}
	updated, err := p.set(child, i+1, v)
	if err != nil {
		return nil, err
	}
	out[seg] = updated
	return out, nil
}

func (p Path) prefix(i int) string {
	return strings.Join(p.segments[:i+1], ".")
}

func (p Path) missing(i int) error {
	return fmt.Errorf("%w: %s: field %q not found", anoa.ErrFieldAccess, p.raw, p.prefix(i))
}

func (p Path) notRecord(i int, v any) error {
	return fmt.Errorf("%w: %s: field %q is %T, not a record", anoa.ErrFieldAccess, p.raw, p.prefix(i), v)
}
