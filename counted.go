package anoa

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Canonical keys of the two marker labels.
const (
	PresentKey = "<present>"
	DroppedKey = "<dropped>"
)

// Counted is an interned metadata label. Two labels obtained from the same
// Interner for equal keys are the same pointer, so they can be compared and
// used as map keys by identity.
type Counted struct {
	key string
}

// String returns the canonical key of the label.
func (c *Counted) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.key
}

// Interner maps canonical label keys to shared *Counted instances.
//
// An Interner is owned by the application and handed to whatever needs to
// build labels; there is no package-level instance. It is safe for concurrent
// use: records failing with the same cause at the same time resolve to one
// label.
type Interner struct {
	labels  sync.Map // string -> *Counted
	present *Counted
	dropped *Counted
}

// NewInterner creates an Interner with the present and dropped markers
// already registered.
func NewInterner() *Interner {
	in := &Interner{}
	in.present = in.Intern(PresentKey)
	in.dropped = in.Intern(DroppedKey)
	return in
}

// Intern returns the label for key, creating it on first use.
func (in *Interner) Intern(key string) *Counted {
	if c, ok := in.labels.Load(key); ok {
		return c.(*Counted)
	}
	c, _ := in.labels.LoadOrStore(key, &Counted{key: key})
	return c.(*Counted)
}

// Present returns the marker counted once for every present record.
func (in *Interner) Present() *Counted {
	return in.present
}

// Dropped returns the marker counted for records dropped without any
// specific cause.
func (in *Interner) Dropped() *Counted {
	return in.dropped
}

// Label returns the label describing err raised in stage. The canonical form
// is "[<stage>]: <kind> <detail>" where newlines in the detail are escaped.
func (in *Interner) Label(err error, stage Name) *Counted {
	return in.Intern(fmt.Sprintf("[%s]: %s %s", stage, causeKind(err), escapeDetail(trimKind(err))))
}

// Rejection returns the label recorded when a predicate in stage rejects a
// record for reason.
func (in *Interner) Rejection(stage Name, reason string) *Counted {
	return in.Intern(fmt.Sprintf("[%s]: %s %s", stage, KindValidation, escapeDetail(reason)))
}

// Mapper returns an ErrorMapper producing interned labels.
func (in *Interner) Mapper() ErrorMapper[*Counted] {
	return in.Label
}

// Len returns the number of distinct labels, markers included.
func (in *Interner) Len() int {
	n := 0
	in.labels.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// All yields every label ordered by key.
func (in *Interner) All() iter.Seq[*Counted] {
	var labels []*Counted
	in.labels.Range(func(_, v any) bool {
		labels = append(labels, v.(*Counted))
		return true
	})
	slices.SortFunc(labels, func(a, b *Counted) int {
		return cmp.Compare(a.key, b.key)
	})
	return slices.Values(labels)
}

// causeKind names the kind of err: a known Kind when the error is classified,
// otherwise the Go type of the innermost wrapped error.
func causeKind(err error) string {
	if kind := KindOf(err); kind != KindUnknown {
		return string(kind)
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return reflect.TypeOf(err).String()
}

// kindSentinels maps each classified kind to the sentinel that carries it.
var kindSentinels = map[Kind]error{
	KindDecode:      ErrDecode,
	KindEncode:      ErrEncode,
	KindValidation:  ErrValidation,
	KindFieldAccess: ErrFieldAccess,
	KindWrite:       ErrWrite,
	KindThrottle:    ErrThrottle,
}

// trimKind returns the message of err with the first "<sentinel>: " of its
// kind removed, so the kind is not repeated in the detail. The sentinel may
// sit anywhere in the wrap chain.
func trimKind(err error) string {
	detail := err.Error()
	sentinel, ok := kindSentinels[KindOf(err)]
	if !ok {
		return detail
	}
	before, after, found := strings.Cut(detail, sentinel.Error()+": ")
	if !found {
		return detail
	}
	return before + after
}

var detailEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`)

func escapeDetail(s string) string {
	return detailEscaper.Replace(s)
}
