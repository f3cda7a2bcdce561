package anoa

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Data error kinds. Collaborators wrap their failures with one of these so the
// cause kind survives into the metadata label:
//
//	return nil, fmt.Errorf("%w: %w", anoa.ErrDecode, err)
var (
	ErrDecode      = errors.New("decode")
	ErrEncode      = errors.New("encode")
	ErrValidation  = errors.New("validation")
	ErrFieldAccess = errors.New("field access")
	ErrWrite       = errors.New("write")
	ErrThrottle    = errors.New("throttle")
)

// ErrNoSuchElement is the panic value raised by Value.Get on an absent Value.
// It signals misuse of the API and is never converted into metadata.
var ErrNoSuchElement = errors.New("no such element: value is absent")

// Kind classifies the cause of a dropped record.
type Kind string

// Known kinds.
const (
	KindDecode      Kind = "decode"
	KindEncode      Kind = "encode"
	KindValidation  Kind = "validation"
	KindFieldAccess Kind = "field-access"
	KindWrite       Kind = "write"
	KindThrottle    Kind = "throttle"
	KindPanic       Kind = "panic"
	KindUnknown     Kind = "unknown"
)

// KindOf returns the kind of err. Errors that do not wrap one of the kind
// sentinels, a *PanicError or a *StageError report KindUnknown.
func KindOf(err error) Kind {
	var stageErr *StageError
	if errors.As(err, &stageErr) && stageErr.Kind != "" {
		return stageErr.Kind
	}
	switch {
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrEncode):
		return KindEncode
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrFieldAccess):
		return KindFieldAccess
	case errors.Is(err, ErrWrite):
		return KindWrite
	case errors.Is(err, ErrThrottle):
		return KindThrottle
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return KindPanic
	}
	return KindUnknown
}

// StageError records which stage failed, when, and why. Handlers pass it to
// hooks; the ErrorMapper receives the underlying error.
type StageError struct {
	Timestamp time.Time
	Err       error
	Stage     Name
	Kind      Kind
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("stage %q failed (%s): %v", e.Stage, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PanicError is the error a checked stage produces when its function panics.
type PanicError struct {
	Stage     Name
	sanitized string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in stage %q: %s", e.Stage, e.sanitized)
}

// recoverPanic converts a recovered panic value into a *PanicError.
// ErrNoSuchElement is re-raised: it is a contract violation, not a data error.
func recoverPanic(stage Name, r any) error {
	if err, ok := r.(error); ok && errors.Is(err, ErrNoSuchElement) {
		panic(r)
	}
	return &PanicError{
		Stage:     stage,
		sanitized: sanitizePanicMessage(r),
	}
}

var (
	memoryAddress = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	filePath      = regexp.MustCompile(`(^|\s)([A-Za-z]:\\|/)\S+\.go:\d+`)
)

// sanitizePanicMessage renders a panic value without leaking addresses,
// source paths or stack traces into labels.
func sanitizePanicMessage(r any) string {
	if r == nil || (reflect.ValueOf(r).Kind() == reflect.Pointer && reflect.ValueOf(r).IsNil()) {
		return "unknown panic (nil value)"
	}

	msg := fmt.Sprint(r)
	switch {
	case strings.Contains(msg, "goroutine ") || strings.Contains(msg, "runtime."):
		return "panic occurred (stack trace sanitized)"
	case filePath.MatchString(msg):
		return "panic occurred (file path sanitized)"
	case len(msg) > 200:
		return "panic occurred (message truncated for security)"
	}
	return "panic occurred: " + memoryAddress.ReplaceAllString(msg, "0x***")
}
