package anoa

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Observability constants for Handler.
const (
	// Metrics.
	HandlerAppliedTotal    = metricz.Key("handler.applied.total")
	HandlerSkippedTotal    = metricz.Key("handler.skipped.total")
	HandlerFailuresTotal   = metricz.Key("handler.failures.total")
	HandlerRejectionsTotal = metricz.Key("handler.rejections.total")

	// Hook event keys.
	HandlerEventFailed   = hookz.Key("handler.failed")
	HandlerEventRejected = hookz.Key("handler.rejected")
)

// HandlerEvent describes a record dropped by a lifted stage.
// It is emitted via hookz when a wrapped function fails or a predicate rejects.
type HandlerEvent struct {
	Timestamp time.Time   // When the record was dropped
	Error     *StageError // Failure details; nil for rejections
	Stage     Name        // Stage that dropped the record
}

// Handler lifts plain single-record functions into Stages over Value.
//
// A Handler is fixed to one ErrorMapper that turns the errors raised by
// checked functions into metadata. It holds no per-record state, so every
// Stage it builds can run concurrently on independent records.
//
// Every lifted Stage follows the same rules:
//   - Absent input passes through unchanged; the wrapped function is not called.
//   - On success the result is present and carries the prior metadata.
//   - Checked functions that return an error, or panic, produce an absent
//     Value with the mapped error appended after the prior metadata.
//   - Predicates that reject append the caller's rejection metadata instead.
//
// Example:
//
//	labels := anoa.NewInterner()
//	h := anoa.NewHandler(labels.Mapper())
//
//	decode := anoa.Apply(h, "decode-json", func(line []byte) (record.Record, error) {
//	    return jsonCodec.Decode(line)
//	})
//	collected := anoa.Collect(anoa.Through(lines, decode))
//
// # Observability
//
// Metrics:
//   - handler.applied.total: Counter of wrapped calls that succeeded
//   - handler.skipped.total: Counter of absent values short-circuited
//   - handler.failures.total: Counter of wrapped calls that failed
//   - handler.rejections.total: Counter of predicate rejections
//
// Events (via hooks):
//   - handler.failed: Fired when a wrapped call fails
//   - handler.rejected: Fired when a predicate rejects a record
type Handler[M any] struct {
	mapper  ErrorMapper[M]
	ctx     context.Context
	clock   clockz.Clock
	mu      sync.RWMutex
	metrics *metricz.Registry
	hooks   *hookz.Hooks[HandlerEvent]
}

// NewHandler creates a Handler that records mapper(err, stage) for every failure.
func NewHandler[M any](mapper ErrorMapper[M]) *Handler[M] {
	if mapper == nil {
		panic("mapper can't be nil")
	}
	return newHandler(mapper)
}

// NoOp creates a Handler that drops failed records without recording any
// metadata, trading diagnosability for throughput.
func NoOp[M any]() *Handler[M] {
	return newHandler[M](nil)
}

func newHandler[M any](mapper ErrorMapper[M]) *Handler[M] {
	metrics := metricz.New()
	metrics.Counter(HandlerAppliedTotal)
	metrics.Counter(HandlerSkippedTotal)
	metrics.Counter(HandlerFailuresTotal)
	metrics.Counter(HandlerRejectionsTotal)

	return &Handler[M]{
		mapper:  mapper,
		ctx:     context.Background(),
		metrics: metrics,
		hooks:   hookz.New[HandlerEvent](),
	}
}

// WithClock sets a custom clock for event timestamps.
// This is useful for testing with a fake clock.
func (h *Handler[M]) WithClock(clock clockz.Clock) *Handler[M] {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = clock
	return h
}

// WithContext sets the context used by blocking stages such as Throttle and
// attached to emitted events. Cancelling it makes those stages drop records
// as ordinary failures.
func (h *Handler[M]) WithContext(ctx context.Context) *Handler[M] {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = ctx
	return h
}

// IsNoOp reports whether failures are dropped without metadata.
func (h *Handler[M]) IsNoOp() bool {
	return h.mapper == nil
}

// Metrics returns the metrics registry for this handler.
func (h *Handler[M]) Metrics() *metricz.Registry {
	return h.metrics
}

// OnFailure registers a handler for records dropped by a failing call.
// The handler is called asynchronously.
func (h *Handler[M]) OnFailure(handler func(context.Context, HandlerEvent) error) error {
	_, err := h.hooks.Hook(HandlerEventFailed, handler)
	return err
}

// OnRejected registers a handler for records rejected by a predicate.
// The handler is called asynchronously.
func (h *Handler[M]) OnRejected(handler func(context.Context, HandlerEvent) error) error {
	_, err := h.hooks.Hook(HandlerEventRejected, handler)
	return err
}

// Close gracefully shuts down observability components.
func (h *Handler[M]) Close() error {
	h.hooks.Close()
	return nil
}

func (h *Handler[M]) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

func (h *Handler[M]) now() time.Time {
	h.mu.RLock()
	clock := h.clock
	h.mu.RUnlock()
	if clock == nil {
		return clockz.RealClock.Now()
	}
	return clock.Now()
}

func (h *Handler[M]) applied() {
	h.metrics.Counter(HandlerAppliedTotal).Inc()
}

func (h *Handler[M]) skipped() {
	h.metrics.Counter(HandlerSkippedTotal).Inc()
}

// failure records a failed call and returns the metadata to append, if any.
func (h *Handler[M]) failure(stage Name, err error) []M {
	h.metrics.Counter(HandlerFailuresTotal).Inc()
	if h.mapper == nil {
		return nil
	}

	now := h.now()
	_ = h.hooks.Emit(h.context(), HandlerEventFailed, HandlerEvent{ //nolint:errcheck
		Stage: stage,
		Error: &StageError{
			Stage:     stage,
			Kind:      KindOf(err),
			Err:       err,
			Timestamp: now,
		},
		Timestamp: now,
	})
	return []M{h.mapper(err, stage)}
}

// rejection records a predicate rejection.
func (h *Handler[M]) rejection(stage Name) {
	h.metrics.Counter(HandlerRejectionsTotal).Inc()
	if h.mapper == nil {
		return
	}
	_ = h.hooks.Emit(h.context(), HandlerEventRejected, HandlerEvent{ //nolint:errcheck
		Stage:     stage,
		Timestamp: h.now(),
	})
}

// call runs fn, converting a panic into a *PanicError. ErrNoSuchElement
// panics are re-raised.
func call[R any](stage Name, fn func() (R, error)) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			result, err = zero, recoverPanic(stage, r)
		}
	}()
	return fn()
}
