package anoa

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for Sequence.
const (
	// Metrics.
	SequenceProcessedTotal = metricz.Key("sequence.processed.total")
	SequencePresentTotal   = metricz.Key("sequence.present.total")
	SequenceDroppedTotal   = metricz.Key("sequence.dropped.total")
	SequenceStagesTotal    = metricz.Key("sequence.stages.total")
	SequenceDurationMs     = metricz.Key("sequence.duration.ms")

	// Spans.
	SequenceProcessSpan = tracez.Key("sequence.process")
	SequenceStageSpan   = tracez.Key("sequence.stage")

	// Tags.
	SequenceTagStageCount  = tracez.Tag("sequence.stage_count")
	SequenceTagStageNumber = tracez.Tag("sequence.stage_number")
	SequenceTagStageName   = tracez.Tag("sequence.stage_name")
	SequenceTagPresent     = tracez.Tag("sequence.present")

	// Hook event keys.
	SequenceEventDropped  = hookz.Key("sequence.dropped")
	SequenceEventComplete = hookz.Key("sequence.complete")
)

// Sequence modification errors.
var (
	ErrEmptySequence = errors.New("sequence is empty")
	ErrStepNotFound  = errors.New("step not found")
)

// Step is a named same-type stage registered in a Sequence.
type Step[T, M any] struct {
	Name  Name
	Stage Stage[T, T, M]
}

// NewStep names stage so it can be addressed inside a Sequence.
func NewStep[T, M any](name Name, stage Stage[T, T, M]) Step[T, M] {
	if stage == nil {
		panic("stage can't be nil")
	}
	return Step[T, M]{Name: name, Stage: stage}
}

// SequenceEvent describes the outcome of one record passing through a Sequence.
type SequenceEvent struct {
	Name       Name          // Sequence name
	StepName   Name          // Step that dropped the record; empty on completion
	StepNumber int           // 1-based position of that step
	TotalSteps int           // Number of steps at the time of processing
	Present    bool          // Whether the record survived every step
	MetaAdded  int           // Metadata entries appended by the sequence
	Duration   time.Duration // Time spent in the sequence
	Timestamp  time.Time     // When the event occurred
}

// Sequence is a named, mutable chain of same-type steps. It is useful when
// the steps of a pipeline are assembled at runtime, for example from the
// field paths and validation rules of a configuration file.
//
// A Sequence short-circuits: once a step turns the record absent the
// remaining steps are not called, which is what any lifted step would do
// anyway. Sequences are safe for concurrent use, and modifications never
// affect records already in flight.
//
// # Observability
//
// Metrics:
//   - sequence.processed.total: Counter of records processed
//   - sequence.present.total: Counter of records leaving present
//   - sequence.dropped.total: Counter of records dropped by a step
//   - sequence.stages.total: Gauge of registered steps
//   - sequence.duration.ms: Gauge of the last record's duration
//
// Traces:
//   - sequence.process: Parent span for one record
//   - sequence.stage: Child span for each step
//
// Events (via hooks):
//   - sequence.dropped: Fired when a step drops a record
//   - sequence.complete: Fired when a record leaves the sequence present
//
// Example:
//
//	const Prepare = anoa.Name("prepare")
//	seq := anoa.NewSequence(Prepare,
//	    anoa.NewStep(NullSSN, anoa.Apply(h, NullSSN, ssn.Null)),
//	    anoa.NewStep(RequireID, requireID),
//	)
//	prepared := anoa.Through(decoded, seq.Stage())
type Sequence[T, M any] struct {
	name    Name
	steps   []Step[T, M]
	clock   clockz.Clock
	mu      sync.RWMutex
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[SequenceEvent]
}

// NewSequence creates a Sequence with optional initial steps.
func NewSequence[T, M any](name Name, steps ...Step[T, M]) *Sequence[T, M] {
	metrics := metricz.New()
	metrics.Counter(SequenceProcessedTotal)
	metrics.Counter(SequencePresentTotal)
	metrics.Counter(SequenceDroppedTotal)
	metrics.Gauge(SequenceStagesTotal).Set(float64(len(steps)))
	metrics.Gauge(SequenceDurationMs)

	return &Sequence[T, M]{
		name:    name,
		steps:   slices.Clone(steps),
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[SequenceEvent](),
	}
}

// Process runs v through every step in order.
func (s *Sequence[T, M]) Process(ctx context.Context, v Value[T, M]) Value[T, M] {
	s.mu.RLock()
	steps := slices.Clone(s.steps)
	s.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}
	clock := s.getClock()

	s.metrics.Counter(SequenceProcessedTotal).Inc()
	start := clock.Now()
	before := len(v.meta)

	ctx, span := s.tracer.StartSpan(ctx, SequenceProcessSpan)
	span.SetTag(SequenceTagStageCount, fmt.Sprintf("%d", len(steps)))
	defer span.Finish()

	for i, step := range steps {
		if !v.present {
			break
		}
		_, stepSpan := s.tracer.StartSpan(ctx, SequenceStageSpan)
		stepSpan.SetTag(SequenceTagStageNumber, fmt.Sprintf("%d", i+1))
		stepSpan.SetTag(SequenceTagStageName, step.Name)
		v = step.Stage(v)
		stepSpan.SetTag(SequenceTagPresent, fmt.Sprintf("%t", v.present))
		stepSpan.Finish()

		if !v.present {
			s.metrics.Counter(SequenceDroppedTotal).Inc()
			_ = s.hooks.Emit(ctx, SequenceEventDropped, SequenceEvent{ //nolint:errcheck
				Name:       s.name,
				StepName:   step.Name,
				StepNumber: i + 1,
				TotalSteps: len(steps),
				MetaAdded:  len(v.meta) - before,
				Duration:   clock.Since(start),
				Timestamp:  clock.Now(),
			})
		}
	}

	elapsed := clock.Since(start)
	s.metrics.Gauge(SequenceDurationMs).Set(float64(elapsed.Milliseconds()))
	span.SetTag(SequenceTagPresent, fmt.Sprintf("%t", v.present))

	if v.present {
		s.metrics.Counter(SequencePresentTotal).Inc()
		_ = s.hooks.Emit(ctx, SequenceEventComplete, SequenceEvent{ //nolint:errcheck
			Name:       s.name,
			TotalSteps: len(steps),
			Present:    true,
			MetaAdded:  len(v.meta) - before,
			Duration:   elapsed,
			Timestamp:  clock.Now(),
		})
	}
	return v
}

// Stage returns the sequence as a Stage using a background context.
func (s *Sequence[T, M]) Stage() Stage[T, T, M] {
	return func(v Value[T, M]) Value[T, M] {
		return s.Process(context.Background(), v)
	}
}

// Register appends steps to the sequence.
func (s *Sequence[T, M]) Register(steps ...Step[T, M]) {
	s.Push(steps...)
}

// Push adds steps to the back of the sequence (runs last).
func (s *Sequence[T, M]) Push(steps ...Step[T, M]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
	s.metrics.Gauge(SequenceStagesTotal).Set(float64(len(s.steps)))
}

// Unshift adds steps to the front of the sequence (runs first).
func (s *Sequence[T, M]) Unshift(steps ...Step[T, M]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = slices.Insert(s.steps, 0, steps...)
	s.metrics.Gauge(SequenceStagesTotal).Set(float64(len(s.steps)))
}

// Pop removes and returns the last step.
func (s *Sequence[T, M]) Pop() (Step[T, M], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) == 0 {
		return Step[T, M]{}, ErrEmptySequence
	}
	last := len(s.steps) - 1
	step := s.steps[last]
	s.steps = s.steps[:last]
	s.metrics.Gauge(SequenceStagesTotal).Set(float64(len(s.steps)))
	return step, nil
}

// Remove removes the first step with the given name.
func (s *Sequence[T, M]) Remove(name Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, step := range s.steps {
		if step.Name == name {
			s.steps = slices.Delete(s.steps, i, i+1)
			s.metrics.Gauge(SequenceStagesTotal).Set(float64(len(s.steps)))
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrStepNotFound, name)
}

// Replace replaces the first step with the given name.
func (s *Sequence[T, M]) Replace(name Name, step Step[T, M]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.steps {
		if s.steps[i].Name == name {
			s.steps[i] = step
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrStepNotFound, name)
}

// Names returns the names of all steps in order.
func (s *Sequence[T, M]) Names() []Name {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]Name, len(s.steps))
	for i, step := range s.steps {
		names[i] = step.Name
	}
	return names
}

// Len returns the number of steps.
func (s *Sequence[T, M]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}

// Name returns the name of this sequence.
func (s *Sequence[T, M]) Name() Name {
	return s.name
}

// WithClock sets a custom clock for testing.
func (s *Sequence[T, M]) WithClock(clock clockz.Clock) *Sequence[T, M] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

func (s *Sequence[T, M]) getClock() clockz.Clock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.clock == nil {
		return clockz.RealClock
	}
	return s.clock
}

// Metrics returns the metrics registry for this sequence.
func (s *Sequence[T, M]) Metrics() *metricz.Registry {
	return s.metrics
}

// Tracer returns the tracer for this sequence.
func (s *Sequence[T, M]) Tracer() *tracez.Tracer {
	return s.tracer
}

// OnDropped registers a handler for records dropped by a step.
// The handler is called asynchronously.
func (s *Sequence[T, M]) OnDropped(handler func(context.Context, SequenceEvent) error) error {
	_, err := s.hooks.Hook(SequenceEventDropped, handler)
	return err
}

// OnComplete registers a handler for records that leave the sequence present.
// The handler is called asynchronously.
func (s *Sequence[T, M]) OnComplete(handler func(context.Context, SequenceEvent) error) error {
	_, err := s.hooks.Hook(SequenceEventComplete, handler)
	return err
}

// Close gracefully shuts down observability components.
func (s *Sequence[T, M]) Close() error {
	if s.tracer != nil {
		s.tracer.Close()
	}
	s.hooks.Close()
	return nil
}
