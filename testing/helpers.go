// Package testing provides test utilities and helpers for anoa-based pipelines.
//
// This package includes mock collaborators, assertion helpers for values and
// label counts, and chaos tools that inject failures and panics so a pipeline
// can be checked for losing or double-counting records.
//
// Example usage:
//
//	func TestDecodeStage(t *testing.T) {
//		mock := anoatesting.NewMockFunc[[]byte, record.Record](t, "decode")
//		mock.WithReturn(nil, fmt.Errorf("%w: bad json", anoa.ErrDecode))
//
//		h := anoa.NewHandler(stringMapper)
//		v := anoa.Apply(h, "decode", mock.Func())(anoa.Of[[]byte, string](line))
//
//		anoatesting.AssertAbsent(t, v)
//		anoatesting.AssertCalled(t, mock, 1)
//	}
package testing

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	mathrand "math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/anoa"
)

// ErrChaos is the error returned by a ChaosFunc when it injects a failure.
var ErrChaos = errors.New("chaos induced failure")

// MockFunc provides a configurable mock collaborator func(T) (R, error).
// It tracks calls and allows configuring return values, delays and panics.
type MockFunc[T, R any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t           *testing.T
	name        string
	callCount   int64
	lastInput   T
	returnVal   R
	returnErr   error
	delay       time.Duration
	panicMsg    string
	mu          sync.RWMutex
	callHistory []MockCall[T]
	maxHistory  int
}

// MockCall represents a single call to the mock.
type MockCall[T any] struct {
	Input     T
	Timestamp time.Time
}

// NewMockFunc creates a new mock collaborator.
func NewMockFunc[T, R any](t *testing.T, name string) *MockFunc[T, R] {
	return &MockFunc[T, R]{
		t:          t,
		name:       name,
		maxHistory: 100,
	}
}

// WithReturn configures the mock to return the specified value and error.
func (m *MockFunc[T, R]) WithReturn(val R, err error) *MockFunc[T, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal = val
	m.returnErr = err
	return m
}

// WithDelay configures the mock to sleep before returning.
func (m *MockFunc[T, R]) WithDelay(d time.Duration) *MockFunc[T, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic configures the mock to panic with the specified message.
func (m *MockFunc[T, R]) WithPanic(msg string) *MockFunc[T, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithHistorySize sets the maximum number of calls to keep in history.
// Set to 0 to disable history tracking.
func (m *MockFunc[T, R]) WithHistorySize(size int) *MockFunc[T, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHistory = size
	if size == 0 {
		m.callHistory = nil
	}
	return m
}

// Name returns the name of the mock.
func (m *MockFunc[T, R]) Name() anoa.Name {
	return m.name
}

// Func returns the mock as a collaborator function, ready for anoa.Apply.
func (m *MockFunc[T, R]) Func() func(T) (R, error) {
	return m.call
}

func (m *MockFunc[T, R]) call(in T) (R, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	m.lastInput = in
	if m.maxHistory > 0 {
		m.callHistory = append(m.callHistory, MockCall[T]{Input: in, Timestamp: time.Now()})
		if len(m.callHistory) > m.maxHistory {
			m.callHistory = m.callHistory[1:]
		}
	}
	delay := m.delay
	returnVal := m.returnVal
	returnErr := m.returnErr
	panicMsg := m.panicMsg
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return returnVal, returnErr
}

// CallCount returns the number of times the mock has been called.
func (m *MockFunc[T, R]) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// LastInput returns the input from the most recent call.
func (m *MockFunc[T, R]) LastInput() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInput
}

// CallHistory returns a copy of all recorded calls.
func (m *MockFunc[T, R]) CallHistory() []MockCall[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.callHistory)
}

// Reset clears all call tracking.
func (m *MockFunc[T, R]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.callCount, 0)
	m.lastInput = *new(T)
	m.callHistory = nil
}

// Assertion Helpers

// AssertCalled verifies that a mock was called exactly n times.
func AssertCalled[T, R any](t *testing.T, mock *MockFunc[T, R], expectedCalls int) {
	t.Helper()
	if actual := mock.CallCount(); actual != expectedCalls {
		t.Errorf("expected mock %s to be called %d times, but was called %d times",
			mock.name, expectedCalls, actual)
	}
}

// AssertNotCalled verifies that a mock was never called, as a lifted stage
// guarantees for absent input.
func AssertNotCalled[T, R any](t *testing.T, mock *MockFunc[T, R]) {
	t.Helper()
	AssertCalled(t, mock, 0)
}

// AssertCalledWith verifies that the most recent call received expectedInput.
func AssertCalledWith[T comparable, R any](t *testing.T, mock *MockFunc[T, R], expectedInput T) {
	t.Helper()
	if mock.CallCount() == 0 {
		t.Errorf("expected mock %s to be called with input %v, but it was never called",
			mock.name, expectedInput)
		return
	}
	if actual := mock.LastInput(); actual != expectedInput {
		t.Errorf("expected mock %s to be called with input %v, but was called with %v",
			mock.name, expectedInput, actual)
	}
}

// AssertPresent verifies that v carries a record.
func AssertPresent[T, M any](t *testing.T, v anoa.Value[T, M]) {
	t.Helper()
	if !v.IsPresent() {
		t.Errorf("expected present value, got %v", v)
	}
}

// AssertAbsent verifies that v carries no record.
func AssertAbsent[T, M any](t *testing.T, v anoa.Value[T, M]) {
	t.Helper()
	if v.IsPresent() {
		t.Errorf("expected absent value, got %v", v)
	}
}

// AssertMetadata verifies the full metadata trail of v, in order.
func AssertMetadata[T any, M comparable](t *testing.T, v anoa.Value[T, M], expected ...M) {
	t.Helper()
	if actual := v.Metadata(); !slices.Equal(actual, expected) {
		t.Errorf("expected metadata %v, got %v", expected, actual)
	}
}

// AssertCounts verifies that counts holds exactly the expected label counts.
func AssertCounts[M comparable](t *testing.T, counts *anoa.Counts[M], expected map[M]int) {
	t.Helper()
	if actual := counts.Map(); !maps.Equal(actual, expected) {
		t.Errorf("expected counts %v, got %v", expected, actual)
	}
}

// ChaosFunc wraps a collaborator and randomly injects failures, panics and
// latency. Every injected failure must show up in the collector, which makes
// it a cheap check that a pipeline never loses a record.
type ChaosFunc[T, R any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	name        string
	wrapped     func(T) (R, error)
	failureRate float64
	panicRate   float64
	latencyMin  time.Duration
	latencyMax  time.Duration
	rng         *mathrand.Rand
	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
	panicCalls  int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64       // Probability of returning ErrChaos (0.0 to 1.0)
	PanicRate   float64       // Probability of panicking (0.0 to 1.0)
	LatencyMin  time.Duration // Minimum additional latency to inject
	LatencyMax  time.Duration // Maximum additional latency to inject
	Seed        int64         // Random seed for reproducible chaos (0 for random seed)
}

// NewChaosFunc creates a chaos wrapper around wrapped.
func NewChaosFunc[T, R any](name string, wrapped func(T) (R, error), config ChaosConfig) *ChaosFunc[T, R] {
	seed := config.Seed
	if seed == 0 {
		var seedBytes [8]byte
		if _, err := rand.Read(seedBytes[:]); err != nil {
			seed = time.Now().UnixNano()
		} else {
			seed = int64(binary.BigEndian.Uint64(seedBytes[:])) //nolint:gosec // G115: any seed is fine
		}
	}

	return &ChaosFunc[T, R]{
		name:        name,
		wrapped:     wrapped,
		failureRate: config.FailureRate,
		panicRate:   config.PanicRate,
		latencyMin:  config.LatencyMin,
		latencyMax:  config.LatencyMax,
		rng:         mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // G404: Test utility uses weak RNG for deterministic chaos scenarios
	}
}

// Name returns the name of the chaos wrapper.
func (c *ChaosFunc[T, R]) Name() anoa.Name {
	return c.name
}

// Func returns the wrapper as a collaborator function.
func (c *ChaosFunc[T, R]) Func() func(T) (R, error) {
	return c.call
}

func (c *ChaosFunc[T, R]) call(in T) (R, error) {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	doPanic := c.rng.Float64() < c.panicRate
	var latency time.Duration
	if c.latencyMax > c.latencyMin {
		latency = c.latencyMin + time.Duration(c.rng.Int63n(int64(c.latencyMax-c.latencyMin)))
	} else if c.latencyMin > 0 {
		latency = c.latencyMin
	}
	injectFailure := c.rng.Float64() < c.failureRate
	c.mu.Unlock()

	if doPanic {
		atomic.AddInt64(&c.panicCalls, 1)
		panic("chaos induced panic")
	}
	if latency > 0 {
		time.Sleep(latency)
	}

	result, err := c.wrapped(in)
	if injectFailure && err == nil {
		atomic.AddInt64(&c.failedCalls, 1)
		var zero R
		return zero, ErrChaos
	}
	return result, err
}

// Stats returns statistics about chaos injection.
func (c *ChaosFunc[T, R]) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  atomic.LoadInt64(&c.totalCalls),
		FailedCalls: atomic.LoadInt64(&c.failedCalls),
		PanicCalls:  atomic.LoadInt64(&c.panicCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
	PanicCalls  int64
}

// Injected returns the number of calls that failed or panicked by injection.
func (s ChaosStats) Injected() int64 {
	return s.FailedCalls + s.PanicCalls
}

// FailureRate returns the observed failure rate.
func (s ChaosStats) FailureRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.FailedCalls) / float64(s.TotalCalls)
}

// PanicRate returns the observed panic rate.
func (s ChaosStats) PanicRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.PanicCalls) / float64(s.TotalCalls)
}

// String returns a human-readable representation of the stats.
func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d (%.1f%%), Panics: %d (%.1f%%)}",
		s.TotalCalls, s.FailedCalls, s.FailureRate()*100,
		s.PanicCalls, s.PanicRate()*100)
}

// Helper Functions

// ParallelTest runs testFunc on the given number of goroutines and waits for all of them.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := range goroutines {
		go func() {
			defer wg.Done()
			testFunc(i)
		}()
	}
	wg.Wait()
}

// MeasureLatency measures the latency of a function call.
func MeasureLatency(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}
