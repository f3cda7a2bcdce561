package anoa

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by a Throttle in drop mode when no token is available.
var ErrRateLimited = fmt.Errorf("%w: rate limit exceeded", ErrThrottle)

// ThrottleMode selects how a Throttle reacts to an empty token bucket.
type ThrottleMode string

const (
	// ThrottleWait blocks until a token is available or the handler's context ends.
	ThrottleWait ThrottleMode = "wait"
	// ThrottleDrop drops the record immediately with ErrRateLimited.
	ThrottleDrop ThrottleMode = "drop"
)

// Throttle paces records through a pipeline with a token bucket, protecting a
// slow sink or a shared downstream service.
//
// A Throttle is stateful. Build one per destination and share its Stage
// between workers; a Throttle built per record never limits anything.
//
// Waiting uses the handler's context. When that context is cancelled every
// waiting record is dropped with the context error as its metadata, which is
// how cancellation surfaces as ordinary failures.
//
// Example:
//
//	throttle := anoa.NewThrottle(h, "redis-pace", 500, 50)
//	paced := anoa.Through(encoded, throttle.Stage())
type Throttle[T, M any] struct {
	handler *Handler[M]
	limiter *rate.Limiter
	name    Name
	mode    ThrottleMode
	mu      sync.RWMutex
}

// NewThrottle creates a Throttle allowing ratePerSecond records with bursts of burst.
func NewThrottle[T, M any](h *Handler[M], name Name, ratePerSecond float64, burst int) *Throttle[T, M] {
	return &Throttle[T, M]{
		handler: h,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		name:    name,
		mode:    ThrottleWait,
	}
}

// Stage returns the lifted stage. Absent values pass through without taking a token.
func (t *Throttle[T, M]) Stage() Stage[T, T, M] {
	return TryEffect(t.handler, t.name, func(T) error {
		return t.take()
	})
}

func (t *Throttle[T, M]) take() error {
	t.mu.RLock()
	limiter, mode := t.limiter, t.mode
	t.mu.RUnlock()

	switch mode {
	case ThrottleDrop:
		if !limiter.Allow() {
			return ErrRateLimited
		}
		return nil
	default:
		if err := limiter.Wait(t.handler.context()); err != nil {
			return fmt.Errorf("%w: wait: %w", ErrThrottle, err)
		}
		return nil
	}
}

// SetRate updates the sustained rate in records per second.
func (t *Throttle[T, M]) SetRate(ratePerSecond float64) *Throttle[T, M] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter.SetLimit(rate.Limit(ratePerSecond))
	return t
}

// SetBurst updates the burst capacity.
func (t *Throttle[T, M]) SetBurst(burst int) *Throttle[T, M] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter.SetBurst(burst)
	return t
}

// SetMode sets the mode. Unknown modes are ignored.
func (t *Throttle[T, M]) SetMode(mode ThrottleMode) *Throttle[T, M] {
	if mode != ThrottleWait && mode != ThrottleDrop {
		return t
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	return t
}

// Rate returns the current rate limit.
func (t *Throttle[T, M]) Rate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return float64(t.limiter.Limit())
}

// Burst returns the current burst capacity.
func (t *Throttle[T, M]) Burst() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limiter.Burst()
}

// Mode returns the current mode.
func (t *Throttle[T, M]) Mode() ThrottleMode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mode
}
