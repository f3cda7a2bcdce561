// Package redis is a sink that appends encoded records to a Redis list.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/anoa"
)

// DefaultBatchSize is the number of records pushed per RPUSH.
const DefaultBatchSize = 128

// Sink errors.
var (
	ErrClosed  = errors.New("redis sink closed")
	ErrBacklog = errors.New("redis sink backlog full")
)

// Pusher is the part of a Redis client the sink needs. *redis.Client,
// *redis.ClusterClient and *redis.Ring satisfy it.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// Sink buffers records and appends them to one list with RPUSH. The client
// is owned by the caller and is not closed by Close.
//
// Write accepts a record into the buffer and fails only when the record was
// not accepted, so a record dropped by anoa.Write is never pushed later. A
// failed push keeps the batch for the next attempt; the failure is returned by
// Flush and Close. Once the buffer holds maxPending records and a push still
// fails, Write rejects new records with ErrBacklog.
type Sink struct {
	mu         sync.Mutex
	ctx        context.Context
	client     Pusher
	key        string
	batchSize  int
	maxPending int
	pending    []any
	pushed     int64
	lastErr    error
	closed     bool
}

var _ anoa.Sink[[]byte] = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithBatchSize sets how many records are buffered before a push. Panics if
// n < 1.
func WithBatchSize(n int) Option {
	if n < 1 {
		panic("batch size can't be < 1")
	}
	return func(s *Sink) {
		s.batchSize = n
	}
}

// WithMaxPending sets how many records may wait in the buffer while Redis is
// failing. It defaults to four batches. Panics if n < 1.
func WithMaxPending(n int) Option {
	if n < 1 {
		panic("max pending can't be < 1")
	}
	return func(s *Sink) {
		s.maxPending = n
	}
}

// New creates a sink appending to the list at key. ctx bounds every push.
func New(ctx context.Context, client Pusher, key string, opts ...Option) *Sink {
	if client == nil {
		panic("client can't be nil")
	}
	if key == "" {
		panic("key can't be empty")
	}
	s := &Sink{ctx: ctx, client: client, key: key, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxPending == 0 {
		s.maxPending = 4 * s.batchSize
	}
	s.pending = make([]any, 0, s.batchSize)
	return s
}

// Write buffers record and pushes the batch once it is full. A failed push
// does not fail the write: the record is buffered and the error is kept for
// Flush and Close.
func (s *Sink) Write(record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.pending) >= s.maxPending {
		if err := s.push(); err != nil {
			return fmt.Errorf("%w: %w", ErrBacklog, err)
		}
	}
	s.pending = append(s.pending, record)
	if len(s.pending) >= s.batchSize {
		s.lastErr = s.push()
	}
	return nil
}

// Flush pushes buffered records.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.push()
}

// Close pushes buffered records and stops accepting writes. If the push
// fails the sink stays open, so Close can be retried.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.push(); err != nil {
		return err
	}
	s.closed = true
	return nil
}

// Pending returns the number of buffered records not yet acknowledged.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Err returns the error of the last push triggered by Write, if it failed.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Pushed returns the number of records Redis acknowledged.
func (s *Sink) Pushed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

func (s *Sink) push() error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.client.RPush(s.ctx, s.key, s.pending...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %d records: %w", s.key, len(s.pending), err)
	}
	s.pushed += int64(len(s.pending))
	s.pending = s.pending[:0]
	s.lastErr = nil
	return nil
}
