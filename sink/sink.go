// Package sink holds anoa.Sink implementations for encoded records.
package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/zoobzio/anoa"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("sink closed")

// Framing selects how records are separated on the wire.
type Framing int

const (
	// FrameLines terminates every record with "\n".
	FrameLines Framing = iota
	// FrameDelimited prefixes every record with its length as a uvarint.
	FrameDelimited
)

// Writer is a buffered, framed sink over an io.Writer. It is safe for
// concurrent use so parallel stages can share it.
type Writer struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	framing Framing
	prefix  [binary.MaxVarintLen64]byte
	written int
	closed  bool
}

var _ anoa.Sink[[]byte] = (*Writer)(nil)

// Lines creates a newline-framed sink. If w is an io.Closer, Close closes it.
func Lines(w io.Writer) *Writer {
	return newWriter(w, FrameLines)
}

// Delimited creates a length-prefixed sink readable by source.Delimited. If w
// is an io.Closer, Close closes it.
func Delimited(w io.Writer) *Writer {
	return newWriter(w, FrameDelimited)
}

func newWriter(w io.Writer, framing Framing) *Writer {
	if w == nil {
		panic("writer can't be nil")
	}
	s := &Writer{w: bufio.NewWriter(w), framing: framing}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Write appends one framed record to the buffer.
func (s *Writer) Write(record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.framing == FrameDelimited {
		n := binary.PutUvarint(s.prefix[:], uint64(len(record)))
		if _, err := s.w.Write(s.prefix[:n]); err != nil {
			return err
		}
	}
	if _, err := s.w.Write(record); err != nil {
		return err
	}
	if s.framing == FrameLines {
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	s.written++
	return nil
}

// Flush writes buffered records to the underlying writer.
func (s *Writer) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.w.Flush()
}

// Close flushes and closes the underlying writer when it is closable.
// Closing twice is a no-op.
func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// Written returns the number of records accepted so far.
func (s *Writer) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}
