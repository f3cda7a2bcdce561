// Package source reads framed records from an io.Reader as a lazy sequence
// of resilient values.
//
// A record that cannot be read becomes an absent value carrying the
// handler's label for the failure, so the run continues past it. Oversized
// records are skipped and reported one by one; an error from the reader
// itself ends the sequence after reporting it once.
package source

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/zoobzio/anoa"
)

// Default stage names.
const (
	ReadLines     = anoa.Name("read-lines")
	ReadDelimited = anoa.Name("read-delimited")
)

// DefaultMaxSize bounds a single record unless WithMaxSize says otherwise.
const DefaultMaxSize = 16 << 20

// ErrTooLarge is reported for records longer than the configured maximum.
var ErrTooLarge = fmt.Errorf("%w: record too large", anoa.ErrDecode)

type options struct {
	stage     anoa.Name
	maxSize   int
	keepBlank bool
	logger    anoa.SLogger
}

// Option configures a source.
type Option func(*options)

// WithStage sets the stage name recorded in failure labels.
func WithStage(name anoa.Name) Option {
	return func(o *options) {
		o.stage = name
	}
}

// WithMaxSize sets the largest accepted record in bytes. Panics if n < 1.
func WithMaxSize(n int) Option {
	if n < 1 {
		panic("max size can't be < 1")
	}
	return func(o *options) {
		o.maxSize = n
	}
}

// WithBlankLines yields empty lines as records instead of skipping them.
func WithBlankLines() Option {
	return func(o *options) {
		o.keepBlank = true
	}
}

// WithLogger sets the logger that receives a summary when the source ends.
func WithLogger(logger anoa.SLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(stage anoa.Name, opts []Option) options {
	o := options{stage: stage, maxSize: DefaultMaxSize, logger: anoa.DiscardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Lines yields one record per newline-terminated line of r. The line ending,
// "\n" or "\r\n", is stripped and blank lines are skipped. The final line
// needs no terminator.
func Lines[M any](h *anoa.Handler[M], r io.Reader, opts ...Option) iter.Seq[anoa.Value[[]byte, M]] {
	o := newOptions(ReadLines, opts)
	return func(yield func(anoa.Value[[]byte, M]) bool) {
		br := bufio.NewReader(r)
		var read, failed int
		defer func() {
			o.logger.Debug("source exhausted", "stage", o.stage, "records", read, "failed", failed)
		}()
		for {
			line, err := readLine(br, o.maxSize)
			if line == nil && err == nil {
				return
			}
			if err == nil && len(line) == 0 && !o.keepBlank {
				continue
			}
			read++
			fatal := err != nil && !errors.Is(err, ErrTooLarge)
			v := supply(h, o.stage, line, err)
			if !v.IsPresent() {
				failed++
			}
			if !yield(v) || fatal {
				return
			}
		}
	}
}

// readLine returns the next line without its terminator. It returns nil and
// no error at the end of input, and an empty non-nil slice for a blank line.
// A line longer than limit is consumed and reported as ErrTooLarge.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	size := 0
	started := false
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			started = true
		}
		size += len(chunk)
		if size <= limit+2 {
			line = append(line, chunk...)
		}
		switch {
		case err == nil, errors.Is(err, io.EOF):
			if !started {
				return nil, nil
			}
			line = bytes.TrimSuffix(line, []byte("\n"))
			line = bytes.TrimSuffix(line, []byte("\r"))
			if size > limit+2 || len(line) > limit {
				return []byte{}, fmt.Errorf("%w: line exceeds %d bytes", ErrTooLarge, limit)
			}
			if line == nil {
				line = []byte{}
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return []byte{}, fmt.Errorf("%w: %w", anoa.ErrDecode, err)
		}
	}
}

// Delimited yields records framed by an unsigned varint length prefix, the
// framing written by sink.Delimited and by protodelim.
func Delimited[M any](h *anoa.Handler[M], r io.Reader, opts ...Option) iter.Seq[anoa.Value[[]byte, M]] {
	o := newOptions(ReadDelimited, opts)
	return func(yield func(anoa.Value[[]byte, M]) bool) {
		br := bufio.NewReader(r)
		var read, failed int
		defer func() {
			o.logger.Debug("source exhausted", "stage", o.stage, "records", read, "failed", failed)
		}()
		for {
			frame, err := readFrame(br, o.maxSize)
			if frame == nil && err == nil {
				return
			}
			read++
			fatal := err != nil && !errors.Is(err, ErrTooLarge)
			v := supply(h, o.stage, frame, err)
			if !v.IsPresent() {
				failed++
			}
			if !yield(v) || fatal {
				return
			}
		}
	}
}

func readFrame(br *bufio.Reader, limit int) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return []byte{}, fmt.Errorf("%w: length prefix: %w", anoa.ErrDecode, err)
	}
	if n > uint64(limit) {
		if _, err := br.Discard(int(min(n, uint64(1<<62)))); err != nil {
			return []byte{}, fmt.Errorf("%w: frame of %d bytes: %w", anoa.ErrDecode, n, io.ErrUnexpectedEOF)
		}
		return []byte{}, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrTooLarge, n, limit)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(br, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return []byte{}, fmt.Errorf("%w: frame of %d bytes: %w", anoa.ErrDecode, n, err)
	}
	return frame, nil
}

func supply[M any](h *anoa.Handler[M], stage anoa.Name, data []byte, err error) anoa.Value[[]byte, M] {
	return anoa.TrySupply(h, stage, func() ([]byte, error) {
		return data, err
	})()
}
