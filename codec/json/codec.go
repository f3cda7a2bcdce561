// Package json is the newline-free JSON object codec for records.
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/zoobzio/anoa/codec"
	"github.com/zoobzio/anoa/record"
)

// Format is the name the codec registers under.
const Format = "json"

var errNotObject = errors.New("not a JSON object")

// Codec decodes one JSON object per record and encodes records compactly.
// It holds no mutable state and may be shared.
type Codec struct {
	useNumber bool
}

var _ codec.Codec[record.Record] = (*Codec)(nil)

// Option configures a Codec.
type Option func(*Codec)

// WithNumbers decodes numbers as json.Number instead of float64, keeping
// integers beyond 2^53 exact.
func WithNumbers() Option {
	return func(c *Codec) {
		c.useNumber = true
	}
}

// New creates a JSON codec.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode parses data as a single JSON object. Trailing content after the
// object is an error.
func (c *Codec) Decode(data []byte) (record.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.useNumber {
		dec.UseNumber()
	}
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, codec.DecodeError(Format, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, codec.DecodeError(Format, fmt.Errorf("trailing data after object at offset %d", dec.InputOffset()))
	}
	r, ok := v.(map[string]any)
	if !ok {
		return nil, codec.DecodeError(Format, fmt.Errorf("%w: got %T", errNotObject, v))
	}
	return r, nil
}

// Encode writes r as a compact JSON object without a trailing newline.
func (c *Codec) Encode(r record.Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	return data, nil
}
