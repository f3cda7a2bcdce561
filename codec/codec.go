// Package codec contains the record codec interfaces shared by the format
// implementations in its subpackages.
//
// Codecs convert one record at a time and hold no per-call state, so a single
// instance may serve every worker of a parallel pipeline. Failures wrap
// anoa.ErrDecode or anoa.ErrEncode so the kind survives into labels.
package codec

import (
	"fmt"

	"github.com/zoobzio/anoa"
)

// Decoder turns the bytes of one record into a value.
type Decoder[T any] interface {
	Decode(data []byte) (T, error)
}

// Encoder turns one value into the bytes of a record.
type Encoder[T any] interface {
	Encode(v T) ([]byte, error)
}

// Codec both decodes and encodes.
type Codec[T any] interface {
	Decoder[T]
	Encoder[T]
}

// DecodeFunc adapts a function to Decoder.
type DecodeFunc[T any] func(data []byte) (T, error)

// Decode implements Decoder.
func (f DecodeFunc[T]) Decode(data []byte) (T, error) {
	return f(data)
}

// EncodeFunc adapts a function to Encoder.
type EncodeFunc[T any] func(v T) ([]byte, error)

// Encode implements Encoder.
func (f EncodeFunc[T]) Encode(v T) ([]byte, error) {
	return f(v)
}

type funcCodec[T any] struct {
	DecodeFunc[T]
	EncodeFunc[T]
}

// New combines a decode and an encode function into a Codec.
func New[T any](decode DecodeFunc[T], encode EncodeFunc[T]) Codec[T] {
	if decode == nil || encode == nil {
		panic("decode and encode can't be nil")
	}
	return funcCodec[T]{DecodeFunc: decode, EncodeFunc: encode}
}

// DecodeError wraps err as a decode failure of format.
func DecodeError(format string, err error) error {
	return fmt.Errorf("%w: %s: %w", anoa.ErrDecode, format, err)
}

// EncodeError wraps err as an encode failure of format.
func EncodeError(format string, err error) error {
	return fmt.Errorf("%w: %s: %w", anoa.ErrEncode, format, err)
}
