// Package msgpack is the MessagePack codec.
package msgpack

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zoobzio/anoa/codec"
	"github.com/zoobzio/anoa/record"
)

// Format is the name the codec registers under.
const Format = "msgpack"

// Codec converts values of type T to and from MessagePack. Map keys are
// written sorted so equal records encode to equal bytes. Dynamic values
// decode loosely: every signed integer becomes int64, every unsigned integer
// uint64 and every float float64.
type Codec[T any] struct{}

var _ codec.Codec[record.Record] = Codec[record.Record]{}

// New creates a MessagePack codec for records.
func New() Codec[record.Record] {
	return Codec[record.Record]{}
}

// For creates a MessagePack codec for a concrete type.
func For[T any]() Codec[T] {
	return Codec[T]{}
}

// Decode reads one value from data. Bytes left after the value are an error.
func (Codec[T]) Decode(data []byte) (T, error) {
	var v T
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&v); err != nil {
		var zero T
		return zero, codec.DecodeError(Format, err)
	}
	if r.Len() > 0 {
		var zero T
		return zero, codec.DecodeError(Format, fmt.Errorf("%d trailing bytes", r.Len()))
	}
	return v, nil
}

// Encode writes v.
func (Codec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	return buf.Bytes(), nil
}
