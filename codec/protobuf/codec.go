// Package protobuf holds the Protocol Buffers codecs.
//
// Records have no fixed shape, so three codecs cover the common cases:
// StructCodec stores any record as a google.protobuf.Struct, MessageCodec
// maps records onto a message type loaded at runtime from a descriptor set,
// and Typed serves generated message types directly.
package protobuf

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zoobzio/anoa/codec"
	"github.com/zoobzio/anoa/record"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Format is the name the codecs register under.
const Format = "protobuf"

// ErrDescriptor is returned when a message descriptor cannot be loaded.
var ErrDescriptor = errors.New("invalid message descriptor")

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// StructCodec converts records to and from google.protobuf.Struct messages.
// Numbers decode as float64, as they do from JSON.
type StructCodec struct{}

var _ codec.Codec[record.Record] = StructCodec{}

// NewStruct creates a Struct codec.
func NewStruct() StructCodec {
	return StructCodec{}
}

// Decode reads one Struct message.
func (StructCodec) Decode(data []byte) (record.Record, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, codec.DecodeError(Format, err)
	}
	return s.AsMap(), nil
}

// Encode writes r as one Struct message.
func (StructCodec) Encode(r record.Record) ([]byte, error) {
	s, err := structpb.NewStruct(r)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	data, err := marshalOptions.Marshal(s)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	return data, nil
}

// MessageCodec converts records to and from one message type through its
// canonical JSON mapping. Record keys may use either the proto field names or
// their JSON names; decoded records use the proto field names.
type MessageCodec struct {
	desc protoreflect.MessageDescriptor
}

var _ codec.Codec[record.Record] = (*MessageCodec)(nil)

// NewMessage creates a codec for the message described by desc.
func NewMessage(desc protoreflect.MessageDescriptor) *MessageCodec {
	if desc == nil {
		panic("descriptor can't be nil")
	}
	return &MessageCodec{desc: desc}
}

// Descriptor returns the message descriptor.
func (c *MessageCodec) Descriptor() protoreflect.MessageDescriptor {
	return c.desc
}

// Decode reads one message.
func (c *MessageCodec) Decode(data []byte) (record.Record, error) {
	msg := dynamicpb.NewMessage(c.desc)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, codec.DecodeError(Format, err)
	}
	js, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
	if err != nil {
		return nil, codec.DecodeError(Format, err)
	}
	var r record.Record
	if err := json.Unmarshal(js, &r); err != nil {
		return nil, codec.DecodeError(Format, err)
	}
	return r, nil
}

// Encode writes r as one message. Unknown keys are an error.
func (c *MessageCodec) Encode(r record.Record) ([]byte, error) {
	js, err := json.Marshal(r)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	msg := dynamicpb.NewMessage(c.desc)
	if err := protojson.Unmarshal(js, msg); err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	data, err := marshalOptions.Marshal(msg)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	return data, nil
}

// LoadDescriptor finds the message called name in a serialized
// google.protobuf.FileDescriptorSet, as written by protoc --descriptor_set_out
// with --include_imports.
func LoadDescriptor(set []byte, name string) (protoreflect.MessageDescriptor, error) {
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(set, &fds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescriptor, err)
	}
	files, err := protodesc.NewFiles(&fds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescriptor, err)
	}
	d, err := files.FindDescriptorByName(protoreflect.FullName(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDescriptor, name, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a message", ErrDescriptor, name)
	}
	return md, nil
}

// Typed converts generated messages of type T.
type Typed[T proto.Message] struct {
	newFn func() T
}

// NewTyped creates a codec for T. newFn returns an empty message to decode
// into.
func NewTyped[T proto.Message](newFn func() T) *Typed[T] {
	if newFn == nil {
		panic("newFn can't be nil")
	}
	return &Typed[T]{newFn: newFn}
}

// Decode reads one message.
func (c *Typed[T]) Decode(data []byte) (T, error) {
	msg := c.newFn()
	if err := proto.Unmarshal(data, msg); err != nil {
		var zero T
		return zero, codec.DecodeError(Format, err)
	}
	return msg, nil
}

// Encode writes msg.
func (c *Typed[T]) Encode(msg T) ([]byte, error) {
	data, err := marshalOptions.Marshal(msg)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	return data, nil
}
