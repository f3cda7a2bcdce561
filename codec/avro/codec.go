// Package avro is the single-datum Avro codec for records.
//
// Records decoded from JSON carry float64 numbers and strings where Avro
// wants int64, int32 or bytes. The codec compiles its schema once into a
// tree of converters that coerce a record into the Go types the Avro encoder
// accepts, so encoding does not walk the schema per record.
package avro

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/hamba/avro/v2"
	"github.com/zoobzio/anoa/codec"
	"github.com/zoobzio/anoa/record"
)

// Format is the name the codec registers under.
const Format = "avro"

// ErrSchema is returned for schemas the codec cannot serve.
var ErrSchema = errors.New("unsupported avro schema")

// Codec converts records to and from single Avro datums of one record schema.
type Codec struct {
	schema  avro.Schema
	convert convertFunc
}

var _ codec.Codec[record.Record] = (*Codec)(nil)

// Parse parses a JSON schema definition and creates a codec for it.
func Parse(schema string) (*Codec, error) {
	s, err := avro.Parse(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return New(s)
}

// New creates a codec for a record schema.
func New(schema avro.Schema) (*Codec, error) {
	if schema == nil || schema.Type() != avro.Record {
		return nil, fmt.Errorf("%w: top level must be a record", ErrSchema)
	}
	convert, err := compile(schema, map[string]convertFunc{})
	if err != nil {
		return nil, err
	}
	return &Codec{schema: schema, convert: convert}, nil
}

// Schema returns the codec's schema.
func (c *Codec) Schema() avro.Schema {
	return c.schema
}

// Decode reads one datum.
func (c *Codec) Decode(data []byte) (record.Record, error) {
	var r map[string]any
	if err := avro.Unmarshal(c.schema, data, &r); err != nil {
		return nil, codec.DecodeError(Format, err)
	}
	return r, nil
}

// Encode coerces r to the schema and writes it as one datum.
func (c *Codec) Encode(r record.Record) ([]byte, error) {
	v, err := c.convert(r)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	data, err := avro.Marshal(c.schema, v)
	if err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	return data, nil
}

type convertFunc func(any) (any, error)

// compile builds the converter for s. Named schemas are memoised so
// recursive references resolve to the converter being built.
func compile(s avro.Schema, named map[string]convertFunc) (convertFunc, error) {
	switch s.Type() {
	case avro.Ref:
		name := s.(*avro.RefSchema).Schema().(avro.NamedSchema).FullName()
		return func(v any) (any, error) {
			convert, ok := named[name]
			if !ok {
				return nil, fmt.Errorf("unresolved reference %q", name)
			}
			return convert(v)
		}, nil

	case avro.Record:
		rs := s.(*avro.RecordSchema)
		type field struct {
			name       string
			convert    convertFunc
			hasDefault bool
		}
		fields := make([]field, 0, len(rs.Fields()))
		var self convertFunc
		named[rs.FullName()] = func(v any) (any, error) { return self(v) }
		for _, f := range rs.Fields() {
			convert, err := compile(f.Type(), named)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name(), err)
			}
			fields = append(fields, field{name: f.Name(), convert: convert, hasDefault: f.HasDefault()})
		}
		self = func(v any) (any, error) {
			in, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: expected record, got %T", rs.FullName(), v)
			}
			out := make(map[string]any, len(fields))
			for _, f := range fields {
				fv, ok := in[f.name]
				cv, err := f.convert(fv)
				if err != nil {
					if !ok && f.hasDefault {
						// Left out so the encoder writes the schema default.
						continue
					}
					return nil, fmt.Errorf("field %q: %w", f.name, err)
				}
				out[f.name] = cv
			}
			return out, nil
		}
		return self, nil

	case avro.Array:
		items, err := compile(s.(*avro.ArraySchema).Items(), named)
		if err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			in, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("expected array, got %T", v)
			}
			out := make([]any, len(in))
			for i, item := range in {
				cv, err := items(item)
				if err != nil {
					return nil, fmt.Errorf("item %d: %w", i, err)
				}
				out[i] = cv
			}
			return out, nil
		}, nil

	case avro.Map:
		values, err := compile(s.(*avro.MapSchema).Values(), named)
		if err != nil {
			return nil, err
		}
		return func(v any) (any, error) {
			in, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected map, got %T", v)
			}
			out := make(map[string]any, len(in))
			for k, item := range in {
				cv, err := values(item)
				if err != nil {
					return nil, fmt.Errorf("key %q: %w", k, err)
				}
				out[k] = cv
			}
			return out, nil
		}, nil

	case avro.Union:
		return compileUnion(s.(*avro.UnionSchema), named)

	case avro.Enum:
		symbols := s.(*avro.EnumSchema).Symbols()
		return func(v any) (any, error) {
			str, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("expected enum symbol, got %T", v)
			}
			for _, sym := range symbols {
				if sym == str {
					return str, nil
				}
			}
			return nil, fmt.Errorf("unknown enum symbol %q", str)
		}, nil

	case avro.Null:
		return func(v any) (any, error) {
			if v != nil {
				return nil, fmt.Errorf("expected null, got %T", v)
			}
			return nil, nil
		}, nil

	case avro.Boolean:
		return toBool, nil
	case avro.Int:
		return toInt32, nil
	case avro.Long:
		return toInt64, nil
	case avro.Float:
		return toFloat32, nil
	case avro.Double:
		return toFloat64, nil
	case avro.String:
		return toString, nil
	case avro.Bytes:
		return toBytes, nil
	}
	return nil, fmt.Errorf("%w: type %q", ErrSchema, s.Type())
}

// compileUnion supports unions whose non-null branches are primitives or a
// single complex branch. A nil value selects null when the union allows it;
// otherwise the first branch that accepts the value wins.
func compileUnion(us *avro.UnionSchema, named map[string]convertFunc) (convertFunc, error) {
	nullable := false
	var branches []convertFunc
	complexBranches := 0
	for _, t := range us.Types() {
		switch t.Type() {
		case avro.Null:
			nullable = true
			continue
		case avro.Record, avro.Ref, avro.Array, avro.Map, avro.Enum:
			complexBranches++
		}
		convert, err := compile(t, named)
		if err != nil {
			return nil, err
		}
		branches = append(branches, convert)
	}
	if complexBranches > 1 || (complexBranches == 1 && len(branches) > 1) {
		return nil, fmt.Errorf("%w: union with a complex branch must have no other non-null branch", ErrSchema)
	}
	return func(v any) (any, error) {
		if v == nil {
			if nullable {
				return nil, nil
			}
			return nil, errors.New("null not allowed by union")
		}
		var errs []error
		for _, convert := range branches {
			cv, err := convert(v)
			if err == nil {
				return cv, nil
			}
			errs = append(errs, err)
		}
		return nil, fmt.Errorf("no union branch accepts %T: %w", v, errors.Join(errs...))
	}, nil
}

func toBool(v any) (any, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return nil, fmt.Errorf("expected boolean, got %T", v)
}

func toInt64(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows long", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return nil, fmt.Errorf("%v is not a long", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	}
	return nil, fmt.Errorf("expected long, got %T", v)
}

func toInt32(v any) (any, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("expected int: %w", err)
	}
	i := n.(int64)
	if i < math.MinInt32 || i > math.MaxInt32 {
		return nil, fmt.Errorf("%d overflows int", i)
	}
	return int32(i), nil
}

func toFloat64(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	}
	return nil, fmt.Errorf("expected double, got %T", v)
}

func toFloat32(v any) (any, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("expected float: %w", err)
	}
	return float32(f.(float64)), nil
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	}
	return nil, fmt.Errorf("expected string, got %T", v)
}

// toBytes accepts raw bytes or a base64 string, the form JSON and CSV carry
// binary fields in.
func toBytes(v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, fmt.Errorf("bytes: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", v)
}
