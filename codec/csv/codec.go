// Package csv is the single-row CSV codec for records. Each record is one
// row whose cells are described by a record.Table.
package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/zoobzio/anoa/codec"
	"github.com/zoobzio/anoa/record"
)

// Format is the name the codec registers under.
const Format = "csv"

// ErrHeaderMismatch is returned by CheckHeader when a header row does not
// name the table's columns in order.
var ErrHeaderMismatch = errors.New("header mismatch")

// Codec converts between records and single CSV rows. Rows are framed by the
// source or sink, so cells containing line breaks are not supported.
type Codec struct {
	table *record.Table
	comma rune
}

var _ codec.Codec[record.Record] = (*Codec)(nil)

// Option configures a Codec.
type Option func(*Codec)

// WithComma sets the field delimiter. Panics on a delimiter encoding/csv
// rejects.
func WithComma(r rune) Option {
	if r == '\r' || r == '\n' || r == '"' || r == 0xFFFD || r <= 0 {
		panic(fmt.Sprintf("invalid csv delimiter %q", r))
	}
	return func(c *Codec) {
		c.comma = r
	}
}

// New creates a codec for table.
func New(table *record.Table, opts ...Option) *Codec {
	if table == nil {
		panic("table can't be nil")
	}
	c := &Codec{table: table, comma: ','}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode parses data as exactly one row.
func (c *Codec) Decode(data []byte) (record.Record, error) {
	row, err := c.read(data)
	if err != nil {
		return nil, err
	}
	return c.table.Record(row)
}

// Encode formats r as one row without a trailing newline.
func (c *Codec) Encode(r record.Record) ([]byte, error) {
	row, err := c.table.Row(r)
	if err != nil {
		return nil, err
	}
	return c.write(row)
}

// Header returns the encoded header row.
func (c *Codec) Header() ([]byte, error) {
	return c.write(c.table.Header())
}

// CheckHeader reports whether data is the header row of the table.
func (c *Codec) CheckHeader(data []byte) error {
	row, err := c.read(data)
	if err != nil {
		return err
	}
	if want := c.table.Header(); !slices.Equal(row, want) {
		return fmt.Errorf("%w: expected %v, got %v", ErrHeaderMismatch, want, row)
	}
	return nil
}

func (c *Codec) read(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = c.comma
	r.FieldsPerRecord = -1
	row, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, codec.DecodeError(Format, err)
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		return nil, codec.DecodeError(Format, errors.New("more than one row"))
	}
	return row, nil
}

func (c *Codec) write(row []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = c.comma
	if err := w.Write(row); err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, codec.EncodeError(Format, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
