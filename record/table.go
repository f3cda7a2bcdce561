package record

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/zoobzio/anoa"
)

// ColumnType is the declared type of a tabular column.
type ColumnType string

// Supported column types.
const (
	String ColumnType = "string"
	Int    ColumnType = "int"
	Float  ColumnType = "float"
	Bool   ColumnType = "bool"
	Bytes  ColumnType = "bytes"
	JSON   ColumnType = "json"
)

// ErrInvalidColumn is returned by CompileTable for unusable column definitions.
var ErrInvalidColumn = errors.New("invalid column")

// Column declares one tabular column. Path defaults to Name and may point
// into nested records.
type Column struct {
	Name string     `yaml:"name"`
	Type ColumnType `yaml:"type"`
	Path string     `yaml:"path"`
}

type (
	formatFunc func(any) (string, error)
	parseFunc  func(string) (any, error)
)

type column struct {
	name   string
	path   Path
	format formatFunc
	parse  parseFunc
}

// Table converts records to and from rows of text cells. Each column's
// formatter and parser is chosen once from its declared type, so rows are
// converted without dispatching on the type again.
type Table struct {
	columns []column
}

// CompileTable validates columns and builds their converters.
func CompileTable(columns []Column) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidColumn)
	}
	seen := make(map[string]struct{}, len(columns))
	t := &Table{columns: make([]column, 0, len(columns))}
	for _, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidColumn)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidColumn, c.Name)
		}
		seen[c.Name] = struct{}{}

		path := c.Path
		if path == "" {
			path = c.Name
		}
		p, err := Compile(path)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}

		typ := c.Type
		if typ == "" {
			typ = String
		}
		format, parse, ok := converters(typ)
		if !ok {
			return nil, fmt.Errorf("%w: column %q has unknown type %q", ErrInvalidColumn, c.Name, c.Type)
		}
		t.columns = append(t.columns, column{name: c.Name, path: p, format: format, parse: parse})
	}
	return t, nil
}

func converters(typ ColumnType) (formatFunc, parseFunc, bool) {
	switch typ {
	case String:
		return formatString, parseString, true
	case Int:
		return formatInt, parseInt, true
	case Float:
		return formatFloat, parseFloat, true
	case Bool:
		return formatBool, parseBool, true
	case Bytes:
		return formatBytes, parseBytes, true
	case JSON:
		return formatJSON, parseJSON, true
	}
	return nil, nil, false
}

// Header returns the column names.
func (t *Table) Header() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.name
	}
	return out
}

// Len returns the number of columns.
func (t *Table) Len() int {
	return len(t.columns)
}

// Row formats r as one row. A column whose path does not resolve, or resolves
// to nil, becomes an empty cell. Values that do not fit the column type are
// errors wrapping anoa.ErrEncode.
func (t *Table) Row(r Record) ([]string, error) {
	row := make([]string, len(t.columns))
	for i, c := range t.columns {
		v, err := c.path.Get(r)
		if err != nil || v == nil {
			continue
		}
		cell, err := c.format(v)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", anoa.ErrEncode, c.name, err)
		}
		row[i] = cell
	}
	return row, nil
}

// Record parses one row back into a record. Empty cells become nil. Cells
// that do not parse as the column type are errors wrapping anoa.ErrDecode.
func (t *Table) Record(row []string) (Record, error) {
	if len(row) != len(t.columns) {
		return nil, fmt.Errorf("%w: expected %d cells, got %d", anoa.ErrDecode, len(t.columns), len(row))
	}
	r := make(Record, len(t.columns))
	for i, c := range t.columns {
		var v any
		if row[i] != "" {
			parsed, err := c.parse(row[i])
			if err != nil {
				return nil, fmt.Errorf("%w: column %q: %w", anoa.ErrDecode, c.name, err)
			}
			v = parsed
		}
		r = place(r, c.path, v)
	}
	return r, nil
}

// place stores v at p, creating intermediate records as needed.
func place(r Record, p Path, v any) Record {
	cur := r
	for _, seg := range p.segments[:len(p.segments)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[p.segments[len(p.segments)-1]] = v
	return r
}

func formatString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case map[string]any, []any:
		return "", fmt.Errorf("cannot format %T as string", v)
	}
	return fmt.Sprint(v), nil
}

func parseString(s string) (any, error) {
	return s, nil
}

func formatInt(v any) (string, error) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("%v is not an integer", x)
		}
		return strconv.FormatFloat(x, 'f', 0, 64), nil
	case json.Number:
		if _, err := x.Int64(); err != nil {
			return "", err
		}
		return x.String(), nil
	case string:
		if _, err := strconv.ParseInt(x, 10, 64); err != nil {
			return "", err
		}
		return x, nil
	}
	return "", fmt.Errorf("cannot format %T as int", v)
}

func parseInt(s string) (any, error) {
	return strconv.ParseInt(s, 10, 64)
}

func formatFloat(v any) (string, error) {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case json.Number:
		if _, err := x.Float64(); err != nil {
			return "", err
		}
		return x.String(), nil
	case string:
		if _, err := strconv.ParseFloat(x, 64); err != nil {
			return "", err
		}
		return x, nil
	}
	return "", fmt.Errorf("cannot format %T as float", v)
}

func parseFloat(s string) (any, error) {
	return strconv.ParseFloat(s, 64)
}

func formatBool(v any) (string, error) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("cannot format %T as bool", v)
}

func parseBool(s string) (any, error) {
	return strconv.ParseBool(s)
}

func formatBytes(v any) (string, error) {
	switch x := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case string:
		return base64.StdEncoding.EncodeToString([]byte(x)), nil
	}
	return "", fmt.Errorf("cannot format %T as bytes", v)
}

func parseBytes(s string) (any, error) {
	return base64.StdEncoding.DecodeString(s)
}

func formatJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
