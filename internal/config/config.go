// Package config holds the conversion job configuration.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/zoobzio/anoa/record"
)

// Formats the job can read and write. SQL is input only.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMsgpack  = "msgpack"
	FormatAvro     = "avro"
	FormatProtobuf = "protobuf"
	FormatSQL      = "sql"
)

// Record framings for file input and output.
const (
	FramingLines     = "lines"
	FramingDelimited = "delimited"
)

// Validation modes.
const (
	ModeStrict = "strict" // failed validation drops the record
	ModeLax    = "lax"    // failed validation is counted, the record is kept
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level configuration of a conversion job.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Output   OutputConfig   `yaml:"output"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Formats  FormatsConfig  `yaml:"formats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig describes where records come from.
type InputConfig struct {
	Format        string    `yaml:"format"`
	Path          string    `yaml:"path"`    // empty or "-" reads stdin
	Framing       string    `yaml:"framing"` // lines, delimited
	Header        bool      `yaml:"header"`  // csv: first line is a header row
	MaxRecordSize int       `yaml:"max_record_size"`
	SQL           SQLConfig `yaml:"sql"`
}

// SQLConfig describes a query input.
type SQLConfig struct {
	Driver string `yaml:"driver"` // sqlite3, pgx, postgres
	DSN    string `yaml:"dsn"`
	Query  string `yaml:"query"`
}

// OutputConfig describes where records go.
type OutputConfig struct {
	Format  string      `yaml:"format"`
	Path    string      `yaml:"path"` // empty or "-" writes stdout
	Framing string      `yaml:"framing"`
	Header  bool        `yaml:"header"` // csv: write a header row first
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig sends output to a Redis list instead of a file.
type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	Key       string `yaml:"key"`
	BatchSize int    `yaml:"batch_size"`
}

// PipelineConfig holds the record processing settings.
type PipelineConfig struct {
	Workers   int      `yaml:"workers"`
	RateLimit float64  `yaml:"rate_limit"` // records per second, 0 = unlimited
	Burst     int      `yaml:"burst"`
	Null      []string `yaml:"null"`     // field paths set to null
	Required  []string `yaml:"required"` // fields every record must have
	Mode      string   `yaml:"mode"`     // strict, lax
}

// FormatsConfig holds format specific settings.
type FormatsConfig struct {
	JSON     JSONConfig     `yaml:"json"`
	CSV      CSVConfig      `yaml:"csv"`
	Avro     AvroConfig     `yaml:"avro"`
	Protobuf ProtobufConfig `yaml:"protobuf"`
}

// JSONConfig configures the JSON codec.
type JSONConfig struct {
	UseNumber bool `yaml:"use_number"`
}

// CSVConfig configures the CSV codec.
type CSVConfig struct {
	Columns []record.Column `yaml:"columns"`
	Comma   string          `yaml:"comma"`
}

// AvroConfig configures the Avro codec. SchemaFile wins over Schema.
type AvroConfig struct {
	Schema     string `yaml:"schema"`
	SchemaFile string `yaml:"schema_file"`
}

// ProtobufConfig configures the Protobuf codec. Without a message name,
// records are stored as google.protobuf.Struct.
type ProtobufConfig struct {
	DescriptorSet string `yaml:"descriptor_set"`
	Message       string `yaml:"message"`
}

// MetricsConfig configures the Prometheus report.
type MetricsConfig struct {
	Textfile  string `yaml:"textfile"` // node_exporter textfile collector path
	Namespace string `yaml:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// FromSQL reports whether records are read with a query.
func (c *Config) FromSQL() bool {
	return c.Input.Format == FormatSQL
}

// ToRedis reports whether records are pushed to Redis.
func (c *Config) ToRedis() bool {
	return c.Output.Redis.URL != ""
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	inputs := []string{FormatJSON, FormatCSV, FormatMsgpack, FormatAvro, FormatProtobuf, FormatSQL}
	if !slices.Contains(inputs, c.Input.Format) {
		add("input.format %q is not one of %v", c.Input.Format, inputs)
	}
	if !slices.Contains(inputs[:5], c.Output.Format) {
		add("output.format %q is not one of %v", c.Output.Format, inputs[:5])
	}
	for _, f := range []struct{ name, framing string }{{"input", c.Input.Framing}, {"output", c.Output.Framing}} {
		if f.framing != FramingLines && f.framing != FramingDelimited {
			add("%s.framing %q is not lines or delimited", f.name, f.framing)
		}
	}
	if c.FromSQL() && (c.Input.SQL.Driver == "" || c.Input.SQL.Query == "") {
		add("input.sql needs a driver and a query")
	}
	if c.ToRedis() && c.Output.Redis.Key == "" {
		add("output.redis.key is required")
	}
	if c.uses(FormatCSV) && len(c.Formats.CSV.Columns) == 0 {
		add("formats.csv.columns is required for csv")
	}
	if c.uses(FormatCSV) && (len([]rune(c.Formats.CSV.Comma)) != 1 || strings.ContainsAny(c.Formats.CSV.Comma, "\"\r\n")) {
		add("formats.csv.comma must be a single character other than a quote or line break")
	}
	if c.uses(FormatAvro) && c.Formats.Avro.Schema == "" && c.Formats.Avro.SchemaFile == "" {
		add("formats.avro needs schema or schema_file")
	}
	if c.Formats.Protobuf.Message != "" && c.Formats.Protobuf.DescriptorSet == "" {
		add("formats.protobuf.message needs descriptor_set")
	}
	if c.Pipeline.Workers < 1 {
		add("pipeline.workers must be >= 1")
	}
	if c.Pipeline.RateLimit < 0 {
		add("pipeline.rate_limit must be >= 0")
	}
	if c.Pipeline.Mode != ModeStrict && c.Pipeline.Mode != ModeLax {
		add("pipeline.mode %q is not strict or lax", c.Pipeline.Mode)
	}
	if c.Input.MaxRecordSize < 1 {
		add("input.max_record_size must be >= 1")
	}
	return errors.Join(errs...)
}

func (c *Config) uses(format string) bool {
	return c.Input.Format == format || c.Output.Format == format
}
