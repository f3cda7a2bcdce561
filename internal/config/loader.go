package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultMaxRecordSize bounds a single input record.
const DefaultMaxRecordSize = 16 << 20

// Load reads configuration from a YAML file and expands environment
// variables in it. Defaults are not applied yet so command line flags can
// still override fields whose defaults depend on others, such as framing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.UnmarshalStrict([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field that has a default. It is safe to
// call again after overriding fields.
func (c *Config) ApplyDefaults() {
	if c.Input.Format == "" {
		c.Input.Format = FormatJSON
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatJSON
	}
	if c.Input.Framing == "" {
		c.Input.Framing = DefaultFraming(c.Input.Format)
	}
	if c.Output.Framing == "" {
		c.Output.Framing = DefaultFraming(c.Output.Format)
	}
	if c.Input.MaxRecordSize == 0 {
		c.Input.MaxRecordSize = DefaultMaxRecordSize
	}
	if c.Output.Redis.BatchSize == 0 {
		c.Output.Redis.BatchSize = 128
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 1
	}
	if c.Pipeline.Mode == "" {
		c.Pipeline.Mode = ModeStrict
	}
	if c.Pipeline.RateLimit > 0 && c.Pipeline.Burst == 0 {
		c.Pipeline.Burst = int(math.Max(1, math.Ceil(c.Pipeline.RateLimit)))
	}
	if c.Formats.CSV.Comma == "" {
		c.Formats.CSV.Comma = ","
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "anoa"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// DefaultFraming returns the framing a format is usually stored with: text
// formats one per line, binary formats length prefixed.
func DefaultFraming(format string) string {
	switch format {
	case FormatMsgpack, FormatAvro, FormatProtobuf:
		return FramingDelimited
	}
	return FramingLines
}
