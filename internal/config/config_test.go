package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"unknown input format":  {func(c *Config) { c.Input.Format = "xml" }, `input.format "xml"`},
		"sql output":            {func(c *Config) { c.Output.Format = FormatSQL }, `output.format "sql"`},
		"bad framing":           {func(c *Config) { c.Output.Framing = "chunked" }, `output.framing "chunked"`},
		"sql without query":     {func(c *Config) { c.Input.Format = FormatSQL; c.Input.SQL.Driver = "sqlite3" }, "input.sql needs a driver and a query"},
		"redis without key":     {func(c *Config) { c.Output.Redis.URL = "redis://x" }, "output.redis.key is required"},
		"csv without columns":   {func(c *Config) { c.Output.Format = FormatCSV }, "formats.csv.columns is required"},
		"avro without schema":   {func(c *Config) { c.Input.Format = FormatAvro }, "formats.avro needs schema"},
		"message without set":   {func(c *Config) { c.Formats.Protobuf.Message = "pkg.Msg" }, "needs descriptor_set"},
		"zero workers":          {func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		"negative rate":         {func(c *Config) { c.Pipeline.RateLimit = -1 }, "pipeline.rate_limit"},
		"unknown mode":          {func(c *Config) { c.Pipeline.Mode = "loose" }, `pipeline.mode "loose"`},
		"multi character comma": {func(c *Config) { c.Input.Format = FormatCSV; c.Formats.CSV.Comma = ";;" }, "formats.csv.comma"},
	} {
		t.Run(name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	cfg.Input.Format = "xml"
	cfg.Pipeline.Workers = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.format")
	assert.Contains(t, err.Error(), "pipeline.workers")
}
