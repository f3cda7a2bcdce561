package convert

import (
	"fmt"
	"os"

	"github.com/zoobzio/anoa/codec"
	avrocodec "github.com/zoobzio/anoa/codec/avro"
	csvcodec "github.com/zoobzio/anoa/codec/csv"
	jsoncodec "github.com/zoobzio/anoa/codec/json"
	msgpackcodec "github.com/zoobzio/anoa/codec/msgpack"
	protocodec "github.com/zoobzio/anoa/codec/protobuf"
	"github.com/zoobzio/anoa/internal/config"
	"github.com/zoobzio/anoa/record"
)

// newCodec builds the record codec for format from the job's format settings.
// Schema and descriptor files are read here, once per job.
func newCodec(cfg *config.Config, format string) (codec.Codec[record.Record], error) {
	switch format {
	case config.FormatJSON:
		var opts []jsoncodec.Option
		if cfg.Formats.JSON.UseNumber {
			opts = append(opts, jsoncodec.WithNumbers())
		}
		return jsoncodec.New(opts...), nil

	case config.FormatCSV:
		return newCSVCodec(cfg)

	case config.FormatMsgpack:
		return msgpackcodec.New(), nil

	case config.FormatAvro:
		schema := cfg.Formats.Avro.Schema
		if path := cfg.Formats.Avro.SchemaFile; path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read avro schema: %w", err)
			}
			schema = string(data)
		}
		return avrocodec.Parse(schema)

	case config.FormatProtobuf:
		if cfg.Formats.Protobuf.Message == "" {
			return protocodec.NewStruct(), nil
		}
		data, err := os.ReadFile(cfg.Formats.Protobuf.DescriptorSet)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor set: %w", err)
		}
		desc, err := protocodec.LoadDescriptor(data, cfg.Formats.Protobuf.Message)
		if err != nil {
			return nil, err
		}
		return protocodec.NewMessage(desc), nil
	}
	return nil, fmt.Errorf("%w: no codec for format %q", config.ErrInvalid, format)
}

func newCSVCodec(cfg *config.Config) (*csvcodec.Codec, error) {
	table, err := record.CompileTable(cfg.Formats.CSV.Columns)
	if err != nil {
		return nil, err
	}
	comma := []rune(cfg.Formats.CSV.Comma)[0]
	return csvcodec.New(table, csvcodec.WithComma(comma)), nil
}
