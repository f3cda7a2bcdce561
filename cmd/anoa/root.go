package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"
	"github.com/zoobzio/anoa/internal/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "anoa",
	Short: "Resilient record conversion",
	Long: `anoa reads records, converts them between JSON, CSV, MessagePack, Avro and
Protobuf, and reports every record it had to drop with the stage and cause.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "pipeline config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(convertCmd, checkCmd)
}

// loadConfig reads .env and the pipeline file. Defaults are applied by the
// caller after flags are merged.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	if cfgPath == "" {
		return &config.Config{}, nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging initialises the default logger, writing to stderr so stdout
// stays free for records.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		level = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		level = slog.LevelWarn
	case cfg.Logging.Level == "error":
		level = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	slog.Debug("Logger initialized", "level", level.String())
	return slog.Default()
}

func failf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	slog.Error("anoa failed", "error", err)
	return err
}
