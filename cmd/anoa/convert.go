package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"
	"github.com/zoobzio/anoa/internal/config"
	"github.com/zoobzio/anoa/internal/convert"
)

type convertFlags struct {
	in        string
	out       string
	from      string
	to        string
	workers   int
	mode      string
	rateLimit float64
	textfile  string
	quiet     bool
}

var convertOpts convertFlags

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert records between formats",
	Example: `  anoa convert --from json --to avro --config pipeline.yaml < in.jsonl > out.avro
  anoa convert --config pipeline.yaml --in users.csv --out users.jsonl --workers 8`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the pipeline config and load its schemas",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	for _, cmd := range []*cobra.Command{convertCmd, checkCmd} {
		f := cmd.Flags()
		f.StringVar(&convertOpts.from, "from", "", "input format: json, csv, msgpack, avro, protobuf, sql")
		f.StringVar(&convertOpts.to, "to", "", "output format: json, csv, msgpack, avro, protobuf")
		f.IntVar(&convertOpts.workers, "workers", 0, "records converted in parallel")
		f.StringVar(&convertOpts.mode, "mode", "", "validation mode: strict drops, lax only counts")
	}
	f := convertCmd.Flags()
	f.StringVar(&convertOpts.in, "in", "", "input file (default stdin)")
	f.StringVar(&convertOpts.out, "out", "", "output file (default stdout)")
	f.Float64Var(&convertOpts.rateLimit, "rate-limit", 0, "records per second, 0 for unlimited")
	f.StringVar(&convertOpts.textfile, "metrics-textfile", "", "write label counts in Prometheus text format")
	f.BoolVarP(&convertOpts.quiet, "quiet", "q", false, "do not print the label report")
}

// applyFlags overrides config fields with the flags set on cmd.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("in") {
		cfg.Input.Path = convertOpts.in
	}
	if changed("out") {
		cfg.Output.Path = convertOpts.out
	}
	if changed("from") {
		cfg.Input.Format = convertOpts.from
	}
	if changed("to") {
		cfg.Output.Format = convertOpts.to
	}
	if changed("workers") {
		cfg.Pipeline.Workers = convertOpts.workers
	}
	if changed("mode") {
		cfg.Pipeline.Mode = convertOpts.mode
	}
	if changed("rate-limit") {
		cfg.Pipeline.RateLimit = convertOpts.rateLimit
	}
	if changed("metrics-textfile") {
		cfg.Metrics.Textfile = convertOpts.textfile
	}
	cfg.ApplyDefaults()
}

func prepare(cmd *cobra.Command) (*convert.Job, error) {
	cfg, err := loadConfig()
	if err != nil {
		stylelog.InitDefault()
		return nil, failf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	logger := setupLogging(cfg)

	job, err := convert.New(cfg, convert.WithLogger(logger))
	if err != nil {
		return nil, failf("failed to set up conversion: %w", err)
	}
	return job, nil
}

func runConvert(cmd *cobra.Command, _ []string) error {
	job, err := prepare(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := job.Run(ctx)
	if err != nil {
		return failf("conversion failed: %w", err)
	}
	if !convertOpts.quiet {
		if err := report.Print(cmd.ErrOrStderr()); err != nil {
			return failf("failed to print report: %w", err)
		}
	}
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	if _, err := prepare(cmd); err != nil {
		return err
	}
	cmd.Println("config ok")
	return nil
}
