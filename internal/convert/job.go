// Package convert runs record conversion jobs: read, decode, prepare, encode
// and write every record, then report what happened to each one.
//
// A record that fails any step is dropped and labelled; the job itself fails
// only on setup errors such as an unreadable schema or an unreachable sink.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/anoa"
	"github.com/zoobzio/anoa/codec"
	csvcodec "github.com/zoobzio/anoa/codec/csv"
	"github.com/zoobzio/anoa/internal/config"
	"github.com/zoobzio/anoa/record"
	"github.com/zoobzio/anoa/sink"
	redissink "github.com/zoobzio/anoa/sink/redis"
	"github.com/zoobzio/anoa/source"
	sqlsource "github.com/zoobzio/anoa/source/sql"
	"github.com/zoobzio/clockz"
)

// Stage names used in record labels.
const (
	StagePrepare  = anoa.Name("prepare")
	StageRequire  = anoa.Name("require-fields")
	StageThrottle = anoa.Name("throttle")
	StageWrite    = anoa.Name("write")
)

// DecodeStage names the decode stage of format.
func DecodeStage(format string) anoa.Name { return "decode-" + format }

// EncodeStage names the encode stage of format.
func EncodeStage(format string) anoa.Name { return "encode-" + format }

// NullStage names the stage nulling path.
func NullStage(path string) anoa.Name { return "null-" + path }

// ErrHeader is returned when a CSV input does not start with the expected
// header row.
var ErrHeader = errors.New("bad csv header")

// Label is the metadata type of conversion jobs.
type Label = *anoa.Counted

// Job is one configured conversion. A Job may be run more than once when its
// input can be read more than once; each run gets a new run id.
type Job struct {
	cfg       *config.Config
	logger    *slog.Logger
	clock     clockz.Clock
	labels    *anoa.Interner
	decoder   codec.Decoder[record.Record]
	encoder   codec.Encoder[record.Record]
	csvIn     *csvcodec.Codec
	csvOut    *csvcodec.Codec
	nulls     []record.Path
	validator *record.Validator

	input  io.Reader
	output io.Writer
	pusher redissink.Pusher
	db     *sqlx.DB
	runID  string
}

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the job logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		j.logger = logger
	}
}

// WithClock sets the clock used to time runs.
func WithClock(clock clockz.Clock) Option {
	return func(j *Job) {
		j.clock = clock
	}
}

// WithInput reads records from r instead of input.path.
func WithInput(r io.Reader) Option {
	return func(j *Job) {
		j.input = r
	}
}

// WithOutput writes records to w instead of output.path.
func WithOutput(w io.Writer) Option {
	return func(j *Job) {
		j.output = w
	}
}

// WithPusher pushes records with p instead of dialling output.redis.url.
func WithPusher(p redissink.Pusher) Option {
	return func(j *Job) {
		j.pusher = p
	}
}

// WithDB queries db instead of opening input.sql.dsn.
func WithDB(db *sqlx.DB) Option {
	return func(j *Job) {
		j.db = db
	}
}

// WithRunID fixes the run id instead of generating one per run.
func WithRunID(id string) Option {
	return func(j *Job) {
		j.runID = id
	}
}

// New validates cfg and builds everything a run needs that does not depend
// on the input: codecs, field paths and the validator.
func New(cfg *config.Config, opts ...Option) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	j := &Job{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		clock:  clockz.RealClock,
		labels: anoa.NewInterner(),
	}
	for _, opt := range opts {
		opt(j)
	}

	if !cfg.FromSQL() {
		dec, err := newCodec(cfg, cfg.Input.Format)
		if err != nil {
			return nil, fmt.Errorf("input codec: %w", err)
		}
		j.decoder = dec
		if cfg.Input.Header {
			j.csvIn, _ = dec.(*csvcodec.Codec)
		}
	}
	enc, err := newCodec(cfg, cfg.Output.Format)
	if err != nil {
		return nil, fmt.Errorf("output codec: %w", err)
	}
	j.encoder = enc
	if cfg.Output.Header {
		j.csvOut, _ = enc.(*csvcodec.Codec)
	}

	for _, field := range cfg.Pipeline.Null {
		p, err := record.Compile(field)
		if err != nil {
			return nil, fmt.Errorf("pipeline.null: %w", err)
		}
		j.nulls = append(j.nulls, p)
	}
	if len(cfg.Pipeline.Required) > 0 {
		v, err := record.NewValidator(cfg.Pipeline.Required...)
		if err != nil {
			return nil, fmt.Errorf("pipeline.required: %w", err)
		}
		j.validator = v
	}
	return j, nil
}

// Labels returns the interner the job labels records with.
func (j *Job) Labels() *anoa.Interner {
	return j.labels
}

// Run converts every input record. Data errors never fail the run; they are
// counted in the report. The error is for setup and sink failures.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	runID := j.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := j.logger.With("run_id", runID)
	start := j.clock.Now()

	h := anoa.NewHandler(j.labels.Mapper()).WithClock(j.clock).WithContext(ctx)
	defer h.Close()
	_ = h.OnFailure(func(_ context.Context, e anoa.HandlerEvent) error { //nolint:errcheck
		logger.Debug("record failed", "stage", e.Stage, "error", e.Error)
		return nil
	})

	out, err := j.openSink(ctx)
	if err != nil {
		return nil, err
	}
	if j.csvOut != nil {
		header, err := j.csvOut.Header()
		if err == nil {
			err = out.Write(header)
		}
		if err != nil {
			return nil, errors.Join(fmt.Errorf("write header: %w", err), out.Close())
		}
	}

	prepare := j.prepare(h)
	defer prepare.Close()
	toBytes := j.finish(h, prepare.Stage(), out)

	var (
		results iter.Seq[anoa.Value[[]byte, Label]]
		srcErr  func() error
	)
	if j.cfg.FromSQL() {
		results, srcErr, err = j.fromSQL(ctx, h, toBytes, logger)
	} else {
		results, srcErr, err = j.fromStream(ctx, h, toBytes, logger)
	}
	if err != nil {
		return nil, errors.Join(err, out.Close())
	}

	var total int
	var counted iter.Seq[anoa.Value[[]byte, Label]] = func(yield func(anoa.Value[[]byte, Label]) bool) {
		for v := range results {
			total++
			if !yield(v) {
				return
			}
		}
	}
	counts := anoa.Count(counted, anoa.WithMarkers(j.labels.Present(), j.labels.Dropped()))

	closeErr := out.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close output: %w", closeErr)
	}
	if err := errors.Join(closeErr, srcErr()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		logger.Warn("run interrupted", "error", err)
	}

	report := &Report{
		RunID:    runID,
		Records:  total,
		Written:  counts.Get(j.labels.Present()),
		Counts:   counts,
		Duration: j.clock.Since(start),
	}
	logger.Info("run complete", "records", report.Records, "written", report.Written,
		"dropped", report.Records-report.Written, "labels", counts.Len(), "duration", report.Duration)

	if path := j.cfg.Metrics.Textfile; path != "" {
		if err := writeTextfile(path, j.cfg.Metrics.Namespace, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// prepare builds the record preparation sequence: field nulling, required
// field validation and pacing, in that order.
func (j *Job) prepare(h *anoa.Handler[Label]) *anoa.Sequence[record.Record, Label] {
	seq := anoa.NewSequence[record.Record, Label](StagePrepare).WithClock(j.clock)

	for _, p := range j.nulls {
		name := NullStage(p.String())
		seq.Push(anoa.NewStep(name, anoa.Apply(h, name, p.Null)))
	}

	if j.validator != nil {
		reject := func(r record.Record) []Label {
			reasons := j.validator.Missing(r)
			labels := make([]Label, len(reasons))
			for i, reason := range reasons {
				labels[i] = j.labels.Rejection(StageRequire, reason)
			}
			return labels
		}
		if j.cfg.Pipeline.Mode == config.ModeLax {
			seq.Push(anoa.NewStep(StageRequire, anoa.Stage[record.Record, record.Record, Label](
				func(v anoa.Value[record.Record, Label]) anoa.Value[record.Record, Label] {
					return anoa.FlatMap(v, func(r record.Record) anoa.Value[record.Record, Label] {
						return anoa.Of(r, reject(r)...)
					})
				})))
		} else {
			seq.Push(anoa.NewStep(StageRequire, anoa.Predicate(h, StageRequire, j.validator.Valid, reject)))
		}
	}

	if rate := j.cfg.Pipeline.RateLimit; rate > 0 {
		throttle := anoa.NewThrottle[record.Record](h, StageThrottle, rate, j.cfg.Pipeline.Burst)
		seq.Push(anoa.NewStep(StageThrottle, throttle.Stage()))
	}

	_ = seq.OnDropped(func(_ context.Context, e anoa.SequenceEvent) error { //nolint:errcheck
		j.logger.Debug("record dropped", "step", e.StepName, "step_number", e.StepNumber)
		return nil
	})
	return seq
}

// finish composes preparation, encoding and writing.
func (j *Job) finish(h *anoa.Handler[Label], prepare anoa.Stage[record.Record, record.Record, Label], out anoa.Sink[[]byte]) anoa.Stage[record.Record, []byte, Label] {
	encode := anoa.Apply(h, EncodeStage(j.cfg.Output.Format), j.encoder.Encode)
	write := anoa.Write(h, StageWrite, out)
	return func(v anoa.Value[record.Record, Label]) anoa.Value[[]byte, Label] {
		return write(encode(prepare(v)))
	}
}

func (j *Job) fromStream(ctx context.Context, h *anoa.Handler[Label], stage anoa.Stage[record.Record, []byte, Label], logger *slog.Logger) (iter.Seq[anoa.Value[[]byte, Label]], func() error, error) {
	in, closeIn, err := j.openInput()
	if err != nil {
		return nil, nil, err
	}

	opts := []source.Option{
		source.WithMaxSize(j.cfg.Input.MaxRecordSize),
		source.WithLogger(logger),
	}
	var raw iter.Seq[anoa.Value[[]byte, Label]]
	if j.cfg.Input.Framing == config.FramingDelimited {
		raw = source.Delimited(h, in, opts...)
	} else {
		raw = source.Lines(h, in, opts...)
	}

	var headerErr error
	if j.csvIn != nil {
		raw = checkHeader(raw, j.csvIn, &headerErr)
	}

	decode := anoa.Apply(h, DecodeStage(j.cfg.Input.Format), j.decoder.Decode)
	full := func(v anoa.Value[[]byte, Label]) anoa.Value[[]byte, Label] {
		return stage(decode(v))
	}

	done := func() error {
		return errors.Join(headerErr, closeIn())
	}
	return through(ctx, raw, j.cfg.Pipeline.Workers, full), done, nil
}

func (j *Job) fromSQL(ctx context.Context, h *anoa.Handler[Label], stage anoa.Stage[record.Record, []byte, Label], logger *slog.Logger) (iter.Seq[anoa.Value[[]byte, Label]], func() error, error) {
	db := j.db
	closeDB := func() error { return nil }
	if db == nil {
		var err error
		db, err = sqlx.Open(j.cfg.Input.SQL.Driver, j.cfg.Input.SQL.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, nil, errors.Join(fmt.Errorf("failed to ping database: %w", err), db.Close())
		}
		closeDB = db.Close
	}

	src := sqlsource.New(h, db, j.cfg.Input.SQL.Query).WithLogger(logger)
	done := func() error {
		return errors.Join(src.Err(), closeDB())
	}
	return through(ctx, src.Records(ctx), j.cfg.Pipeline.Workers, stage), done, nil
}

// through runs stage over seq, in parallel when more than one worker is
// configured.
func through[T any](ctx context.Context, seq iter.Seq[anoa.Value[T, Label]], workers int, stage anoa.Stage[T, []byte, Label]) iter.Seq[anoa.Value[[]byte, Label]] {
	if workers > 1 {
		return anoa.ParallelThrough(ctx, seq, workers, stage)
	}
	return anoa.Through(seq, stage)
}

// checkHeader consumes the first record of seq as the CSV header row. A
// missing or mismatched header stops the sequence and is stored in errp.
func checkHeader(seq iter.Seq[anoa.Value[[]byte, Label]], c *csvcodec.Codec, errp *error) iter.Seq[anoa.Value[[]byte, Label]] {
	return func(yield func(anoa.Value[[]byte, Label]) bool) {
		first := true
		for v := range seq {
			if first {
				first = false
				line, ok := v.Lookup()
				if !ok {
					*errp = fmt.Errorf("%w: header row unreadable: %v", ErrHeader, v.Metadata())
					return
				}
				if err := c.CheckHeader(line); err != nil {
					*errp = fmt.Errorf("%w: %w", ErrHeader, err)
					return
				}
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

func (j *Job) openInput() (io.Reader, func() error, error) {
	noop := func() error { return nil }
	if j.input != nil {
		return j.input, noop, nil
	}
	path := j.cfg.Input.Path
	if path == "" || path == "-" {
		return os.Stdin, noop, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, f.Close, nil
}

func (j *Job) openSink(ctx context.Context) (anoa.Sink[[]byte], error) {
	if j.cfg.ToRedis() {
		pusher := j.pusher
		if pusher == nil {
			client, err := dialRedis(ctx, j.cfg.Output.Redis)
			if err != nil {
				return nil, err
			}
			return &closingSink{
				Sink:  redissink.New(ctx, client, j.cfg.Output.Redis.Key, redissink.WithBatchSize(j.cfg.Output.Redis.BatchSize)),
				close: client.Close,
			}, nil
		}
		return redissink.New(ctx, pusher, j.cfg.Output.Redis.Key, redissink.WithBatchSize(j.cfg.Output.Redis.BatchSize)), nil
	}

	w := j.output
	if w == nil {
		path := j.cfg.Output.Path
		if path == "" || path == "-" {
			// Keep stdout open after the sink closes.
			w = struct{ io.Writer }{os.Stdout}
		} else {
			f, err := os.Create(path)
			if err != nil {
				return nil, fmt.Errorf("failed to create output: %w", err)
			}
			w = f
		}
	}
	if j.cfg.Output.Framing == config.FramingDelimited {
		return sink.Delimited(w), nil
	}
	return sink.Lines(w), nil
}

// dialRedis connects to the configured Redis server and checks it answers.
func dialRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect to redis: %w", err), client.Close())
	}
	return client, nil
}

// closingSink closes an owned client after the sink it feeds.
type closingSink struct {
	anoa.Sink[[]byte]
	close func() error
}

func (s *closingSink) Close() error {
	return errors.Join(s.Sink.Close(), s.close())
}
