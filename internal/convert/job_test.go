package convert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/anoa/internal/config"
	"github.com/zoobzio/anoa/record"
	"github.com/zoobzio/clockz"
)

const people = `{"id":1,"user":{"email":"a@example.com"}}
{"id":2}
{"user":{"email":"b@example.com"}}
not json
{"id":5,"user":{"email":"e@example.com"}}
`

func newConfig(mutate func(*config.Config)) *config.Config {
	var cfg config.Config
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.ApplyDefaults()
	return &cfg
}

func run(t *testing.T, cfg *config.Config, opts ...Option) *Report {
	t.Helper()
	opts = append([]Option{WithRunID("test-run"), WithClock(clockz.NewFakeClock())}, opts...)
	job, err := New(cfg, opts...)
	require.NoError(t, err)
	report, err := job.Run(context.Background())
	require.NoError(t, err)
	return report
}

// labelled sums the counts of every label starting with prefix.
func labelled(r *Report, prefix string) int {
	n := 0
	for label, c := range r.Counts.All() {
		if strings.HasPrefix(label.String(), prefix) {
			n += c
		}
	}
	return n
}

func TestRunStrict(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Pipeline.Null = []string{"user.email"}
		c.Pipeline.Required = []string{"id"}
	})

	var out bytes.Buffer
	report := run(t, cfg, WithInput(strings.NewReader(people)), WithOutput(&out))

	assert.Equal(t, "{\"id\":1,\"user\":{\"email\":null}}\n{\"id\":5,\"user\":{\"email\":null}}\n", out.String())
	assert.Equal(t, 5, report.Records)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 3, report.Dropped())
	assert.Equal(t, "test-run", report.RunID)

	assert.Equal(t, 1, labelled(report, `[null-user.email]: field-access user.email: field "user" not found`))
	assert.Equal(t, 1, labelled(report, "[decode-json]: decode json: "))
	assert.Equal(t, 1, labelled(report, `[require-fields]: validation missing required field "id"`))
	assert.Equal(t, 2, labelled(report, "<present>"))
	assert.Equal(t, 0, labelled(report, "<dropped>"))
}

func TestRunLaxKeepsInvalidRecords(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Pipeline.Required = []string{"id", "user.email"}
		c.Pipeline.Mode = config.ModeLax
	})

	var out bytes.Buffer
	report := run(t, cfg, WithInput(strings.NewReader(people)), WithOutput(&out))

	assert.Equal(t, 4, report.Written)
	assert.Equal(t, 1, labelled(report, `[require-fields]: validation missing required field "id"`))
	assert.Equal(t, 1, labelled(report, `[require-fields]: validation missing required field "user.email"`))
	assert.Equal(t, 4, strings.Count(out.String(), "\n"))
}

func TestRunStrictCountsEveryMissingField(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Pipeline.Required = []string{"id", "user.email"}
	})

	report := run(t, cfg, WithInput(strings.NewReader("{}\n")), WithOutput(&bytes.Buffer{}))

	assert.Equal(t, 0, report.Written)
	assert.Equal(t, 2, labelled(report, "[require-fields]: "))
	assert.Equal(t, 0, labelled(report, "<dropped>"))
}

func TestRunRoundTripThroughAvro(t *testing.T) {
	schema := `{"type": "record", "name": "Person", "fields": [
		{"name": "id", "type": "long"},
		{"name": "email", "type": ["null", "string"], "default": null}
	]}`

	toAvro := newConfig(func(c *config.Config) {
		c.Output.Format = config.FormatAvro
		c.Formats.Avro.Schema = schema
	})
	var encoded bytes.Buffer
	report := run(t, toAvro, WithInput(strings.NewReader("{\"id\":1,\"email\":\"a@x\"}\n{\"id\":2}\n{\"id\":\"three\"}\n")), WithOutput(&encoded))
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 1, labelled(report, "[encode-avro]: encode "))

	fromAvro := newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatAvro
		c.Formats.Avro.Schema = schema
	})
	var decoded bytes.Buffer
	report = run(t, fromAvro, WithInput(&encoded), WithOutput(&decoded))
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, "{\"email\":\"a@x\",\"id\":1}\n{\"email\":null,\"id\":2}\n", decoded.String())
}

func TestRunCSV(t *testing.T) {
	columns := []record.Column{
		{Name: "id", Type: record.Int},
		{Name: "email", Path: "user.email"},
	}

	cfg := newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatCSV
		c.Input.Header = true
		c.Output.Format = config.FormatMsgpack
		c.Formats.CSV.Columns = columns
	})
	var packed bytes.Buffer
	report := run(t, cfg, WithInput(strings.NewReader("id,email\n1,a@x\nx,b@x\n3,\n")), WithOutput(&packed))
	assert.Equal(t, 3, report.Records)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 1, labelled(report, `[decode-csv]: decode column "id": `))

	back := newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatMsgpack
		c.Output.Format = config.FormatCSV
		c.Output.Header = true
		c.Formats.CSV.Columns = columns
	})
	var out bytes.Buffer
	report = run(t, back, WithInput(&packed), WithOutput(&out))
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, "id,email\n1,a@x\n3,\n", out.String())
}

func TestRunCSVHeaderMismatch(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatCSV
		c.Input.Header = true
		c.Formats.CSV.Columns = []record.Column{{Name: "id"}}
	})

	job, err := New(cfg, WithInput(strings.NewReader("name\nada\n")), WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	assert.ErrorIs(t, err, ErrHeader)
}

type closeFailure struct {
	bytes.Buffer
}

func (*closeFailure) Close() error { return errors.New("disk full") }

func TestRunReportsSourceErrorWhenOutputCloseFails(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatCSV
		c.Input.Header = true
		c.Formats.CSV.Columns = []record.Column{{Name: "id"}}
	})

	job, err := New(cfg, WithInput(strings.NewReader("name\nada\n")), WithOutput(&closeFailure{}))
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	assert.ErrorContains(t, err, "close output: disk full")
	assert.ErrorIs(t, err, ErrHeader)
}

func TestRunParallel(t *testing.T) {
	var in strings.Builder
	for i := range 200 {
		if i%10 == 0 {
			in.WriteString("{broken\n")
			continue
		}
		in.WriteString(`{"n":` + strings.Repeat("1", 1+i%5) + "}\n")
	}

	cfg := newConfig(func(c *config.Config) {
		c.Pipeline.Workers = 8
	})
	var out bytes.Buffer
	report := run(t, cfg, WithInput(strings.NewReader(in.String())), WithOutput(&out))

	assert.Equal(t, 200, report.Records)
	assert.Equal(t, 180, report.Written)
	assert.Equal(t, 20, labelled(report, "[decode-json]: "))
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Len(t, lines, 180)
}

func TestRunFromSQL(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	db.MustExec(`CREATE TABLE events (id INTEGER, kind TEXT)`)
	db.MustExec(`INSERT INTO events VALUES (1, 'open'), (2, NULL), (3, 'close')`)

	cfg := newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatSQL
		c.Input.SQL = config.SQLConfig{Driver: "sqlite3", Query: "SELECT id, kind FROM events ORDER BY id"}
		c.Pipeline.Required = []string{"kind"}
	})
	var out bytes.Buffer
	report := run(t, cfg, WithDB(db), WithOutput(&out))

	assert.Equal(t, 3, report.Records)
	assert.Equal(t, "{\"id\":1,\"kind\":\"open\"}\n{\"id\":3,\"kind\":\"close\"}\n", out.String())
	assert.Equal(t, 1, labelled(report, `[require-fields]: validation missing required field "kind"`))
}

func TestRunSQLQueryError(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatSQL
		c.Input.SQL = config.SQLConfig{Driver: "sqlite3", Query: "SELECT * FROM nowhere"}
	})
	job, err := New(cfg, WithDB(db), WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	assert.ErrorContains(t, err, "no such table")
}

type listPusher struct {
	items []string
}

func (p *listPusher) RPush(_ context.Context, _ string, values ...any) *redis.IntCmd {
	for _, v := range values {
		p.items = append(p.items, string(v.([]byte)))
	}
	return redis.NewIntResult(int64(len(p.items)), nil)
}

func TestRunToRedis(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Output.Redis = config.RedisConfig{URL: "redis://unused", Key: "people", BatchSize: 2}
	})
	pusher := &listPusher{}
	report := run(t, cfg, WithInput(strings.NewReader(people)), WithPusher(pusher))

	assert.Equal(t, 4, report.Written)
	assert.Len(t, pusher.items, 4)
	assert.Equal(t, `{"id":1,"user":{"email":"a@example.com"}}`, pusher.items[0])
}

func TestRunCancelledThrottleDropsRecords(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Pipeline.RateLimit = 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := New(cfg, WithInput(strings.NewReader("{}\n{}\n")), WithOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	report, err := job.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Written)
	assert.Equal(t, 2, labelled(report, "[throttle]: throttle wait: context canceled"))
}

func TestRunWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anoa.prom")
	cfg := newConfig(func(c *config.Config) {
		c.Metrics.Textfile = path
	})
	run(t, cfg, WithInput(strings.NewReader(people)), WithOutput(&bytes.Buffer{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `anoa_convert_records_total{component="anoa",label="<present>"} 4`)
	assert.Contains(t, text, "anoa_convert_labels")
	assert.Contains(t, text, `anoa_convert_duration_seconds{run_id="test-run"}`)
}

func TestRunFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(in, []byte(people), 0o600))

	cfg := newConfig(func(c *config.Config) {
		c.Input.Path = in
		c.Output.Path = out
		c.Output.Format = config.FormatProtobuf
	})
	report := run(t, cfg)
	assert.Equal(t, 4, report.Written)

	back := newConfig(func(c *config.Config) {
		c.Input.Path = out
		c.Input.Format = config.FormatProtobuf
	})
	var decoded bytes.Buffer
	report = run(t, back, WithOutput(&decoded))
	assert.Equal(t, 4, report.Written)
	assert.True(t, slices.Contains(strings.Split(decoded.String(), "\n"), `{"id":5,"user":{"email":"e@example.com"}}`))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := newConfig(func(c *config.Config) {
		c.Output.Format = "xml"
	})
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = newConfig(func(c *config.Config) {
		c.Input.Format = config.FormatAvro
		c.Formats.Avro.Schema = `{"type": "int"}`
	})
	_, err = New(cfg)
	assert.ErrorContains(t, err, "input codec")
}

func TestReportPrint(t *testing.T) {
	report := run(t, newConfig(nil), WithInput(strings.NewReader(people)), WithOutput(&bytes.Buffer{}))

	var buf bytes.Buffer
	require.NoError(t, report.Print(&buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "run test-run: 5 records, 4 written, 1 dropped in 0s", lines[0])
	assert.Equal(t, "       4  <present>", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "       1  [decode-json]: decode json: "))
}
