// Package sql reads records from a database query through sqlx.
//
// Each row becomes one record keyed by column name. A row that fails to scan
// becomes an absent value carrying the failure label and the query moves on
// to the next row; a failing query or a broken cursor is reported by Err.
package sql

import (
	"context"
	"fmt"
	"iter"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/anoa"
	"github.com/zoobzio/anoa/record"
)

// ScanRow is the default stage name for row scans.
const ScanRow = anoa.Name("scan-row")

// Source runs one query and yields its rows as records. A Source is single
// use; Records may be ranged over once.
type Source[M any] struct {
	h      *anoa.Handler[M]
	db     *sqlx.DB
	query  string
	args   []any
	stage  anoa.Name
	logger anoa.SLogger
	err    error
}

// New creates a source for query against db. The database is owned by the
// caller.
func New[M any](h *anoa.Handler[M], db *sqlx.DB, query string, args ...any) *Source[M] {
	if db == nil {
		panic("db can't be nil")
	}
	return &Source[M]{
		h:      h,
		db:     db,
		query:  query,
		args:   args,
		stage:  ScanRow,
		logger: anoa.DiscardLogger(),
	}
}

// WithStage sets the stage name recorded in scan failure labels.
func (s *Source[M]) WithStage(name anoa.Name) *Source[M] {
	s.stage = name
	return s
}

// WithLogger sets the logger that receives a summary when the rows end.
func (s *Source[M]) WithLogger(logger anoa.SLogger) *Source[M] {
	s.logger = logger
	return s
}

// Records runs the query when iteration starts and yields one value per row.
// Stopping early closes the cursor.
func (s *Source[M]) Records(ctx context.Context) iter.Seq[anoa.Value[record.Record, M]] {
	return func(yield func(anoa.Value[record.Record, M]) bool) {
		rows, err := s.db.QueryxContext(ctx, s.query, s.args...)
		if err != nil {
			s.err = fmt.Errorf("query: %w", err)
			return
		}
		defer rows.Close()

		scan := anoa.TrySupply(s.h, s.stage, func() (record.Record, error) {
			r := make(record.Record)
			if err := rows.MapScan(r); err != nil {
				return nil, fmt.Errorf("%w: %w", anoa.ErrDecode, err)
			}
			normalize(r)
			return r, nil
		})

		var read, failed int
		for rows.Next() {
			v := scan()
			read++
			if !v.IsPresent() {
				failed++
			}
			if !yield(v) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			s.err = fmt.Errorf("rows: %w", err)
		}
		s.logger.Debug("query exhausted", "stage", s.stage, "records", read, "failed", failed)
	}
}

// Err returns the error that ended the query early, if any.
func (s *Source[M]) Err() error {
	return s.err
}

// normalize converts driver byte slices to strings so text columns look the
// same whichever driver produced them.
func normalize(r record.Record) {
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			r[k] = string(b)
		}
	}
}
