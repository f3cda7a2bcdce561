package sql

import (
	"context"
	"slices"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/anoa"
	"github.com/zoobzio/anoa/record"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	db.MustExec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, avatar BLOB, score REAL)`)
	db.MustExec(`INSERT INTO users (id, name, avatar, score) VALUES (1, 'ada', x'6869', 1.5), (2, 'bob', NULL, NULL)`)
	return db
}

func TestRecords(t *testing.T) {
	db := openDB(t)
	labels := anoa.NewInterner()
	h := anoa.NewHandler(labels.Mapper())

	src := New(h, db, `SELECT id, name, avatar, score FROM users ORDER BY id`)
	got := slices.Collect(anoa.Present(src.Records(context.Background())))
	require.NoError(t, src.Err())
	require.Len(t, got, 2)

	assert.Equal(t, record.Record{"id": int64(1), "name": "ada", "avatar": "hi", "score": 1.5}, got[0])
	assert.Equal(t, record.Record{"id": int64(2), "name": "bob", "avatar": nil, "score": nil}, got[1])
}

func TestRecordsWithArgs(t *testing.T) {
	db := openDB(t)
	h := anoa.NewHandler(anoa.NewInterner().Mapper())

	src := New(h, db, `SELECT name FROM users WHERE id > ?`, 1)
	got := slices.Collect(anoa.Present(src.Records(context.Background())))
	require.NoError(t, src.Err())
	assert.Equal(t, []record.Record{{"name": "bob"}}, got)
}

func TestQueryError(t *testing.T) {
	db := openDB(t)
	h := anoa.NewHandler(anoa.NewInterner().Mapper())

	src := New(h, db, `SELECT * FROM missing`)
	got := slices.Collect(src.Records(context.Background()))
	assert.Empty(t, got)
	require.Error(t, src.Err())
	assert.Contains(t, src.Err().Error(), "no such table")
}

func TestStopEarlyClosesCursor(t *testing.T) {
	db := openDB(t)
	h := anoa.NewHandler(anoa.NewInterner().Mapper())

	src := New(h, db, `SELECT id FROM users ORDER BY id`)
	for range src.Records(context.Background()) {
		break
	}
	require.NoError(t, src.Err())

	// A single connection is available, so this only succeeds if the first
	// cursor was released.
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 2, n)
}

func TestNewPanicsOnNilDB(t *testing.T) {
	assert.Panics(t, func() { New[*anoa.Counted](anoa.NoOp[*anoa.Counted](), nil, "SELECT 1") })
}
