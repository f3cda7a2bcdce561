package csv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/anoa"
	"github.com/zoobzio/anoa/record"
)

func testTable(t *testing.T) *record.Table {
	t.Helper()
	table, err := record.CompileTable([]record.Column{
		{Name: "id", Type: record.Int},
		{Name: "name", Type: record.String, Path: "user.name"},
		{Name: "active", Type: record.Bool},
	})
	require.NoError(t, err)
	return table
}

func TestDecode(t *testing.T) {
	c := New(testTable(t))

	r, err := c.Decode([]byte(`7,"Lovelace, Ada",true`))
	require.NoError(t, err)
	assert.Equal(t, record.Record{
		"id":     int64(7),
		"user":   map[string]any{"name": "Lovelace, Ada"},
		"active": true,
	}, r)

	r, err = c.Decode([]byte(`8,,`))
	require.NoError(t, err)
	assert.Nil(t, r["active"])

	for name, input := range map[string]string{
		"too few cells": `1,ada`,
		"bad int":       `x,ada,true`,
		"bare quote":    `1,a"da,true`,
		"two rows":      "1,ada,true\n2,bob,false",
		"empty":         ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode([]byte(input))
			require.Error(t, err)
			assert.ErrorIs(t, err, anoa.ErrDecode)
		})
	}
}

func TestEncode(t *testing.T) {
	c := New(testTable(t))

	data, err := c.Encode(record.Record{
		"id":   7,
		"user": map[string]any{"name": "Lovelace, Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, `7,"Lovelace, Ada",`, string(data))

	_, err = c.Encode(record.Record{"id": "seven"})
	require.Error(t, err)
	assert.ErrorIs(t, err, anoa.ErrEncode)
}

func TestComma(t *testing.T) {
	c := New(testTable(t), WithComma(';'))

	data, err := c.Encode(record.Record{"id": 1, "user": map[string]any{"name": "a;b"}, "active": false})
	require.NoError(t, err)
	assert.Equal(t, `1;"a;b";false`, string(data))

	r, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r["id"])

	assert.Panics(t, func() { WithComma('\n') })
	assert.Panics(t, func() { New(nil) })
}

func TestHeader(t *testing.T) {
	c := New(testTable(t))

	header, err := c.Header()
	require.NoError(t, err)
	assert.Equal(t, "id,name,active", string(header))

	require.NoError(t, c.CheckHeader(header))
	assert.ErrorIs(t, c.CheckHeader([]byte("id,active,name")), ErrHeaderMismatch)
}
