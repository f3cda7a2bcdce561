package msgpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/anoa"
	"github.com/zoobzio/anoa/record"
)

func TestRecordRoundTrip(t *testing.T) {
	c := New()
	in := record.Record{
		"id":     int64(5),
		"score":  1.5,
		"name":   "ada",
		"nested": map[string]any{"ok": true},
		"list":   []any{"a", "b"},
		"none":   nil,
	}

	data, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeIsDeterministic(t *testing.T) {
	c := New()
	r := record.Record{"c": 3, "a": 1, "b": 2, "d": 4, "e": 5}

	first, err := c.Encode(r)
	require.NoError(t, err)
	for range 10 {
		again, err := c.Encode(r)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecodeErrors(t *testing.T) {
	c := New()

	_, err := c.Decode([]byte{0xc1})
	require.Error(t, err)
	assert.ErrorIs(t, err, anoa.ErrDecode)

	data, err := c.Encode(record.Record{"a": 1})
	require.NoError(t, err)
	_, err = c.Decode(append(data, 0x01))
	require.Error(t, err)
	assert.ErrorIs(t, err, anoa.ErrDecode)

	_, err = c.Decode(data[:len(data)-1])
	assert.ErrorIs(t, err, anoa.ErrDecode)
}

func TestEncodeError(t *testing.T) {
	_, err := New().Encode(record.Record{"ch": make(chan int)})
	require.Error(t, err)
	assert.ErrorIs(t, err, anoa.ErrEncode)
}

type event struct {
	ID   string `msgpack:"id"`
	Seen int    `msgpack:"seen"`
}

func TestTypedCodec(t *testing.T) {
	c := For[event]()

	data, err := c.Encode(event{ID: "e1", Seen: 3})
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, event{ID: "e1", Seen: 3}, got)

	r, err := New().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, record.Record{"id": "e1", "seen": int64(3)}, r)
}
