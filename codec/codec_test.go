package codec

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/anoa"
)

func TestNew(t *testing.T) {
	c := New(
		func(data []byte) (int, error) { return strconv.Atoi(string(data)) },
		func(v int) ([]byte, error) { return []byte(strconv.Itoa(v)), nil },
	)

	v, err := c.Decode([]byte("42"))
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	out, err := c.Encode(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), out)

	assert.Panics(t, func() { New[int](nil, nil) })
}

func TestErrors(t *testing.T) {
	cause := errors.New("bad byte")

	err := DecodeError("json", cause)
	assert.ErrorIs(t, err, anoa.ErrDecode)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, anoa.KindDecode, anoa.KindOf(err))
	assert.Equal(t, "decode: json: bad byte", err.Error())

	err = EncodeError("avro", cause)
	assert.ErrorIs(t, err, anoa.ErrEncode)
	assert.Equal(t, anoa.KindEncode, anoa.KindOf(err))
}

func TestDecodeFuncAsStage(t *testing.T) {
	labels := anoa.NewInterner()
	h := anoa.NewHandler(labels.Mapper())
	var dec Decoder[int] = DecodeFunc[int](func(data []byte) (int, error) {
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return 0, DecodeError("int", err)
		}
		return n, nil
	})

	stage := anoa.Apply(h, "decode-int", dec.Decode)
	v := stage(anoa.Of[[]byte, *anoa.Counted]([]byte("x")))
	require.False(t, v.IsPresent())
	assert.Equal(t, `[decode-int]: decode int: strconv.Atoi: parsing "x": invalid syntax`, v.Metadata()[0].String())
}
