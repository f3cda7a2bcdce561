package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/anoa"
)

func TestValidator(t *testing.T) {
	v, err := NewValidator("id", "user.email")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "user.email"}, v.Fields())

	complete := Record{"id": 1.0, "user": map[string]any{"email": "a@b"}}
	assert.True(t, v.Valid(complete))
	assert.Empty(t, v.Missing(complete))

	partial := Record{"id": nil, "user": map[string]any{}}
	assert.False(t, v.Valid(partial))
	assert.Equal(t, []string{
		`missing required field "id"`,
		`missing required field "user.email"`,
	}, v.Missing(partial))

	_, err = NewValidator("a..b")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestValidatorAsPredicate(t *testing.T) {
	const RequireID = anoa.Name("require-id")
	v, err := NewValidator("id")
	require.NoError(t, err)

	labels := anoa.NewInterner()
	h := anoa.NewHandler(labels.Mapper())
	stage := anoa.Predicate(h, RequireID, v.Valid, func(r Record) []*anoa.Counted {
		var out []*anoa.Counted
		for _, reason := range v.Missing(r) {
			out = append(out, labels.Rejection(RequireID, reason))
		}
		return out
	})

	kept := stage(anoa.Of[Record, *anoa.Counted](Record{"id": 1.0}))
	assert.True(t, kept.IsPresent())

	dropped := stage(anoa.Of[Record, *anoa.Counted](Record{}))
	require.False(t, dropped.IsPresent())
	assert.Equal(t, []*anoa.Counted{labels.Intern(`[require-id]: validation missing required field "id"`)}, dropped.Metadata())
}
