package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title string `json:"title" validate:"required,max=5"`
	Level string `json:"level" validate:"omitempty,oneof=all status_only none"`
}

func TestValidate(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(sample{Title: "ok", Level: "all"}))

	err := v.Validate(sample{Level: "loud"})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "is required", vErr.Errors["sample.title"])
	assert.Equal(t, "must be one of: all status_only none", vErr.Errors["sample.level"])
	assert.Contains(t, err.Error(), "field 'sample.level'")
}
