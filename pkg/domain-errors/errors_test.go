package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("boom")

	t.Run("matches outer code", func(t *testing.T) {
		err := Wrap(cause, CodeConflict, "duplicate")
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("matches nested code through fmt wrapping", func(t *testing.T) {
		inner := New(CodeValidation, "consent required")
		err := fmt.Errorf("submit: %w", Wrap(inner, CodeBadRequest, "rejected"))
		assert.True(t, HasCode(err, CodeBadRequest))
		assert.True(t, HasCode(err, CodeValidation))
	})

	t.Run("plain error has no code", func(t *testing.T) {
		assert.False(t, HasCode(cause, CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("unclassified")))
	assert.Equal(t, CodeNotFound, CodeOf(fmt.Errorf("x: %w", New(CodeNotFound, "missing"))))
}

func TestErrorString(t *testing.T) {
	cause := errors.New("redis down")
	err := Wrap(cause, CodeUnavailable, "limiter")

	assert.Equal(t, "unavailable: limiter: redis down", err.Error())
	assert.Equal(t, "not_found: missing", New(CodeNotFound, "missing").Error())
	require.True(t, Is(err, cause))
}
