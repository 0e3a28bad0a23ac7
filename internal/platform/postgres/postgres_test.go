package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyvet/internal/platform/config"
)

func TestNew(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		pool, err := New(context.Background(), config.Postgres{})
		require.NoError(t, err)
		assert.Nil(t, pool)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := New(context.Background(), config.Postgres{URL: "postgres://%zz"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse postgres URL")
	})
}
