package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signet/internal/platform/config"
)

func TestNewWithoutURL(t *testing.T) {
	client, err := New(context.Background(), config.Redis{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOptions(t *testing.T) {
	t.Run("applies configured pool and timeouts", func(t *testing.T) {
		opts, err := Options(config.Redis{
			URL:          "redis://localhost:6379/2",
			PoolSize:     20,
			MinIdleConns: 4,
			ReadTimeout:  750 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, "signet", opts.ClientName)
		assert.Equal(t, 20, opts.PoolSize)
		assert.Equal(t, 4, opts.MinIdleConns)
		assert.Equal(t, 750*time.Millisecond, opts.ReadTimeout)
	})

	t.Run("rejects malformed URL", func(t *testing.T) {
		_, err := Options(config.Redis{URL: "http://not-redis"})
		assert.Error(t, err)
	})
}
