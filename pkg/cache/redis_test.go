package cache

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestConnect_Errors(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	require.Error(t, err)

	_, err = Connect(context.Background(), Config{URL: "not a url"})
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	assert.False(t, ConfigFromEnv().Enabled())

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	assert.True(t, ConfigFromEnv().Enabled())
}
