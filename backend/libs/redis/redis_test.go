package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("pw")

	client, err := NewRedisClient(Options{Addr: mr.Addr(), Password: "pw"})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(Options{Addr: "  "})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	mr.RequireAuth("pw")
	_, err = NewRedisClient(Options{Addr: mr.Addr(), Password: "wrong"})
	assert.Error(t, err, "ping must fail on bad credentials")
}
