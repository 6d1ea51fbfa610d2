package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetSetAndExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	_, err := c.Get(ctx, "docsearch:missing")
	assert.True(t, IsMiss(err))

	require.NoError(t, c.Set(ctx, "docsearch:k", []byte(`{"a":1}`), time.Minute))
	got, err := c.Get(ctx, "docsearch:k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "docsearch:k")
	assert.True(t, IsMiss(err))
}

func TestDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	for _, k := range []string{"docsearch:v1:a", "docsearch:v1:b", "docsearch:v2:a", "other"} {
		require.NoError(t, c.Set(ctx, k, []byte("x"), 0))
	}

	n, err := c.DeletePrefix(ctx, "docsearch:v1:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.False(t, mr.Exists("docsearch:v1:a"))
	assert.True(t, mr.Exists("docsearch:v2:a"))
	assert.True(t, mr.Exists("other"))

	require.NoError(t, c.Del(ctx, "other"))
	assert.False(t, mr.Exists("other"))
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
