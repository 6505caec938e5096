package exactcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (failingStore) DeletePrefix(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestKeyNormalizesQuery(t *testing.T) {
	require.Equal(t, Key("What is Kamino?", "kamino"), Key("  what is kamino?  ", "kamino"))
	require.NotEqual(t, Key("what is kamino?", "kamino"), Key("what is kamino?", "aave"))
	require.Contains(t, Key("q", "kamino"), "query_cache:kamino:")
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(NewMemoryStore(16, time.Minute), 0)
	ctx := context.Background()

	_, ok := c.Get(ctx, "what is kamino", "kamino")
	require.False(t, ok)

	payload := json.RawMessage(`{"answer":"a lending protocol"}`)
	c.Set(ctx, "What is Kamino", "kamino", payload)

	got, ok := c.Get(ctx, "what is kamino ", "kamino")
	require.True(t, ok)
	require.JSONEq(t, string(payload), string(got))

	_, ok = c.Get(ctx, "what is kamino", "drift")
	require.False(t, ok)
}

func TestCachePurgeScope(t *testing.T) {
	c := New(NewMemoryStore(16, time.Minute), time.Hour)
	ctx := context.Background()
	c.Set(ctx, "a", "kamino", json.RawMessage(`1`))
	c.Set(ctx, "b", "kamino", json.RawMessage(`2`))
	c.Set(ctx, "a", "drift", json.RawMessage(`3`))

	require.Equal(t, int64(2), c.Purge(ctx, "kamino"))
	_, ok := c.Get(ctx, "a", "kamino")
	require.False(t, ok)
	_, ok = c.Get(ctx, "a", "drift")
	require.True(t, ok)
	require.Equal(t, int64(0), c.Purge(ctx, "kamino"))
}

func TestCacheSwallowsStoreErrors(t *testing.T) {
	c := New(failingStore{}, time.Hour)
	ctx := context.Background()
	require.NotPanics(t, func() {
		c.Set(ctx, "q", "kamino", json.RawMessage(`{}`))
		c.Delete(ctx, "q", "kamino")
	})
	_, ok := c.Get(ctx, "q", "kamino")
	require.False(t, ok)
	require.Equal(t, int64(0), c.Purge(ctx, "kamino"))
}

func TestCacheSetAsync(t *testing.T) {
	c := New(NewMemoryStore(16, time.Minute), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.SetAsync(ctx, "q", "kamino", json.RawMessage(`{"a":1}`))
	cancel()
	require.Eventually(t, func() bool {
		_, ok := c.Get(context.Background(), "q", "kamino")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	_, ok := c.Get(context.Background(), "q", "kamino")
	require.False(t, ok)
	c.Set(context.Background(), "q", "kamino", json.RawMessage(`{}`))
	require.Zero(t, c.Purge(context.Background(), "kamino"))
}

func TestCachePurgeAll(t *testing.T) {
	c := New(NewMemoryStore(16, time.Minute), time.Hour)
	ctx := context.Background()
	c.Set(ctx, "a", "kamino", json.RawMessage(`1`))
	c.Set(ctx, "a", "drift", json.RawMessage(`2`))
	require.Equal(t, int64(2), c.Purge(ctx, ""))
}
