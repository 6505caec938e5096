package exactcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	keyPrefix         = "query_cache:"
	DefaultTTL        = 24 * time.Hour
	defaultAsyncLimit = 5 * time.Second
)

// Cache maps a normalized query within a scope to a serialized response.
// Every operation is best effort: store failures are logged and reported
// as a miss or a no-op.
type Cache struct {
	store Store
	ttl   time.Duration
}

func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

func Key(query, scope string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return scopePrefix(scope) + hex.EncodeToString(sum[:])
}

func scopePrefix(scope string) string {
	return keyPrefix + scope + ":"
}

func (c *Cache) Get(ctx context.Context, query, scope string) (json.RawMessage, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	data, ok, err := c.store.Get(ctx, Key(query, scope))
	if err != nil {
		logutil.GetLogger(ctx).Warn("exact cache read failed", zap.String("scope", scope), zap.Error(err))
		return nil, false
	}
	if !ok || !json.Valid(data) {
		return nil, false
	}
	return json.RawMessage(data), true
}

func (c *Cache) Set(ctx context.Context, query, scope string, payload json.RawMessage) {
	if c == nil || c.store == nil || len(payload) == 0 {
		return
	}
	if err := c.store.SetWithTTL(ctx, Key(query, scope), payload, c.ttl); err != nil {
		logutil.GetLogger(ctx).Warn("exact cache write failed", zap.String("scope", scope), zap.Error(err))
	}
}

// SetAsync writes in the background on a context detached from the caller.
func (c *Cache) SetAsync(ctx context.Context, query, scope string, payload json.RawMessage) {
	if c == nil || c.store == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		wctx, cancel := context.WithTimeout(detached, defaultAsyncLimit)
		defer cancel()
		c.Set(wctx, query, scope, payload)
	}()
}

func (c *Cache) Delete(ctx context.Context, query, scope string) {
	if c == nil || c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, Key(query, scope)); err != nil {
		logutil.GetLogger(ctx).Warn("exact cache delete failed", zap.String("scope", scope), zap.Error(err))
	}
}

// Purge drops every record of scope and returns how many were removed. An
// empty scope purges all records.
func (c *Cache) Purge(ctx context.Context, scope string) int64 {
	if c == nil || c.store == nil {
		return 0
	}
	prefix := keyPrefix
	if scope != "" {
		prefix = scopePrefix(scope)
	}
	n, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		logutil.GetLogger(ctx).Warn("exact cache purge failed", zap.String("scope", scope), zap.Error(err))
	}
	return n
}
