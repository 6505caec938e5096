package semcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/metrics"
	"github.com/xxxsen/chewie/internal/model"
	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
)

const defaultTopN = 5

// ScopePurger drops fast-path records of a scope after invalidation. An
// empty scope means every scope.
type ScopePurger interface {
	Purge(ctx context.Context, scope string) int64
}

type Lifecycle struct {
	store  EntryStore
	purger ScopePurger
	now    func() time.Time
}

func NewLifecycle(store EntryStore, purger ScopePurger) *Lifecycle {
	return &Lifecycle{store: store, purger: purger, now: time.Now}
}

// Invalidate deletes the entries matching all supplied filters and returns
// the number removed. Age is measured on updated_at.
func (l *Lifecycle) Invalidate(ctx context.Context, f model.InvalidateFilter) (int64, error) {
	if f.OlderThanHours < 0 {
		return 0, fmt.Errorf("older_than_hours must not be negative: %w", appErr.ErrInvalid)
	}
	var before *time.Time
	if f.OlderThanHours > 0 {
		cutoff := l.now().Add(-time.Duration(f.OlderThanHours) * time.Hour)
		before = &cutoff
	}
	n, err := l.store.Delete(ctx, f.Scope, f.PoolID, before)
	if err != nil {
		return 0, fmt.Errorf("delete cache entries: %w: %w", appErr.ErrRetrieval, err)
	}
	if l.purger != nil {
		purged := l.purger.Purge(ctx, f.Scope)
		logutil.GetLogger(ctx).Debug("exact cache purged", zap.String("scope", f.Scope), zap.Int64("count", purged))
	}
	logutil.GetLogger(ctx).Info("cache invalidated",
		zap.String("scope", f.Scope),
		zap.String("pool_id", f.PoolID),
		zap.Int("older_than_hours", f.OlderThanHours),
		zap.Int64("deleted", n),
	)
	metrics.AddInvalidated(n)
	return n, nil
}

// Expire removes entries of every scope not updated within maxAge. The exact
// tier is left alone since its records carry their own TTL.
func (l *Lifecycle) Expire(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("max age must be positive: %w", appErr.ErrInvalid)
	}
	cutoff := l.now().Add(-maxAge)
	n, err := l.store.Delete(ctx, "", "", &cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire cache entries: %w: %w", appErr.ErrRetrieval, err)
	}
	metrics.AddInvalidated(n)
	return n, nil
}

// Entry returns one cached answer, including its hit counters.
func (l *Lifecycle) Entry(ctx context.Context, id string) (*model.CacheEntry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("entry id is required: %w", appErr.ErrInvalid)
	}
	entry, err := l.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, appErr.ErrNotFound) {
			return nil, fmt.Errorf("cache entry %s: %w", id, err)
		}
		return nil, fmt.Errorf("load cache entry: %w: %w", appErr.ErrRetrieval, err)
	}
	return entry, nil
}

func (l *Lifecycle) Stats(ctx context.Context, scope string) (*model.CacheStats, error) {
	stats, err := l.store.Stats(ctx, scope, defaultTopN)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w: %w", appErr.ErrRetrieval, err)
	}
	return stats, nil
}
