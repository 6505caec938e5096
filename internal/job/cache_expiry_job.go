package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type CacheExpirer interface {
	Expire(ctx context.Context, maxAge time.Duration) (int64, error)
}

// CacheExpiryJob drops semantic cache entries that have not been refreshed
// within maxAge so the table does not grow without bound.
type CacheExpiryJob struct {
	cache  CacheExpirer
	maxAge time.Duration
}

func NewCacheExpiryJob(cache CacheExpirer, maxAge time.Duration) *CacheExpiryJob {
	return &CacheExpiryJob{cache: cache, maxAge: maxAge}
}

func (j *CacheExpiryJob) Name() string {
	return "semantic_cache_expiry"
}

func (j *CacheExpiryJob) Run(ctx context.Context) error {
	if j.cache == nil || j.maxAge <= 0 {
		return nil
	}
	n, err := j.cache.Expire(ctx, j.maxAge)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("semantic cache expired", zap.Int64("deleted", n), zap.Duration("max_age", j.maxAge))
	return nil
}
