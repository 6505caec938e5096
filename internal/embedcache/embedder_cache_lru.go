package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/ai"
)

func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	cacheKey, _, _ := buildCacheKey(l.next.ModelName(), text)
	if cached, ok := l.cache.Get(cacheKey); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)")
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(cacheKey, cloneEmbedding(res))
	return res, nil
}

func (l *lruEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		keys[i], _, _ = buildCacheKey(l.next.ModelName(), text)
		if cached, ok := l.cache.Get(keys[i]); ok {
			out[i] = cloneEmbedding(cached)
			continue
		}
		missing = append(missing, i)
	}
	if _, err := encodeMissing(out, texts, missing, func(batch []string) ([][]float32, error) {
		return l.next.EncodeBatch(ctx, batch)
	}); err != nil {
		return nil, err
	}
	for _, idx := range missing {
		l.cache.Add(keys[idx], cloneEmbedding(out[idx]))
	}
	logutil.GetLogger(ctx).Debug("embedding batch encoded", zap.Int("total", len(texts)), zap.Int("cached", len(texts)-len(missing)))
	return out, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *lruEmbedder) Dimension() int {
	return l.next.Dimension()
}
