package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/ai"
	"github.com/xxxsen/chewie/internal/model"
)

// Store persists embeddings keyed by model and content hash.
type Store interface {
	GetMany(ctx context.Context, modelName string, hashes []string) (map[string][]float32, error)
	SaveMany(ctx context.Context, items []*model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store, now: time.Now}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
	now   func() time.Time
}

func (d *dbEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	out, err := d.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EncodeBatch reads every hash in one query, embeds only the misses and
// writes them back in one statement. Store failures degrade to a miss.
func (d *dbEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	modelName := ""
	hashes := make([]string, len(texts))
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), text)
	}
	found, err := d.store.GetMany(ctx, modelName, hashes)
	if err != nil {
		logger.Warn("read embedding cache failed", zap.Error(err))
		found = nil
	}

	out := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, h := range hashes {
		if vec, ok := found[h]; ok && len(vec) == d.next.Dimension() {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) < len(texts) {
		logger.Debug("embedding cache hit (db)", zap.Int("hits", len(texts)-len(missing)))
	}
	if _, err := encodeMissing(out, texts, missing, func(batch []string) ([][]float32, error) {
		return d.next.EncodeBatch(ctx, batch)
	}); err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return out, nil
	}
	ctime := d.now().Unix()
	items := make([]*model.EmbeddingCache, 0, len(missing))
	for _, idx := range missing {
		items = append(items, &model.EmbeddingCache{
			ModelName:   modelName,
			ContentHash: hashes[idx],
			Embedding:   out[idx],
			Ctime:       ctime,
		})
	}
	if err := d.store.SaveMany(ctx, items); err != nil {
		logger.Warn("failed to cache embeddings", zap.Int("count", len(items)), zap.Error(err))
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

func (d *dbEmbedder) Dimension() int {
	return d.next.Dimension()
}
