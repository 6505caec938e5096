package semcache

import (
	"context"
	"time"

	"github.com/xxxsen/chewie/internal/model"
)

// EntryStore is the persistence contract of the semantic cache. The
// postgres implementation lives in repo.CacheEntryRepo.
type EntryStore interface {
	Insert(ctx context.Context, e *model.CacheEntry) error
	Nearest(ctx context.Context, scope string, vec []float32, notBefore *time.Time) (*model.CacheEntry, float64, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// GetByID returns appErr.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*model.CacheEntry, error)
	Delete(ctx context.Context, scope, poolID string, updatedBefore *time.Time) (int64, error)
	Stats(ctx context.Context, scope string, topN int) (*model.CacheStats, error)
}

type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
