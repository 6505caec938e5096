package retrieval

import (
	"context"
	"time"

	"github.com/xxxsen/chewie/internal/model"
)

// ChunkStore persists document chunks. repo.DocumentChunkRepo is the
// postgres implementation.
type ChunkStore interface {
	Insert(ctx context.Context, c *model.DocumentChunk) error
	Nearest(ctx context.Context, scope string, vec []float32, limit int) ([]model.RetrievedChunk, error)
	GetByID(ctx context.Context, id string) (*model.DocumentChunk, error)
	UpdateEmbedding(ctx context.Context, id string, vec []float32, modelName string, at time.Time) error
	ListStale(ctx context.Context, modelName string, limit int) ([]model.DocumentChunk, error)
}

type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimension() int
}
