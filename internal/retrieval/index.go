package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/chewie/internal/model"
	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
)

const (
	DefaultTopK            = 3
	DefaultSimilarityFloor = 0.7

	overFetchFactor       = 2
	defaultEmbedBatchSize = 16
)

type IndexConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	EmbedBatchSize     int
	EmbedRatePerSecond float64
}

type Index struct {
	embedder Embedder
	store    ChunkStore
	cfg      IndexConfig
	limiter  *rate.Limiter
	now      func() time.Time
}

func NewIndex(embedder Embedder, store ChunkStore, cfg IndexConfig) *Index {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = defaultEmbedBatchSize
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.EmbedRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRatePerSecond), 1)
	}
	return &Index{embedder: embedder, store: store, cfg: cfg, limiter: limiter, now: time.Now}
}

type AddParams struct {
	Title    string
	Content  string
	URL      string
	Scope    string
	DocType  string
	Metadata map[string]interface{}
}

func (p AddParams) validate() error {
	if p.Title == "" || strings.TrimSpace(p.Content) == "" || p.URL == "" || p.Scope == "" {
		return fmt.Errorf("title, content, url and scope are required: %w", appErr.ErrInvalid)
	}
	return nil
}

func (idx *Index) checkVector(vec []float32) error {
	if dim := idx.embedder.Dimension(); len(vec) != dim {
		return fmt.Errorf("embedding has dimension %d, want %d: %w", len(vec), dim, appErr.ErrEmbedding)
	}
	return nil
}

func (idx *Index) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += idx.cfg.EmbedBatchSize {
		end := start + idx.cfg.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := idx.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vecs, err := idx.embedder.EncodeBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("encode chunks: %w: %w", appErr.ErrEmbedding, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("encoder returned %d vectors for %d texts: %w", len(vecs), end-start, appErr.ErrEmbedding)
		}
		for _, v := range vecs {
			if err := idx.checkVector(v); err != nil {
				return nil, err
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (idx *Index) insert(ctx context.Context, p AddParams, vec []float32) (*model.DocumentChunk, error) {
	docType := p.DocType
	if docType == "" {
		docType = model.DocTypeDocumentation
	}
	now := idx.now()
	chunk := &model.DocumentChunk{
		ID:             uuid.NewString(),
		Title:          p.Title,
		Content:        p.Content,
		URL:            p.URL,
		Scope:          p.Scope,
		DocType:        docType,
		Embedding:      vec,
		EmbeddingModel: idx.embedder.ModelName(),
		Metadata:       p.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := idx.store.Insert(ctx, chunk); err != nil {
		return nil, fmt.Errorf("insert chunk: %w: %w", appErr.ErrRetrieval, err)
	}
	return chunk, nil
}

// AddDocument embeds content and persists it as one chunk.
func (idx *Index) AddDocument(ctx context.Context, p AddParams) (*model.DocumentChunk, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	vec, err := idx.embedder.Encode(ctx, p.Content)
	if err != nil {
		return nil, fmt.Errorf("encode chunk: %w: %w", appErr.ErrEmbedding, err)
	}
	if err := idx.checkVector(vec); err != nil {
		return nil, err
	}
	return idx.insert(ctx, p, vec)
}

// Ingest chunks a document and stores every chunk with shared metadata plus
// chunk_index and total_chunks. It returns the ids in chunk order.
func (idx *Index) Ingest(ctx context.Context, p AddParams) ([]string, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	pieces := Chunk(p.Content, idx.cfg.ChunkSize, idx.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return nil, nil
	}
	vecs, err := idx.encodeBatch(ctx, pieces)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		meta := make(map[string]interface{}, len(p.Metadata)+2)
		for k, v := range p.Metadata {
			meta[k] = v
		}
		meta["chunk_index"] = i
		meta["total_chunks"] = len(pieces)
		chunk, err := idx.insert(ctx, AddParams{
			Title:    PartTitle(p.Title, i, len(pieces)),
			Content:  piece,
			URL:      p.URL,
			Scope:    p.Scope,
			DocType:  p.DocType,
			Metadata: meta,
		}, vecs[i])
		if err != nil {
			return ids, err
		}
		ids = append(ids, chunk.ID)
	}
	logutil.GetLogger(ctx).Info("document ingested",
		zap.String("title", p.Title),
		zap.String("scope", p.Scope),
		zap.Int("chunks", len(ids)),
	)
	return ids, nil
}

// Retrieve returns at most topK chunks of scope with similarity >= floor,
// most similar first.
func (idx *Index) Retrieve(ctx context.Context, query, scope string, topK int, floor float64) ([]model.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := idx.embedder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w: %w", appErr.ErrEmbedding, err)
	}
	if err := idx.checkVector(vec); err != nil {
		return nil, err
	}
	candidates, err := idx.store.Nearest(ctx, scope, vec, topK*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("nearest chunks: %w: %w", appErr.ErrRetrieval, err)
	}
	out := make([]model.RetrievedChunk, 0, topK)
	for _, c := range candidates {
		if c.Similarity < floor {
			continue
		}
		out = append(out, c)
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func (idx *Index) RetrieveContext(ctx context.Context, query, scope string, topK int, floor float64, maxLength int) (string, []model.RetrievedChunk, error) {
	chunks, err := idx.Retrieve(ctx, query, scope, topK, floor)
	if err != nil {
		return "", nil, err
	}
	return BuildContext(chunks, maxLength), chunks, nil
}

// ReEmbed recomputes the embedding of one chunk in place.
func (idx *Index) ReEmbed(ctx context.Context, id string) error {
	chunk, err := idx.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	vecs, err := idx.encodeBatch(ctx, []string{chunk.Content})
	if err != nil {
		return err
	}
	return idx.store.UpdateEmbedding(ctx, id, vecs[0], idx.embedder.ModelName(), idx.now())
}

// ReEmbedStale refreshes up to limit chunks that were embedded by another
// model and returns how many were updated.
func (idx *Index) ReEmbedStale(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	chunks, err := idx.store.ListStale(ctx, idx.embedder.ModelName(), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale chunks: %w: %w", appErr.ErrRetrieval, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vecs, err := idx.encodeBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	updated := 0
	for i, c := range chunks {
		if err := idx.store.UpdateEmbedding(ctx, c.ID, vecs[i], idx.embedder.ModelName(), idx.now()); err != nil {
			return updated, fmt.Errorf("update chunk %s: %w", c.ID, err)
		}
		updated++
	}
	logutil.GetLogger(ctx).Info("stale chunks re-embedded", zap.Int("count", updated), zap.String("model", idx.embedder.ModelName()))
	return updated, nil
}
