package semcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/model"
	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
)

const (
	DefaultSimilarityFloor = 0.95

	cachedMarker     = "_cached"
	similarityMarker = "_cache_similarity"
)

type Cache struct {
	encoder Encoder
	store   EntryStore
	now     func() time.Time
}

func New(encoder Encoder, store EntryStore) *Cache {
	return &Cache{encoder: encoder, store: store, now: time.Now}
}

type StoreParams struct {
	Query      string
	Scope      string
	Payload    json.RawMessage
	QueryType  model.QueryType
	PoolID     string
	Amount     *float64
	Currency   string
	ClientID   string
	Provider   string
	Model      string
	Confidence *float64
}

func (c *Cache) encode(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.encoder.Encode(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w: %w", appErr.ErrEmbedding, err)
	}
	if dim := c.encoder.Dimension(); len(vec) != dim {
		return nil, fmt.Errorf("query embedding has dimension %d, want %d: %w", len(vec), dim, appErr.ErrEmbedding)
	}
	return vec, nil
}

// Lookup finds the nearest cached answer of scope. It returns nil without
// error when the nearest entry is below floor or older than maxAge. A nil
// maxAge disables the age check, a zero maxAge only accepts entries updated
// at this instant.
func (c *Cache) Lookup(ctx context.Context, query, scope string, floor float64, maxAge *time.Duration) (*model.CacheHit, error) {
	vec, err := c.encode(ctx, query)
	if err != nil {
		return nil, err
	}
	now := c.now()
	var notBefore *time.Time
	if maxAge != nil {
		cutoff := now.Add(-*maxAge)
		notBefore = &cutoff
	}
	entry, similarity, err := c.store.Nearest(ctx, scope, vec, notBefore)
	if err != nil {
		return nil, fmt.Errorf("nearest cache entry: %w: %w", appErr.ErrRetrieval, err)
	}
	if entry == nil || similarity < floor {
		return nil, nil
	}
	payload, err := annotate(entry.Response, similarity)
	if err != nil {
		return nil, fmt.Errorf("decode cached payload %s: %w: %w", entry.ID, appErr.ErrRetrieval, err)
	}
	if err := c.store.Touch(ctx, entry.ID, now); err != nil {
		logutil.GetLogger(ctx).Warn("record cache hit failed", zap.String("id", entry.ID), zap.Error(err))
	} else {
		entry.UseCount++
		entry.LastUsedAt = now
	}
	return &model.CacheHit{Entry: entry, Similarity: similarity, Payload: payload}, nil
}

// Store embeds the query and persists a new entry. Near duplicates are not
// merged.
func (c *Cache) Store(ctx context.Context, p StoreParams) (*model.CacheEntry, error) {
	if !json.Valid(p.Payload) {
		return nil, fmt.Errorf("cache payload is not json: %w", appErr.ErrInvalid)
	}
	vec, err := c.encode(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	now := c.now()
	entry := &model.CacheEntry{
		ID:         uuid.NewString(),
		QueryText:  p.Query,
		Embedding:  vec,
		Scope:      p.Scope,
		QueryType:  p.QueryType,
		PoolID:     p.PoolID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		ClientID:   p.ClientID,
		Response:   p.Payload,
		Confidence: p.Confidence,
		Provider:   p.Provider,
		Model:      p.Model,
		UseCount:   1,
		LastUsedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if entry.QueryType == "" {
		entry.QueryType = model.QueryTypeGeneral
	}
	if err := c.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert cache entry: %w: %w", appErr.ErrRetrieval, err)
	}
	return entry, nil
}

func annotate(raw json.RawMessage, similarity float64) (json.RawMessage, error) {
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields[cachedMarker] = true
	fields[similarityMarker] = similarity
	return json.Marshal(fields)
}
