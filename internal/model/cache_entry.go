package model

import (
	"encoding/json"
	"time"
)

type CacheEntry struct {
	ID         string          `json:"id"`
	QueryText  string          `json:"query_text"`
	Embedding  []float32       `json:"-"`
	Scope      string          `json:"scope"`
	QueryType  QueryType       `json:"query_type"`
	PoolID     string          `json:"pool_id,omitempty"`
	Amount     *float64        `json:"amount,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	ClientID   string          `json:"client_id,omitempty"`
	Response   json.RawMessage `json:"response"`
	Confidence *float64        `json:"confidence,omitempty"`
	Provider   string          `json:"llm_provider"`
	Model      string          `json:"llm_model"`
	UseCount   int64           `json:"use_count"`
	LastUsedAt time.Time       `json:"last_used_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// CacheHit is a semantic cache match. Payload is the stored response
// annotated with the cache markers.
type CacheHit struct {
	Entry      *CacheEntry     `json:"entry"`
	Similarity float64         `json:"similarity"`
	Payload    json.RawMessage `json:"payload"`
}

type InvalidateFilter struct {
	Scope          string `json:"scope,omitempty"`
	PoolID         string `json:"pool_id,omitempty"`
	OlderThanHours int    `json:"older_than_hours,omitempty"`
}

type PopularQuery struct {
	Query    string `json:"query"`
	UseCount int64  `json:"use_count"`
}

type CacheStats struct {
	TotalEntries int64          `json:"total_entries"`
	MostUsed     []PopularQuery `json:"most_used"`
	OldestEntry  *time.Time     `json:"oldest_entry"`
	NewestEntry  *time.Time     `json:"newest_entry"`
}
