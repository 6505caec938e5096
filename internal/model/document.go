package model

import "time"

const DocTypeDocumentation = "documentation"

type DocumentChunk struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Content        string                 `json:"content"`
	URL            string                 `json:"url"`
	Scope          string                 `json:"scope"`
	DocType        string                 `json:"doc_type"`
	Embedding      []float32              `json:"-"`
	EmbeddingModel string                 `json:"embedding_model"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type RetrievedChunk struct {
	DocumentChunk
	Similarity float64 `json:"similarity"`
}
