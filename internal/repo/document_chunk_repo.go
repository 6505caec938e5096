package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/chewie/internal/model"
	"github.com/xxxsen/chewie/internal/pkg/dbutil"
	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
)

const documentTable = "documents"

var documentFields = []string{
	"id", "title", "content", "url", "scope", "doc_type", "embedding_model", "metadata", "created_at", "updated_at",
}

const documentColumns = `id, title, content, url, scope, doc_type, embedding_model, metadata, created_at, updated_at`

type DocumentChunkRepo struct {
	db *sql.DB
}

func NewDocumentChunkRepo(db *sql.DB) *DocumentChunkRepo {
	return &DocumentChunkRepo{db: db}
}

func (r *DocumentChunkRepo) Insert(ctx context.Context, c *model.DocumentChunk) error {
	var meta interface{}
	if len(c.Metadata) > 0 {
		raw, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode chunk metadata: %w", err)
		}
		meta = string(raw)
	}
	data := map[string]interface{}{
		"id":              c.ID,
		"title":           c.Title,
		"content":         c.Content,
		"url":             c.URL,
		"scope":           c.Scope,
		"doc_type":        c.DocType,
		"embedding":       pgvector.NewVector(c.Embedding),
		"embedding_model": c.EmbeddingModel,
		"metadata":        meta,
		"created_at":      c.CreatedAt,
		"updated_at":      c.UpdatedAt,
	}
	sqlStr, args, err := builder.BuildInsert(documentTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return fmt.Errorf("chunk %s exists: %w", c.ID, appErr.ErrInvalid)
		}
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// Nearest ranks the embedded chunks of scope by ascending cosine distance.
func (r *DocumentChunkRepo) Nearest(ctx context.Context, scope string, vec []float32, limit int) ([]model.RetrievedChunk, error) {
	const query = `SELECT ` + documentColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE scope = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vec), scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.RetrievedChunk, 0, limit)
	for rows.Next() {
		var item model.RetrievedChunk
		chunk, err := scanChunk(rows, &item.Similarity)
		if err != nil {
			return nil, err
		}
		item.DocumentChunk = *chunk
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *DocumentChunkRepo) GetByID(ctx context.Context, id string) (*model.DocumentChunk, error) {
	sqlStr, args, err := builder.BuildSelect(documentTable, map[string]interface{}{"id": id}, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanChunk(rows)
}

func (r *DocumentChunkRepo) UpdateEmbedding(ctx context.Context, id string, vec []float32, modelName string, at time.Time) error {
	update := map[string]interface{}{
		"embedding":       pgvector.NewVector(vec),
		"embedding_model": modelName,
		"updated_at":      at,
	}
	sqlStr, args, err := builder.BuildUpdate(documentTable, map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// ListStale returns chunks whose embedding is missing or was produced by a
// model other than modelName.
func (r *DocumentChunkRepo) ListStale(ctx context.Context, modelName string, limit int) ([]model.DocumentChunk, error) {
	const query = `SELECT ` + documentColumns + `
		FROM documents
		WHERE embedding IS NULL OR embedding_model <> $1
		ORDER BY updated_at ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, modelName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DocumentChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *chunk)
	}
	return out, rows.Err()
}

func (r *DocumentChunkRepo) CountByScope(ctx context.Context, scope string) (int64, error) {
	sqlStr, args, err := builder.BuildSelect(documentTable, map[string]interface{}{"scope": scope}, []string{"COUNT(1)"})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var count int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanChunk(rows *sql.Rows, extra ...interface{}) (*model.DocumentChunk, error) {
	var (
		c    model.DocumentChunk
		meta []byte
	)
	dest := []interface{}{
		&c.ID, &c.Title, &c.Content, &c.URL, &c.Scope, &c.DocType, &c.EmbeddingModel, &meta, &c.CreatedAt, &c.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
	}
	return &c, nil
}
