package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/chewie/internal/model"
	"github.com/xxxsen/chewie/internal/pkg/dbutil"
)

const (
	embeddingCacheTable  = "embedding_cache"
	embeddingCacheUpsert = " ON CONFLICT (model_name, content_hash) DO UPDATE SET embedding = EXCLUDED.embedding, ctime = EXCLUDED.ctime"
)

// EmbeddingCacheRepo keeps provider vectors keyed by (model, content hash)
// so identical text is embedded once per model.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// GetMany returns the cached vectors of modelName for the given hashes.
// Hashes without a row are absent from the result.
func (r *EmbeddingCacheRepo) GetMany(ctx context.Context, modelName string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	in := make([]interface{}, 0, len(hashes))
	for _, h := range hashes {
		in = append(in, h)
	}
	where := map[string]interface{}{
		"model_name":      modelName,
		"content_hash in": in,
	}
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, where, []string{"content_hash", "embedding"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			hash string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, err
		}
		out[hash] = vec.Slice()
	}
	return out, rows.Err()
}

// SaveMany upserts items in one statement. Later items win when a key
// repeats.
func (r *EmbeddingCacheRepo) SaveMany(ctx context.Context, items []*model.EmbeddingCache) error {
	if len(items) == 0 {
		return nil
	}
	type key struct{ model, hash string }
	pos := make(map[key]int, len(items))
	uniq := make([]*model.EmbeddingCache, 0, len(items))
	for _, item := range items {
		k := key{item.ModelName, item.ContentHash}
		if i, ok := pos[k]; ok {
			uniq[i] = item
			continue
		}
		pos[k] = len(uniq)
		uniq = append(uniq, item)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + embeddingCacheTable + " (model_name, content_hash, embedding, ctime) VALUES ")
	args := make([]interface{}, 0, len(uniq)*4)
	for i, item := range uniq {
		if i > 0 {
			b.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, item.ModelName, item.ContentHash, pgvector.NewVector(item.Embedding), item.Ctime)
	}
	b.WriteString(embeddingCacheUpsert)
	_, err := r.db.ExecContext(ctx, b.String(), args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(embeddingCacheTable, map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
