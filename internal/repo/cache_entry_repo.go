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

const cacheTable = "query_cache"

var cacheEntryFields = []string{
	"id", "query_text", "scope", "query_type", "pool_id", "amount", "currency", "client_id",
	"response_json", "confidence", "llm_provider", "llm_model", "use_count",
	"last_used_at", "created_at", "updated_at",
}

const cacheEntryColumns = `id, query_text, scope, query_type, pool_id, amount, currency, client_id,
	response_json, confidence, llm_provider, llm_model, use_count,
	last_used_at, created_at, updated_at`

type CacheEntryRepo struct {
	db *sql.DB
}

func NewCacheEntryRepo(db *sql.DB) *CacheEntryRepo {
	return &CacheEntryRepo{db: db}
}

func (r *CacheEntryRepo) Insert(ctx context.Context, e *model.CacheEntry) error {
	data := map[string]interface{}{
		"id":              e.ID,
		"query_text":      e.QueryText,
		"query_embedding": pgvector.NewVector(e.Embedding),
		"query_type":      string(e.QueryType),
		"scope":           e.Scope,
		"pool_id":         dbutil.NullableString(e.PoolID),
		"amount":          dbutil.NullableFloat(e.Amount),
		"currency":        dbutil.NullableString(e.Currency),
		"client_id":       dbutil.NullableString(e.ClientID),
		"response_json":   string(e.Response),
		"confidence":      dbutil.NullableFloat(e.Confidence),
		"llm_provider":    e.Provider,
		"llm_model":       e.Model,
		"use_count":       e.UseCount,
		"last_used_at":    e.LastUsedAt,
		"created_at":      e.CreatedAt,
		"updated_at":      e.UpdatedAt,
	}
	sqlStr, args, err := builder.BuildInsert(cacheTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// Nearest returns the closest entry of scope by cosine distance together
// with its similarity. Entries last updated before notBefore are skipped.
// A nil entry means the scope has no candidates.
func (r *CacheEntryRepo) Nearest(ctx context.Context, scope string, vec []float32, notBefore *time.Time) (*model.CacheEntry, float64, error) {
	args := []interface{}{pgvector.NewVector(vec), scope}
	query := `SELECT ` + cacheEntryColumns + `, 1 - (query_embedding <=> $1) AS similarity
		FROM query_cache
		WHERE scope = $2`
	if notBefore != nil {
		query += ` AND updated_at >= $3`
		args = append(args, *notBefore)
	}
	query += ` ORDER BY query_embedding <=> $1 LIMIT 1`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, 0, rows.Err()
	}
	var similarity float64
	entry, err := scanCacheEntry(rows, &similarity)
	if err != nil {
		return nil, 0, err
	}
	return entry, similarity, nil
}

func (r *CacheEntryRepo) GetByID(ctx context.Context, id string) (*model.CacheEntry, error) {
	sqlStr, args, err := builder.BuildSelect(cacheTable, map[string]interface{}{"id": id}, cacheEntryFields)
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
	return scanCacheEntry(rows)
}

// Touch records a hit. updated_at stays untouched so staleness keeps
// measuring time since the answer was generated.
func (r *CacheEntryRepo) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE query_cache SET use_count = use_count + 1, last_used_at = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, at, id)
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

// Delete removes entries matching every non-empty filter.
func (r *CacheEntryRepo) Delete(ctx context.Context, scope, poolID string, updatedBefore *time.Time) (int64, error) {
	where := map[string]interface{}{}
	if scope != "" {
		where["scope"] = scope
	}
	if poolID != "" {
		where["pool_id"] = poolID
	}
	if updatedBefore != nil {
		where["updated_at <"] = *updatedBefore
	}
	var (
		sqlStr string
		args   []interface{}
		err    error
	)
	if len(where) == 0 {
		sqlStr = "DELETE FROM " + cacheTable
	} else {
		sqlStr, args, err = builder.BuildDelete(cacheTable, where)
		if err != nil {
			return 0, err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *CacheEntryRepo) Stats(ctx context.Context, scope string, topN int) (*model.CacheStats, error) {
	where := map[string]interface{}{}
	if scope != "" {
		where["scope"] = scope
	}
	sqlStr, args, err := builder.BuildSelect(cacheTable, where, []string{"COUNT(1)", "MIN(created_at)", "MAX(created_at)"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	stats := &model.CacheStats{MostUsed: []model.PopularQuery{}}
	var oldest, newest sql.NullTime
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&stats.TotalEntries, &oldest, &newest); err != nil {
		return nil, err
	}
	if oldest.Valid {
		stats.OldestEntry = &oldest.Time
	}
	if newest.Valid {
		stats.NewestEntry = &newest.Time
	}
	if topN <= 0 || stats.TotalEntries == 0 {
		return stats, nil
	}

	popularWhere := map[string]interface{}{
		"_orderby": "use_count desc",
		"_limit":   []uint{0, uint(topN)},
	}
	for k, v := range where {
		popularWhere[k] = v
	}
	sqlStr, args, err = builder.BuildSelect(cacheTable, popularWhere, []string{"query_text", "use_count"})
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
		var item model.PopularQuery
		if err := rows.Scan(&item.Query, &item.UseCount); err != nil {
			return nil, err
		}
		stats.MostUsed = append(stats.MostUsed, item)
	}
	return stats, rows.Err()
}

func scanCacheEntry(rows *sql.Rows, extra ...interface{}) (*model.CacheEntry, error) {
	var (
		e                          model.CacheEntry
		queryType                  string
		poolID, currency, clientID sql.NullString
		amount, confidence         sql.NullFloat64
		response                   []byte
	)
	dest := []interface{}{
		&e.ID, &e.QueryText, &e.Scope, &queryType, &poolID, &amount, &currency, &clientID,
		&response, &confidence, &e.Provider, &e.Model, &e.UseCount,
		&e.LastUsedAt, &e.CreatedAt, &e.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	e.QueryType = model.QueryType(queryType)
	e.PoolID = dbutil.StringOf(poolID)
	e.Currency = dbutil.StringOf(currency)
	e.ClientID = dbutil.StringOf(clientID)
	e.Amount = dbutil.FloatOf(amount)
	e.Confidence = dbutil.FloatOf(confidence)
	e.Response = json.RawMessage(response)
	return &e, nil
}
