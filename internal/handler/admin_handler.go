package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chewie/internal/model"
	"github.com/xxxsen/chewie/internal/pkg/errcode"
	"github.com/xxxsen/chewie/internal/pkg/response"
	"github.com/xxxsen/chewie/internal/retrieval"
)

type CacheAdmin interface {
	Invalidate(ctx context.Context, f model.InvalidateFilter) (int64, error)
	Stats(ctx context.Context, scope string) (*model.CacheStats, error)
	Entry(ctx context.Context, id string) (*model.CacheEntry, error)
}

type DocumentIngester interface {
	Ingest(ctx context.Context, p retrieval.AddParams) ([]string, error)
	ReEmbedStale(ctx context.Context, limit int) (int, error)
}

type AdminHandler struct {
	cache          CacheAdmin
	index          DocumentIngester
	maxIngestBytes int64
}

func NewAdminHandler(cache CacheAdmin, index DocumentIngester, maxIngestBytes int64) *AdminHandler {
	if maxIngestBytes <= 0 {
		maxIngestBytes = defaultMaxIngestBytes
	}
	return &AdminHandler{cache: cache, index: index, maxIngestBytes: maxIngestBytes}
}

type refreshRequest struct {
	Scope          string `json:"scope"`
	PoolID         string `json:"pool_id"`
	OlderThanHours int    `json:"older_than_hours"`
}

type ingestRequest struct {
	Title    string                 `json:"title"`
	Content  string                 `json:"content"`
	URL      string                 `json:"url"`
	Scope    string                 `json:"scope"`
	DocType  string                 `json:"doc_type"`
	Metadata map[string]interface{} `json:"metadata"`
}

type reembedRequest struct {
	Limit int `json:"limit"`
}

// normalizeScope matches the lowercase scope keys the ask path stores under.
func normalizeScope(scope string) string {
	return strings.ToLower(strings.TrimSpace(scope))
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.cache.Stats(c.Request.Context(), normalizeScope(c.Query("scope")))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *AdminHandler) Entry(c *gin.Context) {
	entry, err := h.cache.Entry(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entry)
}

func (h *AdminHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	h.invalidate(c, model.InvalidateFilter{
		Scope:          normalizeScope(req.Scope),
		PoolID:         strings.TrimSpace(req.PoolID),
		OlderThanHours: req.OlderThanHours,
	}, "Invalidated")
}

func (h *AdminHandler) Clear(c *gin.Context) {
	h.invalidate(c, model.InvalidateFilter{
		Scope:  normalizeScope(c.Query("scope")),
		PoolID: strings.TrimSpace(c.Query("pool_id")),
	}, "Cleared")
}

func (h *AdminHandler) invalidate(c *gin.Context, f model.InvalidateFilter, verb string) {
	deleted, err := h.cache.Invalidate(c.Request.Context(), f)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"status":          "success",
		"deleted_entries": deleted,
		"message":         fmt.Sprintf("%s %d cache entries", verb, deleted),
	})
}

func (h *AdminHandler) Ingest(c *gin.Context) {
	limitBody(c, h.maxIngestBytes)
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, errcode.ErrInvalid, "document exceeds "+formatByteLimit(h.maxIngestBytes))
			return
		}
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ids, err := h.index.Ingest(c.Request.Context(), retrieval.AddParams{
		Title:    req.Title,
		Content:  req.Content,
		URL:      req.URL,
		Scope:    normalizeScope(req.Scope),
		DocType:  req.DocType,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ids": ids, "chunks": len(ids)})
}

func (h *AdminHandler) ReEmbed(c *gin.Context) {
	var req reembedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	n, err := h.index.ReEmbedStale(c.Request.Context(), req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"reembedded": n})
}
