package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chewie/internal/pkg/response"
)

const (
	Version        = "1.0.0"
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	pingTimeout    = 3 * time.Second
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

type HealthHandler struct {
	checks   map[string]Checker
	services map[string]string
	now      func() time.Time
}

// NewHealthHandler takes live checks plus static service descriptions such as
// the configured llm provider.
func NewHealthHandler(checks map[string]Checker, services map[string]string) *HealthHandler {
	return &HealthHandler{checks: checks, services: services, now: time.Now}
}

func (h *HealthHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    statusHealthy,
		"timestamp": h.now().UTC(),
		"version":   Version,
	})
}

func (h *HealthHandler) run(ctx context.Context) (map[string]string, bool) {
	out := make(map[string]string, len(h.checks)+len(h.services))
	for k, v := range h.services {
		out[k] = v
	}
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	ok := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := h.checks[name](cctx)
		cancel()
		if err != nil {
			out[name] = "unhealthy: " + err.Error()
			ok = false
			continue
		}
		out[name] = statusHealthy
	}
	return out, ok
}

func (h *HealthHandler) Detailed(c *gin.Context) {
	services, ok := h.run(c.Request.Context())
	status := statusHealthy
	if !ok {
		status = statusDegraded
	}
	response.Success(c, gin.H{
		"status":    status,
		"timestamp": h.now().UTC(),
		"version":   Version,
		"services":  services,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if _, ok := h.run(c.Request.Context()); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
