package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chewie/internal/pkg/errcode"
	"github.com/xxxsen/chewie/internal/pkg/response"
)

const (
	APIKeyHeader        = "X-API-Key"
	ContextClientKeyKey = "client_key"
)

// APIKey rejects requests whose X-API-Key header is not in keys. An empty
// key list disables the check.
func APIKey(keys []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(APIKeyHeader))
		if key == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing api key")
			c.Abort()
			return
		}
		if _, ok := allowed[key]; !ok {
			response.Error(c, errcode.ErrForbidden, "invalid api key")
			c.Abort()
			return
		}
		c.Set(ContextClientKeyKey, key)
		c.Next()
	}
}
