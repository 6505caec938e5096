package response

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/chewie/internal/pkg/errcode"
	appErr "github.com/xxxsen/chewie/internal/pkg/errors"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}

// FromError maps a service error onto the error code envelope.
func FromError(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, appErr.ErrInvalid):
		Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrNotFound):
		Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrTooMany):
		Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrUnavailable):
		Error(c, errcode.ErrAIUnavailable, "ai not configured")
	case errors.Is(err, appErr.ErrEmbedding):
		Error(c, errcode.ErrEmbeddingFailed, "embedding failed")
	case errors.Is(err, appErr.ErrRetrieval):
		Error(c, errcode.ErrCacheUnavailable, "cache unavailable")
	default:
		Error(c, errcode.ErrInternal, "internal error")
	}
}
