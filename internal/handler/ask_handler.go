package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chewie/internal/model"
	"github.com/xxxsen/chewie/internal/pkg/errcode"
	"github.com/xxxsen/chewie/internal/pkg/response"
)

type Asker interface {
	Ask(ctx context.Context, req *model.AskRequest) (*model.AskResponse, error)
}

type AskHandler struct {
	asker Asker
}

func NewAskHandler(asker Asker) *AskHandler {
	return &AskHandler{asker: asker}
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	resp, err := h.asker.Ask(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *AskHandler) Test(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "ok",
		"message": "Ask endpoint is operational",
	})
}
