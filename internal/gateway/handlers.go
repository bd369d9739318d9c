package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/remote"
)

type Handler struct {
	store remote.ChunkStore
}

type resourceQuery struct {
	Path string `form:"path" binding:"required"`
}

type chunkQuery struct {
	Path  string `form:"path" binding:"required"`
	Index *int   `form:"index" binding:"required,min=0"`
}

func (h *Handler) ResourceInfo(ctx *gin.Context) {
	var q resourceQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		abortWithError(ctx, http.StatusBadRequest, remote.CodeInvalidRequest, err)
		return
	}

	info, err := h.store.ResourceInfo(ctx.Request.Context(), q.Path)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, info)
}

func (h *Handler) GetChunk(ctx *gin.Context) {
	var q chunkQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		abortWithError(ctx, http.StatusBadRequest, remote.CodeInvalidRequest, err)
		return
	}

	c, err := h.store.GetChunk(ctx.Request.Context(), q.Path, *q.Index)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &remote.ChunkResponse{
		Content:     c.Bytes,
		ContentType: c.ContentType,
	})
}

func (h *Handler) SetChunk(ctx *gin.Context) {
	var body remote.SetChunkRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		abortWithError(ctx, http.StatusBadRequest, remote.CodeInvalidRequest, err)
		return
	}

	receipt, err := h.store.SetChunk(ctx.Request.Context(), body.Path, body.Index, body.Content, body.ContentType, body.RedirectCode)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &remote.WriteResponse{ReceiptID: receipt})
}

func (h *Handler) AppendChunk(ctx *gin.Context) {
	var body remote.AppendChunkRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		abortWithError(ctx, http.StatusBadRequest, remote.CodeInvalidRequest, err)
		return
	}

	receipt, err := h.store.AppendChunk(ctx.Request.Context(), body.Path, body.Content, body.ContentType)
	if err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &remote.WriteResponse{ReceiptID: receipt})
}

func (h *Handler) RemoveResource(ctx *gin.Context) {
	var q resourceQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		abortWithError(ctx, http.StatusBadRequest, remote.CodeInvalidRequest, err)
		return
	}

	if err := h.store.RemoveResource(ctx.Request.Context(), q.Path); err != nil {
		abortWithStoreError(ctx, err)
		return
	}
	slog.Info("resource removed", "path", q.Path, "client", ctx.GetHeader(remote.HeaderClientID))
	ctx.Status(http.StatusNoContent)
}

func abortWithStoreError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		abortWithError(ctx, http.StatusNotFound, remote.CodeResourceNotFound, err)
	case errors.Is(err, errs.ErrRejected):
		abortWithError(ctx, http.StatusUnprocessableEntity, remote.CodeInvalidRequest, err)
	case errors.Is(err, errs.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		abortWithError(ctx, http.StatusServiceUnavailable, remote.CodeStoreUnavailable, err)
	default:
		abortWithError(ctx, http.StatusInternalServerError, remote.CodeInternalError, fmt.Errorf("store: %w", err))
	}
}

func abortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, remote.APIError{
		Code:    code,
		Message: err.Error(),
	})
}
