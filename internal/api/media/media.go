package media

import (
	stderrors "errors"
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/storage"
	"groupboard-backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MediaHandler 图片预览和删除
type MediaHandler struct {
	images *storage.ImageHost
}

func NewMediaHandler(images *storage.ImageHost) *MediaHandler {
	return &MediaHandler{images: images}
}

// Preview 返回暂存图片的预览内容
func (h *MediaHandler) Preview(c *gin.Context) {
	contentType, data, err := h.images.OpenPreview(c.Param("token"))
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrResourceNotFound, "预览不存在或已撤销", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, data)
}

// Delete 通过删除凭证删除已上传的图片
func (h *MediaHandler) Delete(c *gin.Context) {
	hash := c.Param("hash")
	if err := h.images.Delete(c.Request.Context(), hash); err != nil {
		if stderrors.Is(err, storage.ErrUnknownDeleteHash) {
			errors.HandleError(c, errors.Wrap(errors.ErrResourceNotFound, "图片不存在", err))
			return
		}
		util.Logger.Error("删除图片失败", zap.String("delete_hash", hash), zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrUpstream, "删除图片失败", err))
		return
	}
	errors.HandleSuccess(c, nil, "图片已删除")
}
