package user

import (
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/middleware"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/service"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/storage"
	"groupboard-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProfileHandler struct {
	userService *service.UserService
	images      *storage.ImageHost
}

func NewProfileHandler(userService *service.UserService, images *storage.ImageHost) *ProfileHandler {
	return &ProfileHandler{userService, images}
}

// GetProfile 返回当前用户资料，尚未保存过资料时按令牌身份返回
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	profile, err := h.current(c, identity)
	if err != nil {
		util.Logger.Error("获取用户资料失败", zap.String("user_id", identity.UserID), zap.Error(err))
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"user": profile}, "")
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var updateData struct {
		FirstName   string `json:"first_name" binding:"max=100"`
		LastName    string `json:"last_name" binding:"max=100"`
		DisplayName string `json:"display_name" binding:"max=100"`
		Email       string `json:"email" binding:"omitempty,email"`
		Bio         string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		util.Logger.Warn("更新用户资料失败，无效的请求数据", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的请求数据", err))
		return
	}

	profile, err := h.current(c, identity)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	profile.FirstName = updateData.FirstName
	profile.LastName = updateData.LastName
	profile.DisplayName = updateData.DisplayName
	profile.Bio = updateData.Bio
	if updateData.Email != "" {
		profile.Email = updateData.Email
	}

	saved, err := h.userService.UpdateProfile(c.Request.Context(), identity, profile)
	if err != nil {
		util.Logger.Error("更新用户资料失败", zap.Error(err))
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"user": saved}, "资料更新成功")
}

// UploadAvatar 上传头像并写入资料
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	fh, err := c.FormFile("avatar")
	if err != nil {
		util.Logger.Warn("获取上传文件失败", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "无法获取上传文件", err))
		return
	}
	file, err := storage.FromMultipart(fh)
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "无法读取上传文件", err))
		return
	}
	res, err := h.images.Upload(c.Request.Context(), file)
	if err != nil {
		if storage.IsValidationError(err) {
			errors.HandleError(c, errors.Wrap(errors.ErrImageRejected, "头像格式或大小不符合要求", err))
			return
		}
		errors.HandleError(c, errors.Wrap(errors.ErrUpstream, "上传头像失败", err))
		return
	}

	profile, err := h.current(c, identity)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	profile.PhotoURL = res.URL
	saved, err := h.userService.UpdateProfile(c.Request.Context(), identity, profile)
	if err != nil {
		util.Logger.Error("更新用户头像失败", zap.Error(err))
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"avatar_url": saved.PhotoURL}, "头像上传成功")
}

func (h *ProfileHandler) current(c *gin.Context, identity model.Identity) (*model.UserProfile, error) {
	profile, err := h.userService.GetProfile(c.Request.Context(), identity.UserID)
	if err == nil {
		return profile, nil
	}
	if svcerrors.GetErrorCode(err) == svcerrors.ErrNotFound {
		return &model.UserProfile{
			ID:          identity.UserID,
			Email:       identity.Email,
			FirstName:   identity.FirstName,
			LastName:    identity.LastName,
			DisplayName: identity.DisplayName,
			PhotoURL:    identity.PhotoURL,
		}, nil
	}
	return nil, err
}
