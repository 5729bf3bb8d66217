package service

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/util"
	"strings"

	"go.uber.org/zap"
)

// UserService 读写平台用户资料，点赞列表的名称解析依赖这些资料
type UserService struct {
	store interfaces.DocumentStore
}

// NewUserService 创建一个新的 UserService 实例
func NewUserService(store interfaces.DocumentStore) *UserService {
	return &UserService{store: store}
}

// GetProfile 读取用户资料
func (s *UserService) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	doc, err := s.store.Get(ctx, model.CollectionUsers, userID)
	if errors.Is(err, model.ErrDocumentNotFound) {
		return nil, svcerrors.Wrap(svcerrors.ErrNotFound, "用户资料不存在", err)
	}
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取用户资料失败", err)
	}
	var profile model.UserProfile
	if err := doc.DataTo(&profile); err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "用户资料无效", err)
	}
	return &profile, nil
}

// UpdateProfile 创建或覆盖当前用户的资料，文档 id 与用户 id 相同
func (s *UserService) UpdateProfile(ctx context.Context, identity model.Identity, profile *model.UserProfile) (*model.UserProfile, error) {
	if identity.UserID == "" {
		return nil, svcerrors.New(svcerrors.ErrUnauthorized, "未登录")
	}
	profile.ID = identity.UserID
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	profile.Bio = strings.TrimSpace(profile.Bio)
	if profile.Email == "" {
		profile.Email = identity.Email
	}
	if len(profile.Bio) > 1000 {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "个人简介过长")
	}

	fields, err := model.EncodeFields(profile)
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "用户资料无效", err)
	}
	delete(fields, "updated_at")
	if err := s.store.Set(ctx, model.CollectionUsers, identity.UserID, fields); err != nil {
		util.Logger.Error("保存用户资料失败", zap.String("user_id", identity.UserID), zap.Error(err))
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "保存用户资料失败", err)
	}
	if err := s.store.Update(ctx, model.CollectionUsers, identity.UserID, model.ServerTimestamp("updated_at")); err != nil {
		util.Logger.Warn("更新资料时间失败", zap.String("user_id", identity.UserID), zap.Error(err))
	}
	return s.GetProfile(ctx, identity.UserID)
}
