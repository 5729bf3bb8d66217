package service

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/util"

	"go.uber.org/zap"
)

// SessionCounter 当前打开的同步会话数
type SessionCounter interface {
	Len() int
}

// AdminService 平台管理员的统计和维护操作
type AdminService struct {
	store    interfaces.DocumentStore
	projects *ProjectService
	sessions SessionCounter
}

// NewAdminService 创建一个新的 AdminService 实例
func NewAdminService(store interfaces.DocumentStore, projects *ProjectService, sessions SessionCounter) *AdminService {
	return &AdminService{
		store:    store,
		projects: projects,
		sessions: sessions,
	}
}

// GetSystemStats 统计小组、项目提交和会话
func (s *AdminService) GetSystemStats(ctx context.Context) (*model.SystemStats, error) {
	stats := &model.SystemStats{}

	groups, err := s.store.Query(ctx, model.NewQuery(model.CollectionGroups))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取小组失败", err)
	}
	stats.TotalGroups = len(groups)
	for _, doc := range groups {
		switch model.GroupStatus(stringField(doc, "status")) {
		case model.GroupActive:
			stats.ActiveGroups++
		case model.GroupCompleted:
			stats.CompletedGroups++
		}
	}

	subs, err := s.store.Query(ctx, model.NewQuery(model.CollectionSubmissions))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取项目提交失败", err)
	}
	stats.TotalSubmissions = len(subs)
	for _, doc := range subs {
		if notified, _ := doc.Data["admin_notified_of_submission"].(bool); notified {
			stats.NotifiedAdmins++
		}
	}

	if s.sessions != nil {
		stats.OpenSessions = s.sessions.Len()
	}
	return stats, nil
}

// ListSubmissions 列出项目提交，groupID 为空时返回全部
func (s *AdminService) ListSubmissions(ctx context.Context, groupID string) ([]model.ProjectSubmission, error) {
	q := model.NewQuery(model.CollectionSubmissions)
	if groupID != "" {
		q = model.NewQuery(model.CollectionSubmissions, model.Where("group_id", groupID))
	}
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取项目提交失败", err)
	}
	subs := make([]model.ProjectSubmission, 0, len(docs))
	for _, doc := range docs {
		var sub model.ProjectSubmission
		if err := doc.DataTo(&sub); err != nil {
			util.Logger.Warn("跳过无法解析的项目提交", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// RetryFailedNotifications 对所有渠道都失败的提交重新执行级联通知，返回送达数量
func (s *AdminService) RetryFailedNotifications(ctx context.Context) (int, error) {
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionSubmissions,
		model.Where("admin_notified_of_submission", false)))
	if err != nil {
		return 0, svcerrors.Wrap(svcerrors.ErrDatabase, "读取项目提交失败", err)
	}

	delivered := 0
	var errs []error
	for _, doc := range docs {
		if doc.Data["notification_failed_at"] == nil {
			continue
		}
		var sub model.ProjectSubmission
		if err := doc.DataTo(&sub); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if s.projects.DispatchNotifications(ctx, &sub).Delivered {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

func stringField(doc *model.Document, field string) string {
	v, _ := doc.Data[field].(string)
	return v
}
