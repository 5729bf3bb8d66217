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

// GroupService 小组和成员管理
type GroupService struct {
	store interfaces.DocumentStore
}

func NewGroupService(store interfaces.DocumentStore) *GroupService {
	return &GroupService{store: store}
}

// CreateGroup 创建小组，创建者成为管理员
func (s *GroupService) CreateGroup(ctx context.Context, title, description string, creator model.Identity) (*model.Group, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "小组名称不能为空")
	}
	group := &model.Group{
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      model.GroupActive,
		MemberCount: 1,
		CreatedBy:   creator.UserID,
	}
	fields, err := model.EncodeFields(group)
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "小组数据无效", err)
	}
	id, err := s.store.Add(ctx, model.CollectionGroups, fields,
		model.ServerTimestamp("created_at"), model.ServerTimestamp("updated_at"))
	if err != nil {
		util.Logger.Error("创建小组失败", zap.Error(err))
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "创建小组失败", err)
	}
	group.ID = id

	if _, err := s.addMember(ctx, id, creator, model.RoleAdmin); err != nil {
		return nil, err
	}
	util.Logger.Info("小组创建成功", zap.String("group_id", id), zap.String("created_by", creator.UserID))
	return s.GetGroup(ctx, id)
}

// GetGroup 读取小组
func (s *GroupService) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	doc, err := s.store.Get(ctx, model.CollectionGroups, id)
	if errors.Is(err, model.ErrDocumentNotFound) {
		return nil, svcerrors.Wrap(svcerrors.ErrNotFound, "小组不存在", err)
	}
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取小组失败", err)
	}
	var g model.Group
	if err := doc.DataTo(&g); err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "小组数据无效", err)
	}
	return &g, nil
}

// ListGroups 列出全部小组
func (s *GroupService) ListGroups(ctx context.Context) ([]model.Group, error) {
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionGroups))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取小组失败", err)
	}
	groups := make([]model.Group, 0, len(docs))
	for _, doc := range docs {
		var g model.Group
		if err := doc.DataTo(&g); err != nil {
			util.Logger.Warn("跳过无法解析的小组", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Membership 读取用户在小组中的成员记录，包括已移除的
func (s *GroupService) Membership(ctx context.Context, groupID, userID string) (*model.Member, error) {
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionMembers,
		model.Where("group_id", groupID),
		model.Where("user_id", userID)))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取成员失败", err)
	}
	members := decodeMembers(docs)
	if len(members) == 0 {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "不是小组成员")
	}
	return &members[0], nil
}

// Join 加入小组，已移除的成员重新激活原记录
func (s *GroupService) Join(ctx context.Context, groupID string, identity model.Identity) (*model.Member, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status == model.GroupCompleted {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "小组已结束，无法加入")
	}

	existing, err := s.Membership(ctx, groupID, identity.UserID)
	if err != nil && svcerrors.GetErrorCode(err) != svcerrors.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		if existing.IsActive() {
			return nil, svcerrors.New(svcerrors.ErrDuplicate, "已经是小组成员")
		}
		if err := s.store.Update(ctx, model.CollectionMembers, existing.ID,
			model.Set("status", string(model.MemberActive)),
			model.Set("user_name", displayName(identity)),
			model.ServerTimestamp("joined_at")); err != nil {
			return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "加入小组失败", err)
		}
		s.adjustCount(ctx, groupID, 1)
		return s.Membership(ctx, groupID, identity.UserID)
	}

	member, err := s.addMember(ctx, groupID, identity, model.RoleMember)
	if err != nil {
		return nil, err
	}
	s.adjustCount(ctx, groupID, 1)
	return member, nil
}

// RemoveMember 移除成员，只修改状态不删除记录
func (s *GroupService) RemoveMember(ctx context.Context, groupID, userID string, actor model.Identity) error {
	if err := s.requireAdmin(ctx, groupID, actor); err != nil {
		return err
	}
	member, err := s.Membership(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member.IsActive() {
		return svcerrors.New(svcerrors.ErrNotFound, "成员已不在小组中")
	}
	if err := s.store.Update(ctx, model.CollectionMembers, member.ID,
		model.Set("status", string(model.MemberRemoved))); err != nil {
		return svcerrors.Wrap(svcerrors.ErrDatabase, "移除成员失败", err)
	}
	s.adjustCount(ctx, groupID, -1)
	util.Logger.Info("成员已移除", zap.String("group_id", groupID), zap.String("user_id", userID), zap.String("actor", actor.UserID))
	return nil
}

// UpdateStatus 修改小组状态
func (s *GroupService) UpdateStatus(ctx context.Context, groupID string, status model.GroupStatus, actor model.Identity) error {
	if !status.Valid() {
		return svcerrors.New(svcerrors.ErrInvalidInput, "无效的小组状态")
	}
	if err := s.requireAdmin(ctx, groupID, actor); err != nil {
		return err
	}
	err := s.store.Update(ctx, model.CollectionGroups, groupID,
		model.Set("status", string(status)),
		model.ServerTimestamp("updated_at"))
	if errors.Is(err, model.ErrDocumentNotFound) {
		return svcerrors.Wrap(svcerrors.ErrNotFound, "小组不存在", err)
	}
	if err != nil {
		return svcerrors.Wrap(svcerrors.ErrDatabase, "更新小组状态失败", err)
	}
	return nil
}

// ReconcileMemberCount 按活跃成员数修正 member_count，返回修正后的值和是否发生变化
func (s *GroupService) ReconcileMemberCount(ctx context.Context, groupID string) (int, bool, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return 0, false, err
	}
	active, err := s.activeMembers(ctx, groupID)
	if err != nil {
		return 0, false, err
	}
	count := len(active)
	if count == group.MemberCount {
		return count, false, nil
	}
	if err := s.store.Update(ctx, model.CollectionGroups, groupID, model.Set("member_count", count)); err != nil {
		return 0, false, svcerrors.Wrap(svcerrors.ErrDatabase, "更新成员数失败", err)
	}
	util.Logger.Info("成员数已修正",
		zap.String("group_id", groupID),
		zap.Int("from", group.MemberCount),
		zap.Int("to", count))
	return count, true, nil
}

// ReconcileAll 修正全部小组的成员数，单个小组失败不影响其他小组
func (s *GroupService) ReconcileAll(ctx context.Context) (int, error) {
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	changed := 0
	for _, g := range groups {
		_, updated, err := s.ReconcileMemberCount(ctx, g.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if updated {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}

// Stats 小组活动统计
func (s *GroupService) Stats(ctx context.Context, groupID string) (*model.GroupStats, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	active, err := s.activeMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionPosts, model.Where("group_id", groupID)))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取帖子失败", err)
	}
	stats := &model.GroupStats{
		GroupID:       groupID,
		ActiveMembers: len(active),
		MemberCount:   group.MemberCount,
		TotalPosts:    len(docs),
	}
	for _, doc := range docs {
		var p model.Post
		if err := doc.DataTo(&p); err != nil {
			continue
		}
		if p.IsPinned {
			stats.PinnedPosts++
		}
		stats.TotalReplies += p.ReplyCount
		stats.TotalLikes += p.LikeCount
	}
	return stats, nil
}

func (s *GroupService) activeMembers(ctx context.Context, groupID string) ([]model.Member, error) {
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionMembers,
		model.Where("group_id", groupID),
		model.Where("status", string(model.MemberActive))))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取成员失败", err)
	}
	return decodeMembers(docs), nil
}

func (s *GroupService) requireAdmin(ctx context.Context, groupID string, actor model.Identity) error {
	if actor.IsPlatformAdmin() {
		return nil
	}
	member, err := s.Membership(ctx, groupID, actor.UserID)
	if err != nil || !member.IsActive() || !member.IsAdmin() {
		return svcerrors.New(svcerrors.ErrForbidden, "只有小组管理员可以执行此操作")
	}
	return nil
}

func (s *GroupService) addMember(ctx context.Context, groupID string, identity model.Identity, role model.MemberRole) (*model.Member, error) {
	member := &model.Member{
		GroupID:   groupID,
		UserID:    identity.UserID,
		UserEmail: identity.Email,
		UserName:  displayName(identity),
		Role:      role,
		Status:    model.MemberActive,
	}
	fields, err := model.EncodeFields(member)
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "成员数据无效", err)
	}
	id, err := s.store.Add(ctx, model.CollectionMembers, fields, model.ServerTimestamp("joined_at"))
	if err != nil {
		util.Logger.Error("添加成员失败", zap.String("group_id", groupID), zap.Error(err))
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "加入小组失败", err)
	}
	member.ID = id
	return member, nil
}

// adjustCount 成员数只是展示用的冗余字段，失败时等待定期修正
func (s *GroupService) adjustCount(ctx context.Context, groupID string, delta int) {
	if err := s.store.Update(ctx, model.CollectionGroups, groupID, model.Increment("member_count", delta)); err != nil {
		util.Logger.Warn("更新成员数失败", zap.String("group_id", groupID), zap.Error(err))
	}
}

// displayName 成员记录中保存的用户名
func displayName(identity model.Identity) string {
	first := strings.TrimSpace(identity.FirstName)
	last := strings.TrimSpace(identity.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	return identity.Email
}
