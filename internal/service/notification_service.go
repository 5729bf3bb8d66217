package service

import (
	"context"
	"errors"
	"fmt"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	"groupboard-backend/internal/util"

	"go.uber.org/zap"
)

// 站内通知类型
const (
	NotificationNewPost      = "new_post"
	NotificationAnnouncement = "announcement"
	NotificationNewReply     = "new_reply"
)

// NotificationService 帖子和回复发布后为小组成员生成站内通知，公告同时发送邮件
type NotificationService struct {
	store       interfaces.DocumentStore
	mailer      Mailer
	frontendURL string
}

// NewNotificationService mailer 为 nil 时不发送邮件
func NewNotificationService(store interfaces.DocumentStore, mailer Mailer, frontendURL string) *NotificationService {
	return &NotificationService{store: store, mailer: mailer, frontendURL: frontendURL}
}

// NotifyPostCreated 通知除发帖人之外的活跃成员
func (s *NotificationService) NotifyPostCreated(ctx context.Context, post *model.Post, members []model.Member, actorID string) error {
	kind := NotificationNewPost
	message := fmt.Sprintf("%s 发布了新帖子《%s》", post.Author.Name, post.Title)
	if post.Type == model.PostAnnouncement {
		kind = NotificationAnnouncement
		message = fmt.Sprintf("%s 发布了公告《%s》", post.Author.Name, post.Title)
	}

	recipients := recipientsOf(members, actorID)
	err := s.write(ctx, recipients, model.Notification{
		GroupID: post.GroupID,
		PostID:  post.ID,
		ActorID: actorID,
		Type:    kind,
		Message: message,
	})

	if post.Type == model.PostAnnouncement && s.mailer != nil {
		if mailErr := s.mailAnnouncement(post, recipients); mailErr != nil {
			err = errors.Join(err, mailErr)
		}
	}
	return err
}

// NotifyReplyCreated 通知除回复人之外的活跃成员
func (s *NotificationService) NotifyReplyCreated(ctx context.Context, reply *model.Reply, post *model.Post, members []model.Member, actorID string) error {
	return s.write(ctx, recipientsOf(members, actorID), model.Notification{
		GroupID: reply.GroupID,
		PostID:  reply.PostID,
		ReplyID: reply.ID,
		ActorID: actorID,
		Type:    NotificationNewReply,
		Message: fmt.Sprintf("%s 回复了《%s》", reply.Author.Name, post.Title),
	})
}

// write 每位收件人写入一条通知，单条失败不影响其他人
func (s *NotificationService) write(ctx context.Context, recipients []model.Member, base model.Notification) error {
	var errs []error
	for _, m := range recipients {
		n := base
		n.UserID = m.UserID
		fields, err := model.EncodeFields(n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.store.Add(ctx, model.CollectionNotices, fields, model.ServerTimestamp("created_at")); err != nil {
			util.Logger.Warn("写入通知失败", zap.String("user_id", m.UserID), zap.String("post_id", base.PostID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	util.Logger.Info("通知已生成",
		zap.String("type", base.Type),
		zap.String("post_id", base.PostID),
		zap.Int("recipients", len(recipients)),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (s *NotificationService) mailAnnouncement(post *model.Post, recipients []model.Member) error {
	subject, body, err := AnnouncementEmail(s.frontendURL, post)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range recipients {
		if m.UserEmail == "" {
			continue
		}
		if err := s.mailer.Send(m.UserEmail, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListForUser 读取用户的站内通知
func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionNotices, model.Where("user_id", userID)))
	if err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(docs))
	for _, doc := range docs {
		var n model.Notification
		if err := doc.DataTo(&n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func recipientsOf(members []model.Member, actorID string) []model.Member {
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		if m.UserID == actorID || !m.IsActive() {
			continue
		}
		out = append(out, m)
	}
	return out
}
