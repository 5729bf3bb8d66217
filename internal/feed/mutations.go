package feed

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/util"
	"strings"

	"go.uber.org/zap"
)

// PostInput 发帖和编辑帖子的输入
type PostInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// attempt 执行一次远程操作：失败时分类、记录日志并发布提示，成功时发布确认
func (s *Synchronizer) attempt(op, success string, fn func() error) error {
	err := fn()
	if err == nil {
		if success != "" {
			s.publish(Notice{Level: NoticeInfo, Op: op, Message: success})
		}
		return nil
	}

	err = classify(err)
	level := NoticeError
	switch svcerrors.GetErrorCode(err) {
	case svcerrors.ErrInvalidInput, svcerrors.ErrForbidden, svcerrors.ErrNotFound, svcerrors.ErrUnauthorized:
		level = NoticeWarning
		util.Logger.Warn("操作被拒绝", zap.String("op", op), zap.String("group_id", s.groupID),
			zap.String("user_id", s.identity.UserID), zap.Error(err))
	default:
		util.Logger.Error("操作失败", zap.String("op", op), zap.String("group_id", s.groupID),
			zap.String("user_id", s.identity.UserID), zap.Error(err))
	}
	s.publish(Notice{Level: level, Op: op, Message: svcerrors.GetMessage(err)})
	return err
}

func classify(err error) error {
	switch {
	case svcerrors.IsServiceError(err):
		return err
	case errors.Is(err, ErrClosed):
		return svcerrors.Wrap(svcerrors.ErrNotFound, "会话已关闭", err)
	case errors.Is(err, model.ErrDocumentNotFound):
		return svcerrors.Wrap(svcerrors.ErrNotFound, "内容不存在或已被删除", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return svcerrors.Wrap(svcerrors.ErrThirdParty, "请求超时，请稍后重试", err)
	}
	return svcerrors.Wrap(svcerrors.ErrDatabase, "操作失败，请稍后重试", err)
}

func invalid(msg string) error {
	return svcerrors.New(svcerrors.ErrInvalidInput, msg)
}

func forbidden(msg string) error {
	return svcerrors.New(svcerrors.ErrForbidden, msg)
}

func notFound(msg string) error {
	return svcerrors.New(svcerrors.ErrNotFound, msg)
}

func (s *Synchronizer) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Synchronizer) cachedPost(id string) (model.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FindPost(id)
}

// interactor 返回可以参与互动的成员记录
func (s *Synchronizer) interactor() (*model.Member, []model.Member, error) {
	group, members, _ := s.snapshot()
	membership := FindMembership(s.identity, members)
	if !CanUserInteract(membership, group) {
		if group != nil && group.Status == model.GroupCompleted {
			return nil, nil, forbidden("小组已结束，无法继续互动")
		}
		return nil, nil, forbidden("只有小组的活跃成员才能参与互动")
	}
	return membership, members, nil
}

// CreatePost 发布帖子，附带暂存区中已上传的图片
func (s *Synchronizer) CreatePost(ctx context.Context, in PostInput) (string, error) {
	var id string
	err := s.attempt("create_post", "帖子已发布", func() error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		title := strings.TrimSpace(in.Title)
		content := strings.TrimSpace(in.Content)
		if title == "" || content == "" {
			return invalid("标题和内容不能为空")
		}
		postType, err := model.ParsePostType(in.Type)
		if err != nil {
			return invalid("未知的帖子类型")
		}
		membership, members, err := s.interactor()
		if err != nil {
			return err
		}
		if s.composer.HasPending() {
			return invalid("还有图片尚未上传，请先上传或移除")
		}

		post := &model.Post{
			GroupID: s.groupID,
			Author:  BuildAuthorSnapshot(s.identity, membership, members, s.now()),
			Title:   title,
			Content: content,
			Type:    postType,
			Images:  s.composer.Images(),
			Likes:   []string{},
		}
		if id, err = s.community.CreatePost(ctx, post, members); err != nil {
			return err
		}
		s.composer.Reset()
		return nil
	})
	return id, err
}

// EditPost 编辑帖子，并用编辑者当前的名字覆盖作者快照
func (s *Synchronizer) EditPost(ctx context.Context, postID string, in PostInput) error {
	return s.attempt("edit_post", "帖子已更新", func() error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		title := strings.TrimSpace(in.Title)
		content := strings.TrimSpace(in.Content)
		if title == "" || content == "" {
			return invalid("标题和内容不能为空")
		}
		post, ok := s.cachedPost(postID)
		if !ok {
			return notFound("帖子不存在")
		}
		if !CanEditPost(s.identity, &post) {
			return forbidden("只能编辑自己发布的帖子")
		}
		postType := post.Type
		if in.Type != "" {
			t, err := model.ParsePostType(in.Type)
			if err != nil {
				return invalid("未知的帖子类型")
			}
			postType = t
		}

		_, members, _ := s.snapshot()
		author := BuildAuthorSnapshot(s.identity, FindMembership(s.identity, members), members, s.now())
		return s.community.UpdatePost(ctx, postID, title, content, postType, author)
	})
}

// SubmitReply 回复帖子
func (s *Synchronizer) SubmitReply(ctx context.Context, postID, content string) (string, error) {
	var id string
	err := s.attempt("submit_reply", "回复已发布", func() error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return invalid("回复内容不能为空")
		}
		membership, members, err := s.interactor()
		if err != nil {
			return err
		}
		post, ok := s.cachedPost(postID)
		if !ok {
			return notFound("帖子不存在")
		}

		reply := &model.Reply{
			PostID:  postID,
			GroupID: s.groupID,
			Author:  BuildAuthorSnapshot(s.identity, membership, members, s.now()),
			Content: content,
		}
		id, err = s.community.CreateReply(ctx, reply, &post, members)
		return err
	})
	return id, err
}

// EditReply 编辑回复，并用编辑者当前的名字覆盖作者快照
func (s *Synchronizer) EditReply(ctx context.Context, replyID, content string) error {
	return s.attempt("edit_reply", "回复已更新", func() error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return invalid("回复内容不能为空")
		}

		s.mu.Lock()
		reply, ok := s.state.FindReply(replyID)
		s.mu.Unlock()
		if !ok {
			// 只有前 10 个帖子的回复在缓存中
			fetched, err := s.community.GetReply(ctx, replyID)
			if err != nil {
				return err
			}
			if fetched.GroupID != s.groupID {
				return notFound("回复不存在")
			}
			reply = *fetched
		}
		if !CanEditReply(s.identity, &reply) {
			return forbidden("只能编辑自己发布的回复")
		}

		_, members, _ := s.snapshot()
		author := BuildAuthorSnapshot(s.identity, FindMembership(s.identity, members), members, s.now())
		return s.community.UpdateReply(ctx, replyID, content, author)
	})
}

// ToggleLike 点赞或取消点赞，成功后立即修正本地计数
func (s *Synchronizer) ToggleLike(ctx context.Context, postID string) (bool, error) {
	var liked bool
	err := s.attempt("toggle_like", "", func() error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		// 无论结果如何都让预览重新加载
		defer s.apply(PreviewInvalidated{PostID: postID})

		if _, _, err := s.interactor(); err != nil {
			return err
		}
		post, ok := s.cachedPost(postID)
		if !ok {
			return notFound("帖子不存在")
		}
		liked = !post.HasLike(s.identity.UserID)
		if err := s.community.SetLike(ctx, postID, s.identity.UserID, liked); err != nil {
			return err
		}
		s.apply(LikeCorrected{PostID: postID, UserID: s.identity.UserID, Liked: liked})
		if liked {
			s.publish(Notice{Level: NoticeInfo, Op: "toggle_like", Message: "已点赞"})
		} else {
			s.publish(Notice{Level: NoticeInfo, Op: "toggle_like", Message: "已取消点赞"})
		}
		return nil
	})
	return liked, err
}

// TogglePin 置顶或取消置顶，只有小组管理员可以操作
func (s *Synchronizer) TogglePin(ctx context.Context, postID string) (bool, error) {
	var pinned bool
	err := s.attempt("toggle_pin", "", func() error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		_, members, _ := s.snapshot()
		if !CanPin(FindMembership(s.identity, members)) {
			return forbidden("只有小组管理员可以置顶帖子")
		}
		post, ok := s.cachedPost(postID)
		if !ok {
			return notFound("帖子不存在")
		}
		pinned = !post.IsPinned
		if err := s.community.SetPinned(ctx, postID, pinned); err != nil {
			return err
		}
		if pinned {
			s.publish(Notice{Level: NoticeInfo, Op: "toggle_pin", Message: "帖子已置顶"})
		} else {
			s.publish(Notice{Level: NoticeInfo, Op: "toggle_pin", Message: "已取消置顶"})
		}
		return nil
	})
	return pinned, err
}
