package service

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/util"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PostNotifier 帖子和回复发布后的通知
type PostNotifier interface {
	NotifyPostCreated(ctx context.Context, post *model.Post, members []model.Member, actorID string) error
	NotifyReplyCreated(ctx context.Context, reply *model.Reply, post *model.Post, members []model.Member, actorID string) error
}

// CommunityService 帖子、回复、点赞和置顶的存储操作，每个操作对应一次远程写入
type CommunityService struct {
	store         interfaces.DocumentStore
	notifier      PostNotifier
	notifyTimeout time.Duration
	wg            sync.WaitGroup
}

func NewCommunityService(store interfaces.DocumentStore, notifier PostNotifier) *CommunityService {
	return &CommunityService{
		store:         store,
		notifier:      notifier,
		notifyTimeout: 30 * time.Second,
	}
}

// CreatePost 写入新帖子，计数清零，随后异步发送通知
func (s *CommunityService) CreatePost(ctx context.Context, post *model.Post, members []model.Member) (string, error) {
	post.LikeCount = 0
	post.ReplyCount = 0
	post.IsEdited = false
	post.IsPinned = false
	if post.Likes == nil {
		post.Likes = []string{}
	}
	if post.Images == nil {
		post.Images = []model.PostImage{}
	}
	fields, err := model.EncodeFields(post)
	if err != nil {
		return "", svcerrors.Wrap(svcerrors.ErrInternal, "帖子数据无效", err)
	}

	id, err := s.store.Add(ctx, model.CollectionPosts, fields,
		model.ServerTimestamp("created_at"), model.ServerTimestamp("updated_at"))
	if err != nil {
		util.Logger.Error("创建帖子失败", zap.String("group_id", post.GroupID), zap.Error(err))
		return "", svcerrors.Wrap(svcerrors.ErrDatabase, "发布帖子失败，请稍后重试", err)
	}
	post.ID = id
	post.CreatedAt = time.Now().UTC()
	util.Logger.Info("帖子创建成功", zap.String("post_id", id), zap.String("group_id", post.GroupID))

	s.dispatch("post_created", func(ctx context.Context) error {
		if err := s.notifier.NotifyPostCreated(ctx, post, members, post.Author.ID); err != nil {
			return err
		}
		if err := s.store.Update(ctx, model.CollectionPosts, id,
			model.Set("admin_notified_of_submission", true),
			model.ServerTimestamp("notified_at")); err != nil {
			util.Logger.Warn("记录帖子通知状态失败", zap.String("post_id", id), zap.Error(err))
		}
		return nil
	})
	return id, nil
}

// UpdatePost 更新帖子内容并覆盖作者快照
func (s *CommunityService) UpdatePost(ctx context.Context, postID, title, content string, postType model.PostType, author model.AuthorSnapshot) error {
	err := s.store.Update(ctx, model.CollectionPosts, postID,
		model.Set("title", title),
		model.Set("content", content),
		model.Set("type", string(postType)),
		model.Set("author", author),
		model.Set("is_edited", true),
		model.ServerTimestamp("updated_at"))
	return s.writeError(err, "帖子不存在", "更新帖子失败，请稍后重试", zap.String("post_id", postID))
}

// CreateReply 写入回复，并用原子自增更新帖子的回复数
func (s *CommunityService) CreateReply(ctx context.Context, reply *model.Reply, post *model.Post, members []model.Member) (string, error) {
	fields, err := model.EncodeFields(reply)
	if err != nil {
		return "", svcerrors.Wrap(svcerrors.ErrInternal, "回复数据无效", err)
	}
	id, err := s.store.Add(ctx, model.CollectionReplies, fields,
		model.ServerTimestamp("created_at"), model.ServerTimestamp("updated_at"))
	if err != nil {
		util.Logger.Error("创建回复失败", zap.String("post_id", reply.PostID), zap.Error(err))
		return "", svcerrors.Wrap(svcerrors.ErrDatabase, "发布回复失败，请稍后重试", err)
	}
	reply.ID = id
	reply.CreatedAt = time.Now().UTC()

	// 回复已经写入，计数失败只记录日志
	if err := s.store.Update(ctx, model.CollectionPosts, reply.PostID, model.Increment("reply_count", 1)); err != nil {
		util.Logger.Error("更新回复数失败", zap.String("post_id", reply.PostID), zap.String("reply_id", id), zap.Error(err))
	}

	s.dispatch("reply_created", func(ctx context.Context) error {
		return s.notifier.NotifyReplyCreated(ctx, reply, post, members, reply.Author.ID)
	})
	return id, nil
}

// UpdateReply 更新回复内容并覆盖作者快照
func (s *CommunityService) UpdateReply(ctx context.Context, replyID, content string, author model.AuthorSnapshot) error {
	err := s.store.Update(ctx, model.CollectionReplies, replyID,
		model.Set("content", content),
		model.Set("author", author),
		model.Set("is_edited", true),
		model.ServerTimestamp("updated_at"))
	return s.writeError(err, "回复不存在", "更新回复失败，请稍后重试", zap.String("reply_id", replyID))
}

// GetReply 读取单条回复
func (s *CommunityService) GetReply(ctx context.Context, replyID string) (*model.Reply, error) {
	doc, err := s.store.Get(ctx, model.CollectionReplies, replyID)
	if err != nil {
		return nil, s.readError(err, "回复不存在")
	}
	var reply model.Reply
	if err := doc.DataTo(&reply); err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "回复数据无效", err)
	}
	return &reply, nil
}

// GetPost 读取单个帖子
func (s *CommunityService) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	doc, err := s.store.Get(ctx, model.CollectionPosts, postID)
	if err != nil {
		return nil, s.readError(err, "帖子不存在")
	}
	var post model.Post
	if err := doc.DataTo(&post); err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "帖子数据无效", err)
	}
	return &post, nil
}

// SetLike 在同一次更新中修改点赞集合和点赞数，集合未变时点赞数不动
func (s *CommunityService) SetLike(ctx context.Context, postID, userID string, liked bool) error {
	var updates []model.FieldUpdate
	if liked {
		updates = []model.FieldUpdate{model.ArrayUnion("likes", userID), model.IncrementIfChanged("like_count", 1, "likes")}
	} else {
		updates = []model.FieldUpdate{model.ArrayRemove("likes", userID), model.IncrementIfChanged("like_count", -1, "likes")}
	}
	err := s.store.Update(ctx, model.CollectionPosts, postID, updates...)
	return s.writeError(err, "帖子不存在", "点赞失败，请稍后重试", zap.String("post_id", postID))
}

// SetPinned 设置置顶状态
func (s *CommunityService) SetPinned(ctx context.Context, postID string, pinned bool) error {
	err := s.store.Update(ctx, model.CollectionPosts, postID, model.Set("is_pinned", pinned))
	return s.writeError(err, "帖子不存在", "置顶操作失败，请稍后重试", zap.String("post_id", postID))
}

// LikerProfiles 按 ID 批量读取用户资料，不存在的 ID 不返回
func (s *CommunityService) LikerProfiles(ctx context.Context, ids []string) ([]model.UserProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionUsers, model.WhereIn("id", ids)))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "加载点赞用户失败", err)
	}
	profiles := make([]model.UserProfile, 0, len(docs))
	for _, doc := range docs {
		var p model.UserProfile
		if err := doc.DataTo(&p); err != nil {
			util.Logger.Warn("跳过无法解析的用户资料", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// LikerMembers 读取小组中对应用户的活跃成员记录
func (s *CommunityService) LikerMembers(ctx context.Context, groupID string, ids []string) ([]model.Member, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.store.Query(ctx, model.NewQuery(model.CollectionMembers,
		model.Where("group_id", groupID),
		model.Where("status", string(model.MemberActive)),
		model.WhereIn("user_id", ids)))
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "加载点赞用户失败", err)
	}
	return decodeMembers(docs), nil
}

// Wait 等待已发出的通知完成
func (s *CommunityService) Wait() {
	s.wg.Wait()
}

func (s *CommunityService) dispatch(kind string, send func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				util.Logger.Error("发送通知时发生panic", zap.String("kind", kind), zap.Any("error", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			util.Logger.Error("发送通知失败", zap.String("kind", kind), zap.Error(err))
		}
	}()
}

func (s *CommunityService) writeError(err error, notFoundMsg, failMsg string, field zap.Field) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrDocumentNotFound) {
		return svcerrors.Wrap(svcerrors.ErrNotFound, notFoundMsg, err)
	}
	util.Logger.Error(failMsg, field, zap.Error(err))
	return svcerrors.Wrap(svcerrors.ErrDatabase, failMsg, err)
}

func (s *CommunityService) readError(err error, notFoundMsg string) error {
	if errors.Is(err, model.ErrDocumentNotFound) {
		return svcerrors.Wrap(svcerrors.ErrNotFound, notFoundMsg, err)
	}
	return svcerrors.Wrap(svcerrors.ErrDatabase, "读取数据失败，请稍后重试", err)
}

func decodeMembers(docs []*model.Document) []model.Member {
	members := make([]model.Member, 0, len(docs))
	for _, doc := range docs {
		var m model.Member
		if err := doc.DataTo(&m); err != nil {
			util.Logger.Warn("跳过无法解析的成员记录", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		members = append(members, m)
	}
	return members
}
