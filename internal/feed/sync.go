package feed

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	"groupboard-backend/internal/util"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed 会话已关闭
var ErrClosed = errors.New("feed session is closed")

// Community 帖子、回复和点赞的远程操作
type Community interface {
	CreatePost(ctx context.Context, post *model.Post, members []model.Member) (string, error)
	UpdatePost(ctx context.Context, postID, title, content string, postType model.PostType, author model.AuthorSnapshot) error
	CreateReply(ctx context.Context, reply *model.Reply, post *model.Post, members []model.Member) (string, error)
	UpdateReply(ctx context.Context, replyID, content string, author model.AuthorSnapshot) error
	GetReply(ctx context.Context, replyID string) (*model.Reply, error)
	SetLike(ctx context.Context, postID, userID string, liked bool) error
	SetPinned(ctx context.Context, postID string, pinned bool) error
	LikerProfiles(ctx context.Context, ids []string) ([]model.UserProfile, error)
	LikerMembers(ctx context.Context, groupID string, ids []string) ([]model.Member, error)
}

// Options 创建同步器所需的依赖
type Options struct {
	GroupID   string
	Identity  model.Identity
	Store     interfaces.DocumentStore
	Community Community
	Images    ImageHost
	Now       func() time.Time
}

// Synchronizer 维护单个会话中小组、成员、帖子和回复的实时视图，并执行用户操作
type Synchronizer struct {
	groupID   string
	identity  model.Identity
	store     interfaces.DocumentStore
	community Community
	composer  *Composer
	now       func() time.Time

	mu       sync.Mutex
	state    *State
	started  bool
	closed   bool
	subs     map[Slice]interfaces.Unsubscribe
	replyKey string
	replyGen int

	changes   chan struct{}
	notices   chan Notice
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// New 创建同步器，调用 Start 之后才开始订阅
func New(opts Options) *Synchronizer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		groupID:   opts.GroupID,
		identity:  opts.Identity,
		store:     opts.Store,
		community: opts.Community,
		composer:  NewComposer(opts.Images),
		now:       now,
		state:     NewState(),
		subs:      make(map[Slice]interfaces.Unsubscribe),
		changes:   make(chan struct{}, 1),
		notices:   make(chan Notice, 32),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// GroupID 会话对应的小组
func (s *Synchronizer) GroupID() string {
	return s.groupID
}

// Identity 会话用户
func (s *Synchronizer) Identity() model.Identity {
	return s.identity
}

// Composer 待发布帖子的图片暂存区
func (s *Synchronizer) Composer() *Composer {
	return s.composer
}

// Start 订阅小组、活跃成员和帖子；任一订阅失败时释放已经获得的订阅
func (s *Synchronizer) Start(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	acquired := make(map[Slice]interfaces.Unsubscribe)
	// 在解锁之后释放，首次快照的回调可能正等着这把锁
	defer func() {
		if err != nil {
			for _, unsub := range acquired {
				unsub()
			}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}

	unsub, err := s.store.SubscribeDocument(model.CollectionGroups, s.groupID,
		s.onGroup, s.onError(SliceGroup))
	if err != nil {
		return err
	}
	acquired[SliceGroup] = unsub

	unsub, err = s.store.SubscribeQuery(model.NewQuery(model.CollectionMembers,
		model.Where("group_id", s.groupID),
		model.Where("status", string(model.MemberActive))),
		s.onMembers, s.onError(SliceMembers))
	if err != nil {
		return err
	}
	acquired[SliceMembers] = unsub

	unsub, err = s.store.SubscribeQuery(model.NewQuery(model.CollectionPosts,
		model.Where("group_id", s.groupID)),
		s.onPosts, s.onError(SlicePosts))
	if err != nil {
		return err
	}
	acquired[SlicePosts] = unsub

	for slice, unsub := range acquired {
		s.subs[slice] = unsub
	}
	s.started = true
	util.Logger.Info("会话开始同步", zap.String("group_id", s.groupID), zap.String("user_id", s.identity.UserID))
	return nil
}

// Close 释放全部订阅，之后到达的回调和操作结果都会被忽略
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[Slice]interfaces.Unsubscribe)
	close(s.done)
	close(s.changes)
	close(s.notices)
	s.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	s.composer.Reset()
	util.Logger.Info("会话已关闭", zap.String("group_id", s.groupID), zap.String("user_id", s.identity.UserID))
}

// Done 会话关闭后关闭
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

// Changes 每次状态变化后收到一个合并的信号，会话关闭时关闭
func (s *Synchronizer) Changes() <-chan struct{} {
	return s.changes
}

// Notices 操作结果提示，会话关闭时关闭
func (s *Synchronizer) Notices() <-chan Notice {
	return s.notices
}

// Ready 小组、成员和帖子是否都已收到首个快照
func (s *Synchronizer) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Ready()
}

// WaitReady 等待首个快照
func (s *Synchronizer) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveSubscriptions 当前持有的订阅数量
func (s *Synchronizer) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// apply 在锁内执行状态转换，会话关闭后不再修改状态
func (s *Synchronizer) apply(actions ...Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(actions...)
}

func (s *Synchronizer) applyLocked(actions ...Action) bool {
	if s.closed {
		return false
	}
	for _, a := range actions {
		s.state.Apply(a)
	}
	if s.state.Ready() {
		s.readyOnce.Do(func() { close(s.ready) })
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
	return true
}

func (s *Synchronizer) publish(n Notice) {
	n.At = s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.notices <- n:
	default:
		util.Logger.Warn("提示队列已满，丢弃提示", zap.String("op", n.Op), zap.String("message", n.Message))
	}
}

func (s *Synchronizer) onError(slice Slice) interfaces.ErrorFunc {
	return func(err error) {
		util.Logger.Error("订阅失败", zap.String("slice", string(slice)), zap.String("group_id", s.groupID), zap.Error(err))
		s.apply(SliceFailed{Slice: slice, Err: err})
	}
}

func (s *Synchronizer) onGroup(doc *model.Document) {
	if doc == nil {
		s.apply(GroupSnapshot{})
		return
	}
	var g model.Group
	if err := doc.DataTo(&g); err != nil {
		s.onError(SliceGroup)(err)
		return
	}
	s.apply(GroupSnapshot{Group: &g})
}

func (s *Synchronizer) onMembers(docs []*model.Document) {
	members := make([]model.Member, 0, len(docs))
	for _, doc := range docs {
		var m model.Member
		if err := doc.DataTo(&m); err != nil {
			util.Logger.Warn("跳过无法解析的成员记录", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		members = append(members, m)
	}
	s.apply(MembersSnapshot{Members: members})
}

func (s *Synchronizer) onPosts(docs []*model.Document) {
	posts := make([]model.Post, 0, len(docs))
	for _, doc := range docs {
		var p model.Post
		if err := doc.DataTo(&p); err != nil {
			util.Logger.Warn("跳过无法解析的帖子", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		posts = append(posts, p)
	}

	s.mu.Lock()
	if !s.applyLocked(PostsSnapshot{Posts: posts}) {
		s.mu.Unlock()
		return
	}
	stale := s.resubscribeRepliesLocked()
	s.mu.Unlock()
	// 旧的回复订阅在解锁后释放，它的回调会因代数不符被丢弃
	if stale != nil {
		stale()
	}
}

// replyPostIDs 回复订阅覆盖的帖子，受 in 查询的数量限制只取排序后的前 10 个
func replyPostIDs(posts []model.Post) []string {
	n := len(posts)
	if n > model.MaxInValues {
		n = model.MaxInValues
	}
	ids := make([]string, 0, n)
	for _, p := range posts[:n] {
		ids = append(ids, p.ID)
	}
	return ids
}

// resubscribeRepliesLocked 帖子集合变化时重新订阅回复，集合不变则保留原订阅；
// 返回被替换的旧订阅，由调用方在解锁后释放
func (s *Synchronizer) resubscribeRepliesLocked() (stale interfaces.Unsubscribe) {
	ids := replyPostIDs(s.state.Posts)
	// 置顶只改变顺序，按排序后的 ID 比较集合
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	key := strings.Join(sorted, ",")
	if s.replyGen > 0 && key == s.replyKey && (len(ids) == 0 || s.subs[SliceReplies] != nil) {
		return
	}
	s.replyKey = key
	s.replyGen++
	gen := s.replyGen

	if unsub, ok := s.subs[SliceReplies]; ok {
		stale = unsub
		delete(s.subs, SliceReplies)
	}
	if len(ids) == 0 {
		s.applyLocked(RepliesSnapshot{})
		return
	}

	unsub, err := s.store.SubscribeQuery(model.NewQuery(model.CollectionReplies, model.WhereIn("post_id", ids)),
		func(docs []*model.Document) { s.onReplies(gen, docs) },
		func(err error) { s.onRepliesError(gen, err) })
	if err != nil {
		util.Logger.Error("订阅回复失败", zap.String("group_id", s.groupID), zap.Error(err))
		s.applyLocked(SliceFailed{Slice: SliceReplies, Err: err})
		return
	}
	s.subs[SliceReplies] = unsub
	return
}

func (s *Synchronizer) onReplies(gen int, docs []*model.Document) {
	replies := make([]model.Reply, 0, len(docs))
	for _, doc := range docs {
		var r model.Reply
		if err := doc.DataTo(&r); err != nil {
			util.Logger.Warn("跳过无法解析的回复", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		replies = append(replies, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 旧订阅的回调
	if gen != s.replyGen {
		return
	}
	s.applyLocked(RepliesSnapshot{Replies: replies})
}

func (s *Synchronizer) onRepliesError(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.replyGen {
		return
	}
	util.Logger.Error("订阅失败", zap.String("slice", string(SliceReplies)), zap.String("group_id", s.groupID), zap.Error(err))
	s.applyLocked(SliceFailed{Slice: SliceReplies, Err: err})
}

// ReplySubscriptionKey 当前回复订阅覆盖的帖子 ID，按字典序排列
func (s *Synchronizer) ReplySubscriptionKey() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replyKey == "" {
		return nil
	}
	return strings.Split(s.replyKey, ",")
}

// snapshot 复制当前状态中视图和操作需要的部分
func (s *Synchronizer) snapshot() (group *model.Group, members []model.Member, posts []model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Group != nil {
		g := *s.state.Group
		group = &g
	}
	members = append([]model.Member(nil), s.state.Members...)
	posts = append([]model.Post(nil), s.state.Posts...)
	return group, members, posts
}
