package feed

import (
	"groupboard-backend/internal/model"
	"sort"
)

// Slice 视图中由独立订阅维护的一部分
type Slice string

const (
	SliceGroup   Slice = "group"
	SliceMembers Slice = "members"
	SlicePosts   Slice = "posts"
	SliceReplies Slice = "replies"
)

// Liker 点赞用户的展示信息
type Liker struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Photo string `json:"photo,omitempty"`
}

// State 单个会话持有的全部缓存，只能通过 Apply 修改
type State struct {
	Group   *model.Group
	Members []model.Member
	Posts   []model.Post
	Replies map[string][]model.Reply

	Loading   map[Slice]bool
	Errors    map[Slice]error
	Delivered map[Slice]bool

	LikesPreview map[string][]Liker
	LikesModal   map[string][]Liker
	// 每次清除预览缓存时递增，用来丢弃清除前发起的加载结果
	PreviewEpoch map[string]int
}

// NewState 创建初始状态，所有订阅都处于加载中
func NewState() *State {
	return &State{
		Replies: make(map[string][]model.Reply),
		Loading: map[Slice]bool{
			SliceGroup:   true,
			SliceMembers: true,
			SlicePosts:   true,
			SliceReplies: true,
		},
		Errors:       make(map[Slice]error),
		Delivered:    make(map[Slice]bool),
		LikesPreview: make(map[string][]Liker),
		LikesModal:   make(map[string][]Liker),
		PreviewEpoch: make(map[string]int),
	}
}

// Action 状态转换
type Action interface {
	reduce(s *State)
}

// Apply 执行一次状态转换
func (s *State) Apply(a Action) {
	a.reduce(s)
}

// GroupSnapshot 用最新的小组文档替换缓存，nil 表示小组不存在
type GroupSnapshot struct {
	Group *model.Group
}

func (a GroupSnapshot) reduce(s *State) {
	s.Group = a.Group
	s.loaded(SliceGroup)
}

// MembersSnapshot 整体替换活跃成员缓存
type MembersSnapshot struct {
	Members []model.Member
}

func (a MembersSnapshot) reduce(s *State) {
	s.Members = append([]model.Member(nil), a.Members...)
	s.loaded(SliceMembers)
}

// PostsSnapshot 整体替换帖子缓存并重新排序
type PostsSnapshot struct {
	Posts []model.Post
}

func (a PostsSnapshot) reduce(s *State) {
	posts := append([]model.Post(nil), a.Posts...)
	SortPosts(posts)
	s.Posts = posts
	s.loaded(SlicePosts)
}

// RepliesSnapshot 整体替换回复缓存，按帖子分组并按时间正序排列
type RepliesSnapshot struct {
	Replies []model.Reply
}

func (a RepliesSnapshot) reduce(s *State) {
	buckets := make(map[string][]model.Reply)
	for _, r := range a.Replies {
		buckets[r.PostID] = append(buckets[r.PostID], r)
	}
	for _, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].CreatedAt.Before(bucket[j].CreatedAt)
		})
	}
	s.Replies = buckets
	s.loaded(SliceReplies)
}

// SliceFailed 某个订阅失败，只影响对应部分
type SliceFailed struct {
	Slice Slice
	Err   error
}

func (a SliceFailed) reduce(s *State) {
	s.Loading[a.Slice] = false
	s.Errors[a.Slice] = a.Err
	s.Delivered[a.Slice] = true
}

// LikeCorrected 点赞成功后立即修正本地缓存，重复应用结果不变
type LikeCorrected struct {
	PostID string
	UserID string
	Liked  bool
}

func (a LikeCorrected) reduce(s *State) {
	for i := range s.Posts {
		p := &s.Posts[i]
		if p.ID != a.PostID {
			continue
		}
		has := p.HasLike(a.UserID)
		switch {
		case a.Liked && !has:
			p.Likes = append(append([]string(nil), p.Likes...), a.UserID)
			p.LikeCount++
		case !a.Liked && has:
			likes := make([]string, 0, len(p.Likes))
			for _, id := range p.Likes {
				if id != a.UserID {
					likes = append(likes, id)
				}
			}
			p.Likes = likes
			p.LikeCount--
		}
		return
	}
}

// PreviewInvalidated 清除帖子的点赞预览缓存
type PreviewInvalidated struct {
	PostID string
}

func (a PreviewInvalidated) reduce(s *State) {
	delete(s.LikesPreview, a.PostID)
	s.PreviewEpoch[a.PostID]++
}

// LikersLoaded 缓存点赞用户列表
type LikersLoaded struct {
	PostID string
	Modal  bool
	Likers []Liker
}

func (a LikersLoaded) reduce(s *State) {
	likers := append([]Liker{}, a.Likers...)
	if a.Modal {
		s.LikesModal[a.PostID] = likers
	} else {
		s.LikesPreview[a.PostID] = likers
	}
}

func (s *State) loaded(slice Slice) {
	s.Loading[slice] = false
	delete(s.Errors, slice)
	s.Delivered[slice] = true
}

// Ready 小组、成员和帖子都已收到首个快照或已失败
func (s *State) Ready() bool {
	return s.Delivered[SliceGroup] && s.Delivered[SliceMembers] && s.Delivered[SlicePosts]
}

// FindPost 在缓存中查找帖子
func (s *State) FindPost(id string) (model.Post, bool) {
	for _, p := range s.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return model.Post{}, false
}

// FindReply 在缓存中查找回复
func (s *State) FindReply(id string) (model.Reply, bool) {
	for _, bucket := range s.Replies {
		for _, r := range bucket {
			if r.ID == id {
				return r, true
			}
		}
	}
	return model.Reply{}, false
}
