package feed

import (
	"groupboard-backend/internal/model"
)

// ReplyView 回复的展示数据
type ReplyView struct {
	model.Reply
	ContentHTML string `json:"content_html"`
	CanEdit     bool   `json:"can_edit"`
}

// PostView 帖子的展示数据
type PostView struct {
	model.Post
	TypeLabel   string      `json:"type_label"`
	TypeIcon    string      `json:"type_icon"`
	ContentHTML string      `json:"content_html"`
	LikedByMe   bool        `json:"liked_by_me"`
	CanEdit     bool        `json:"can_edit"`
	LiveReplies bool        `json:"live_replies"`
	Replies     []ReplyView `json:"replies"`
}

// View 会话的完整视图
type View struct {
	GroupID     string           `json:"group_id"`
	Group       *model.Group     `json:"group"`
	Membership  *model.Member    `json:"membership"`
	AuthorName  string           `json:"author_name"`
	CanInteract bool             `json:"can_interact"`
	CanPin      bool             `json:"can_pin"`
	Members     []model.Member   `json:"members"`
	Posts       []PostView       `json:"posts"`
	Composer    []ComposerImage  `json:"composer"`
	Loading     map[Slice]bool   `json:"loading"`
	Errors      map[Slice]string `json:"errors"`
	Ready       bool             `json:"ready"`
}

// View 根据当前缓存计算视图，每次调用都重新计算
func (s *Synchronizer) View() View {
	s.mu.Lock()
	st := s.state
	v := View{
		GroupID: s.groupID,
		Members: append([]model.Member{}, st.Members...),
		Loading: make(map[Slice]bool, len(st.Loading)),
		Errors:  make(map[Slice]string, len(st.Errors)),
		Ready:   st.Ready(),
	}
	if st.Group != nil {
		g := *st.Group
		v.Group = &g
	}
	for k, val := range st.Loading {
		v.Loading[k] = val
	}
	for k, err := range st.Errors {
		v.Errors[k] = err.Error()
	}
	posts := append([]model.Post(nil), st.Posts...)
	replies := make(map[string][]model.Reply, len(st.Replies))
	for k, bucket := range st.Replies {
		replies[k] = append([]model.Reply(nil), bucket...)
	}
	live := make(map[string]bool)
	for _, id := range replyPostIDs(st.Posts) {
		live[id] = true
	}
	s.mu.Unlock()

	if m := FindMembership(s.identity, v.Members); m != nil {
		membership := *m
		v.Membership = &membership
	}
	v.AuthorName = ResolveAuthorName(s.identity, v.Membership, v.Members)
	v.CanInteract = CanUserInteract(v.Membership, v.Group)
	v.CanPin = CanPin(v.Membership)
	v.Composer = s.composer.Items()

	v.Posts = make([]PostView, 0, len(posts))
	for i := range posts {
		p := &posts[i]
		info := p.Type.Info()
		pv := PostView{
			Post:        *p,
			TypeLabel:   info.Label,
			TypeIcon:    info.Icon,
			ContentHTML: RenderLinks(p.Content),
			LikedByMe:   IsPostLikedByUser(p, s.identity.UserID),
			CanEdit:     CanEditPost(s.identity, p),
			LiveReplies: live[p.ID],
			Replies:     make([]ReplyView, 0, len(replies[p.ID])),
		}
		for j := range replies[p.ID] {
			r := &replies[p.ID][j]
			pv.Replies = append(pv.Replies, ReplyView{
				Reply:       *r,
				ContentHTML: RenderLinks(r.Content),
				CanEdit:     CanEditReply(s.identity, r),
			})
		}
		v.Posts = append(v.Posts, pv)
	}
	return v
}
