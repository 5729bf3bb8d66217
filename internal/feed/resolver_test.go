package feed

import (
	"groupboard-backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveAuthorName(t *testing.T) {
	member := &model.Member{UserID: "u1", UserName: "Member Name"}
	tests := []struct {
		name       string
		identity   model.Identity
		membership *model.Member
		members    []model.Member
		want       string
	}{
		{"姓和名", model.Identity{FirstName: "Ada", LastName: "Lovelace", DisplayName: "ada"}, member, nil, "Ada Lovelace"},
		{"只有名时使用显示名", model.Identity{FirstName: "Ada", DisplayName: "Countess"}, member, nil, "Countess"},
		{"成员记录", model.Identity{Email: "ada@example.com"}, member, nil, "Member Name"},
		{"邮箱前缀", model.Identity{Email: "ada.king_l@example.com"}, nil, nil, "Ada King L"},
		{"占位邮箱使用成员缓存", model.Identity{UserID: "u1", Email: "user@example.com"}, nil,
			[]model.Member{{UserID: "u1", UserName: "Cached"}}, "Cached"},
		{"默认名称", model.Identity{Email: "user@example.com"}, nil, nil, FallbackAuthorName},
		{"空白姓名", model.Identity{FirstName: "  ", LastName: " "}, nil, nil, FallbackAuthorName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveAuthorName(tt.identity, tt.membership, tt.members)
			assert.Equal(t, tt.want, got)
			// 相同输入结果相同
			assert.Equal(t, got, ResolveAuthorName(tt.identity, tt.membership, tt.members))
		})
	}
}

func TestFindMembershipByEmail(t *testing.T) {
	members := []model.Member{{UserID: "a"}, {UserID: "b", UserEmail: "Bob@Example.com"}}
	m := FindMembership(model.Identity{UserID: "zzz", Email: "bob@example.com"}, members)
	if assert.NotNil(t, m) {
		assert.Equal(t, "b", m.UserID)
	}
	assert.Nil(t, FindMembership(model.Identity{UserID: "c"}, members))
}

func TestPermissions(t *testing.T) {
	me := model.Identity{UserID: "u1", Email: "me@example.com"}
	post := &model.Post{Author: model.AuthorSnapshot{ID: "other", Email: "ME@example.com"}}
	assert.True(t, CanEditPost(me, post))
	assert.False(t, CanEditPost(model.Identity{UserID: "u2"}, post))
	assert.False(t, CanEditPost(me, nil))
	assert.True(t, CanEditReply(me, &model.Reply{Author: model.AuthorSnapshot{ID: "u1"}}))

	active := &model.Member{Status: model.MemberActive, Role: model.RoleMember}
	admin := &model.Member{Status: model.MemberActive, Role: model.RoleAdmin}
	removed := &model.Member{Status: model.MemberRemoved}
	open := &model.Group{Status: model.GroupActive}
	done := &model.Group{Status: model.GroupCompleted}

	assert.True(t, CanUserInteract(active, open))
	assert.True(t, CanUserInteract(active, &model.Group{Status: model.GroupCompleting}))
	assert.False(t, CanUserInteract(active, done))
	assert.False(t, CanUserInteract(removed, open))
	assert.False(t, CanUserInteract(nil, open))
	assert.False(t, CanUserInteract(active, nil))

	assert.True(t, CanPin(admin))
	assert.False(t, CanPin(active))
	assert.False(t, CanPin(nil))
}

func TestSortPosts(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	posts := []model.Post{
		{ID: "old", CreatedAt: base},
		{ID: "pinned-old", CreatedAt: base.Add(-time.Hour), IsPinned: true},
		{ID: "new", CreatedAt: base.Add(time.Hour)},
		{ID: "pinned-new", CreatedAt: base.Add(2 * time.Hour), IsPinned: true},
	}
	SortPosts(posts)

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"pinned-new", "pinned-old", "new", "old"}, ids)
}

func TestIsPostLikedByUser(t *testing.T) {
	post := &model.Post{Likes: []string{"a", "b"}}
	assert.True(t, IsPostLikedByUser(post, "a"))
	assert.False(t, IsPostLikedByUser(post, "c"))
	assert.False(t, IsPostLikedByUser(post, ""))
	assert.False(t, IsPostLikedByUser(nil, "a"))
}
