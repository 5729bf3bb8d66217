package feed

import (
	"groupboard-backend/internal/model"
	"sort"
	"strings"
	"time"
	"unicode"
)

// FallbackAuthorName 无法解析出任何名字时使用
const FallbackAuthorName = "Group Member"

// ResolveAuthorName 解析作者展示名，按以下顺序取第一个可用值：
// 姓名、显示名、成员记录中的用户名、邮箱前缀、成员缓存中本人的记录、默认名称。
func ResolveAuthorName(identity model.Identity, membership *model.Member, members []model.Member) string {
	first := strings.TrimSpace(identity.FirstName)
	last := strings.TrimSpace(identity.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	if membership != nil {
		if name := strings.TrimSpace(membership.UserName); name != "" {
			return name
		}
	}
	if name := nameFromEmail(identity.Email); name != "" {
		return name
	}
	if m := FindMembership(identity, members); m != nil {
		if name := strings.TrimSpace(m.UserName); name != "" {
			return name
		}
	}
	return FallbackAuthorName
}

// nameFromEmail 把邮箱前缀转换为名字，"user" 这种占位前缀不可用
func nameFromEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return ""
	}
	local := email[:at]
	if strings.EqualFold(local, "user") {
		return ""
	}
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// FindMembership 在成员缓存中按用户 ID 或邮箱查找本人
func FindMembership(identity model.Identity, members []model.Member) *model.Member {
	for i := range members {
		m := &members[i]
		if identity.UserID != "" && m.UserID == identity.UserID {
			return m
		}
		if identity.Email != "" && strings.EqualFold(m.UserEmail, identity.Email) {
			return m
		}
	}
	return nil
}

// BuildAuthorSnapshot 生成写入帖子和回复的作者快照
func BuildAuthorSnapshot(identity model.Identity, membership *model.Member, members []model.Member, now time.Time) model.AuthorSnapshot {
	return model.AuthorSnapshot{
		ID:         identity.UserID,
		Name:       ResolveAuthorName(identity, membership, members),
		Email:      identity.Email,
		Photo:      identity.PhotoURL,
		CapturedAt: now.UTC(),
	}
}

func isAuthor(identity model.Identity, author model.AuthorSnapshot) bool {
	if identity.UserID != "" && identity.UserID == author.ID {
		return true
	}
	return identity.Email != "" && strings.EqualFold(identity.Email, author.Email)
}

// CanEditPost 作者 ID 或邮箱任一匹配即可编辑
func CanEditPost(identity model.Identity, post *model.Post) bool {
	return post != nil && isAuthor(identity, post.Author)
}

// CanEditReply 作者 ID 或邮箱任一匹配即可编辑
func CanEditReply(identity model.Identity, reply *model.Reply) bool {
	return reply != nil && isAuthor(identity, reply.Author)
}

// CanUserInteract 成员处于活跃状态且小组未结束
func CanUserInteract(membership *model.Member, group *model.Group) bool {
	return membership.IsActive() && group != nil && group.Status != model.GroupCompleted
}

// CanPin 只有小组管理员可以置顶
func CanPin(membership *model.Member) bool {
	return membership.IsAdmin()
}

// IsPostLikedByUser 点赞集合中是否包含该用户
func IsPostLikedByUser(post *model.Post, userID string) bool {
	return post != nil && userID != "" && post.HasLike(userID)
}

// SortPosts 置顶帖子在前，其余按创建时间倒序
func SortPosts(posts []model.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].IsPinned != posts[j].IsPinned {
			return posts[i].IsPinned
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
