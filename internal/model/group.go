package model

import "time"

// 小组状态
type GroupStatus string

const (
	GroupActive     GroupStatus = "active"
	GroupCompleting GroupStatus = "completing"
	GroupCompleted  GroupStatus = "completed"
)

// Valid 判断状态是否合法
func (s GroupStatus) Valid() bool {
	switch s {
	case GroupActive, GroupCompleting, GroupCompleted:
		return true
	}
	return false
}

type Group struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      GroupStatus `json:"status"`
	MemberCount int         `json:"member_count"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// 成员角色
type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// 成员状态
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberRemoved  MemberStatus = "removed"
	MemberInactive MemberStatus = "inactive"
)

// Member 小组成员记录，移除时只修改状态，不做物理删除
type Member struct {
	ID        string       `json:"id"`
	GroupID   string       `json:"group_id"`
	UserID    string       `json:"user_id"`
	UserEmail string       `json:"user_email"`
	UserName  string       `json:"user_name"`
	Role      MemberRole   `json:"role"`
	Status    MemberStatus `json:"status"`
	JoinedAt  time.Time    `json:"joined_at"`
}

// IsActive 成员是否处于活跃状态
func (m *Member) IsActive() bool {
	return m != nil && m.Status == MemberActive
}

// IsAdmin 成员是否为小组管理员
func (m *Member) IsAdmin() bool {
	return m != nil && m.Role == RoleAdmin
}

// GroupStats 小组活动统计
type GroupStats struct {
	GroupID       string `json:"group_id"`
	ActiveMembers int    `json:"active_members"`
	MemberCount   int    `json:"member_count"`
	TotalPosts    int    `json:"total_posts"`
	PinnedPosts   int    `json:"pinned_posts"`
	TotalReplies  int    `json:"total_replies"`
	TotalLikes    int    `json:"total_likes"`
}
