package model

import (
	"fmt"
	"time"
)

// MaxPostImages 每个帖子最多可附带的图片数量
const MaxPostImages = 2

// PostType 帖子类型，闭合枚举
type PostType string

const (
	PostDiscussion   PostType = "discussion"
	PostAnnouncement PostType = "announcement"
	PostTask         PostType = "task"
	PostUpdate       PostType = "update"
)

// PostTypeInfo 帖子类型的展示信息
type PostTypeInfo struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

var postTypeTable = map[PostType]PostTypeInfo{
	PostDiscussion:   {Label: "Discussion", Icon: "message-circle"},
	PostAnnouncement: {Label: "Announcement", Icon: "megaphone"},
	PostTask:         {Label: "Task", Icon: "check-square"},
	PostUpdate:       {Label: "Update", Icon: "refresh-cw"},
}

// PostTypes 返回全部帖子类型，顺序固定
func PostTypes() []PostType {
	return []PostType{PostDiscussion, PostAnnouncement, PostTask, PostUpdate}
}

// ParsePostType 解析帖子类型，空值视为 discussion
func ParsePostType(s string) (PostType, error) {
	if s == "" {
		return PostDiscussion, nil
	}
	t := PostType(s)
	if _, ok := postTypeTable[t]; !ok {
		return "", fmt.Errorf("unknown post type %q", s)
	}
	return t, nil
}

// Info 返回类型对应的标签和图标，未知类型按 discussion 展示
func (t PostType) Info() PostTypeInfo {
	if info, ok := postTypeTable[t]; ok {
		return info
	}
	return postTypeTable[PostDiscussion]
}

// AuthorSnapshot 作者身份快照，只在创建和编辑时写入，不随成员资料自动同步
type AuthorSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Photo      string    `json:"photo"`
	CapturedAt time.Time `json:"captured_at"`
}

type PostImage struct {
	URL        string `json:"url"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	DeleteHash string `json:"delete_hash"`
	ID         string `json:"id"`
}

type Post struct {
	ID         string         `json:"id"`
	GroupID    string         `json:"group_id"`
	Author     AuthorSnapshot `json:"author"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Type       PostType       `json:"type"`
	Images     []PostImage    `json:"images"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	IsEdited   bool           `json:"is_edited"`
	IsPinned   bool           `json:"is_pinned"`
	Likes      []string       `json:"likes"`
	LikeCount  int            `json:"like_count"`
	ReplyCount int            `json:"reply_count"`

	// 通知记录
	AdminNotifiedOfSubmission bool       `json:"admin_notified_of_submission"`
	NotifiedAt                *time.Time `json:"notified_at,omitempty"`
}

// HasLike 判断用户是否已点赞
func (p *Post) HasLike(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

type Reply struct {
	ID        string         `json:"id"`
	PostID    string         `json:"post_id"`
	GroupID   string         `json:"group_id"`
	Author    AuthorSnapshot `json:"author"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	IsEdited  bool           `json:"is_edited"`
}

// Notification 站内通知
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	GroupID   string    `json:"group_id"`
	PostID    string    `json:"post_id"`
	ReplyID   string    `json:"reply_id,omitempty"`
	ActorID   string    `json:"actor_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
