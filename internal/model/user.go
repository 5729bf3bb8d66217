package model

import "time"

// UserProfile 平台用户资料文档
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url"`
	Bio         string    `json:"bio"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Identity 当前会话的用户身份，来自访问令牌
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
	Role        string `json:"role"`
}

// IsPlatformAdmin 是否为平台管理员
func (i Identity) IsPlatformAdmin() bool {
	return i.Role == "admin"
}
