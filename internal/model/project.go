package model

import (
	"time"
)

// 复杂度分级
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// ProjectSubmission 小组项目提交
type ProjectSubmission struct {
	ID          string         `json:"id"`
	GroupID     string         `json:"group_id" validate:"required"`
	Title       string         `json:"title" validate:"required,not_blank,max=200"`
	Description string         `json:"description" validate:"required,not_blank"`
	Objectives  string         `json:"objectives"`
	TechStack   []string       `json:"tech_stack"`
	RepoURL     string         `json:"repo_url" validate:"omitempty,url"`
	DemoURL     string         `json:"demo_url" validate:"omitempty,url"`
	TeamMembers []string       `json:"team_members"`
	StartDate   time.Time      `json:"start_date" validate:"required"`
	EndDate     time.Time      `json:"end_date" validate:"required,gtfield=StartDate"`
	SubmittedBy AuthorSnapshot `json:"submitted_by"`
	CreatedAt   time.Time      `json:"created_at"`

	// 分析字段，供后台管理工具使用
	Analytics SubmissionAnalytics `json:"analytics"`

	// 通知记录
	AdminNotifiedOfSubmission bool                 `json:"admin_notified_of_submission"`
	AdminNotifiedAt           *time.Time           `json:"admin_notified_at,omitempty"`
	NotificationChannel       string               `json:"notification_channel,omitempty"`
	NotificationAttempts      []NotificationRecord `json:"notification_attempts,omitempty"`
	NotificationFailedAt      *time.Time           `json:"notification_failed_at,omitempty"`
}

// SubmissionAnalytics 提交内容的统计信息
type SubmissionAnalytics struct {
	TitleLength       int    `json:"title_length"`
	DescriptionLength int    `json:"description_length"`
	ObjectivesLength  int    `json:"objectives_length"`
	TechStackCount    int    `json:"tech_stack_count"`
	TeamSize          int    `json:"team_size"`
	DurationDays      int    `json:"duration_days"`
	CompletenessScore int    `json:"completeness_score"`
	Complexity        string `json:"complexity"`
}

// NotificationRecord 单次通知尝试的结果
type NotificationRecord struct {
	Channel string    `json:"channel"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}
