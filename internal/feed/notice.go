package feed

import "time"

// NoticeLevel 提示级别
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice 面向用户的操作结果提示
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Op      string      `json:"op"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}
