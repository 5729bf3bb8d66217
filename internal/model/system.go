package model

// SystemStats 系统统计数据
type SystemStats struct {
	TotalGroups      int `json:"total_groups"`
	ActiveGroups     int `json:"active_groups"`
	CompletedGroups  int `json:"completed_groups"`
	TotalSubmissions int `json:"total_submissions"`
	NotifiedAdmins   int `json:"notified_admins"`
	OpenSessions     int `json:"open_sessions"`
}
