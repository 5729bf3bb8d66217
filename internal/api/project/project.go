package project

import (
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/middleware"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/service"
	"groupboard-backend/internal/util"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProjectHandler 处理小组项目提交
type ProjectHandler struct {
	projectService *service.ProjectService
}

// NewProjectHandler 创建一个新的 ProjectHandler 实例
func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService}
}

type submitRequest struct {
	GroupID     string   `json:"group_id" binding:"required"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Objectives  string   `json:"objectives"`
	TechStack   []string `json:"tech_stack"`
	RepoURL     string   `json:"repo_url"`
	DemoURL     string   `json:"demo_url"`
	TeamMembers []string `json:"team_members"`
	StartDate   string   `json:"start_date" binding:"required"`
	EndDate     string   `json:"end_date" binding:"required"`
}

// CreateProject 提交项目，通知在后台发送
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Logger.Warn("项目提交请求无效", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的提交数据", err))
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的开始日期", err))
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的结束日期", err))
		return
	}

	sub := &model.ProjectSubmission{
		GroupID:     req.GroupID,
		Title:       req.Title,
		Description: req.Description,
		Objectives:  req.Objectives,
		TechStack:   compact(req.TechStack),
		RepoURL:     req.RepoURL,
		DemoURL:     req.DemoURL,
		TeamMembers: compact(req.TeamMembers),
		StartDate:   start,
		EndDate:     end,
	}
	id, err := h.projectService.Submit(c.Request.Context(), sub, identity)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleCreated(c, gin.H{"id": id, "analytics": sub.Analytics}, "项目已提交")
}

// GetProject 提交者本人或平台管理员可查看
func (h *ProjectHandler) GetProject(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	sub, err := h.projectService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	if sub.SubmittedBy.ID != identity.UserID && !identity.IsPlatformAdmin() {
		errors.HandleError(c, errors.New(errors.ErrForbidden, "无权查看该项目"))
		return
	}
	errors.HandleSuccess(c, sub, "")
}

// parseDate 接受日期或 RFC3339 时间
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
