package admin

import (
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/middleware"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/service"
	"groupboard-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler 按功能模块组织处理方法
type AdminHandler struct {
	adminService *service.AdminService
	groupService *service.GroupService
	analytics    *errors.ErrorAnalytics
}

// NewAdminHandler 创建一个新的 AdminHandler 实例
func NewAdminHandler(adminService *service.AdminService, groupService *service.GroupService, analytics *errors.ErrorAnalytics) *AdminHandler {
	return &AdminHandler{adminService, groupService, analytics}
}

// 小组管理
func (h *AdminHandler) UpdateGroupStatus(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	var req struct {
		Status model.GroupStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的状态", err))
		return
	}
	groupID := c.Param("id")
	if err := h.groupService.UpdateStatus(c.Request.Context(), groupID, req.Status, identity); err != nil {
		errors.HandleError(c, err)
		return
	}
	util.Logger.Info("小组状态已更新", zap.String("group_id", groupID), zap.String("status", string(req.Status)))
	errors.HandleSuccess(c, gin.H{"status": req.Status}, "小组状态已更新")
}

// ReconcileGroup 重新统计活跃成员数
func (h *AdminHandler) ReconcileGroup(c *gin.Context) {
	count, changed, err := h.groupService.ReconcileMemberCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"member_count": count, "changed": changed}, "")
}

// 项目提交
func (h *AdminHandler) ListSubmissions(c *gin.Context) {
	subs, err := h.adminService.ListSubmissions(c.Request.Context(), c.Query("group_id"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"submissions": subs, "total": len(subs)}, "")
}

// RetryNotifications 重新发送失败的项目提交通知
func (h *AdminHandler) RetryNotifications(c *gin.Context) {
	delivered, err := h.adminService.RetryFailedNotifications(c.Request.Context())
	if err != nil {
		util.Logger.Error("重试项目通知失败", zap.Int("delivered", delivered), zap.Error(err))
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"delivered": delivered}, "")
}

// 统计
func (h *AdminHandler) GetSystemStats(c *gin.Context) {
	stats, err := h.adminService.GetSystemStats(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, stats, "")
}

func (h *AdminHandler) GetErrorStats(c *gin.Context) {
	errors.HandleSuccess(c, h.analytics.GetStats(), "")
}
