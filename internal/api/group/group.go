package group

import (
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/middleware"
	"groupboard-backend/internal/service"
	"groupboard-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GroupHandler 小组和成员相关的请求
type GroupHandler struct {
	groupService *service.GroupService
}

func NewGroupHandler(groupService *service.GroupService) *GroupHandler {
	return &GroupHandler{groupService}
}

type createGroupRequest struct {
	Title       string `json:"title" binding:"required,not_blank,max=120"`
	Description string `json:"description" binding:"max=2000"`
}

// CreateGroup 创建小组，当前用户成为管理员
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Logger.Warn("创建小组请求无效", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "无效的小组数据", err))
		return
	}
	group, err := h.groupService.CreateGroup(c.Request.Context(), req.Title, req.Description, identity)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleCreated(c, group, "小组已创建")
}

func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupService.ListGroups(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, groups, "")
}

// GetGroup 返回小组信息以及当前用户的成员记录
func (h *GroupHandler) GetGroup(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	group, err := h.groupService.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	resp := gin.H{"group": group}
	if member, err := h.groupService.Membership(c.Request.Context(), group.ID, identity.UserID); err == nil {
		resp["membership"] = member
	}
	errors.HandleSuccess(c, resp, "")
}

func (h *GroupHandler) Join(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	member, err := h.groupService.Join(c.Request.Context(), c.Param("id"), identity)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleCreated(c, member, "已加入小组")
}

// RemoveMember 移除成员，仅小组管理员或平台管理员可操作
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	groupID, userID := c.Param("id"), c.Param("user_id")
	if err := h.groupService.RemoveMember(c.Request.Context(), groupID, userID, identity); err != nil {
		errors.HandleError(c, err)
		return
	}
	util.Logger.Info("成员已移除", zap.String("group_id", groupID), zap.String("user_id", userID), zap.String("actor", identity.UserID))
	errors.HandleSuccess(c, nil, "成员已移除")
}

func (h *GroupHandler) Stats(c *gin.Context) {
	stats, err := h.groupService.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, stats, "")
}
