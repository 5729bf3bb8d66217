package user

import (
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/middleware"
	"groupboard-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications}
}

// List 当前用户的站内通知
func (h *NotificationHandler) List(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	list, err := h.notifications.ListForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrDatabase, "读取通知失败", err))
		return
	}
	errors.HandleSuccess(c, list, "")
}
