package middleware

import (
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminMiddleware 确保只有平台管理员可以访问某些路由
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, exists := IdentityFrom(c)
		if !exists {
			util.Logger.Warn("用户身份不存在")
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "需要认证"))
			c.Abort()
			return
		}

		if !identity.IsPlatformAdmin() {
			util.Logger.Warn("非管理员访问",
				zap.String("user_id", identity.UserID),
				zap.String("path", c.Request.URL.Path))
			errors.HandleError(c, errors.New(errors.ErrForbidden, "需要管理员权限"))
			c.Abort()
			return
		}

		util.Logger.Info("管理员验证通过", zap.String("user_id", identity.UserID))
		c.Next()
	}
}
