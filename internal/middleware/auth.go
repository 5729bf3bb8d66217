package middleware

import (
	"context"
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/util"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// AuthMiddleware 校验访问令牌并把用户身份放入上下文；
// 浏览器无法为 WebSocket 设置请求头，因此也接受 access_token 查询参数
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		util.Logger.Debug("进入认证中间件",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))

		token := c.Query("access_token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if !(len(parts) == 2 && parts[0] == "Bearer") {
				errors.HandleError(c, errors.New(errors.ErrUnauthorized, "无效的认证格式"))
				c.Abort()
				return
			}
			token = parts[1]
		}
		if token == "" {
			errors.HandleError(c, errors.New(errors.ErrUnauthorized, "需要认证"))
			c.Abort()
			return
		}

		identity, err := util.ValidateToken(token)
		if err != nil {
			errors.HandleError(c, errors.Wrap(errors.ErrInvalidToken, "无效或过期的令牌", err))
			c.Abort()
			return
		}

		c.Set(identityKey, *identity)
		c.Set("user_id", identity.UserID)
		c.Next()
	}
}

// TimeoutMiddleware 为普通请求设置超时，长连接路由不应使用
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// IdentityFrom 读取认证中间件写入的用户身份
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	identity, ok := v.(model.Identity)
	return identity, ok
}
