package middleware

import (
	stderrors "errors"
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"

// RequestIDMiddleware 沿用客户端传入的 X-Request-ID，没有时生成一个
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// ErrorMonitorMiddleware 把处理过程中记录的错误写入错误分析器
func ErrorMonitorMiddleware(analytics *errors.ErrorAnalytics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		ctx := errors.ErrorContext{
			RequestID: c.GetString(requestIDKey),
			UserID:    c.GetString("user_id"),
			SessionID: c.Param("session"),
			Path:      c.FullPath(),
			Method:    c.Request.Method,
			Timestamp: time.Now(),
		}
		for _, e := range c.Errors {
			traced := errors.NewTracedError(e.Err, ctx)
			if ctx.SessionID != "" {
				traced.AddLabel("session", ctx.SessionID)
			}
			analytics.Record(traced)

			var appErr *errors.AppError
			if !stderrors.As(e.Err, &appErr) {
				continue
			}
			fields := []zap.Field{
				zap.Int("error_code", int(appErr.Code)),
				zap.String("error_message", appErr.Message),
				zap.String("path", ctx.Path),
				zap.String("method", ctx.Method),
				zap.String("request_id", ctx.RequestID),
			}
			if appErr.Err != nil {
				fields = append(fields, zap.Error(appErr.Err))
			}
			if errors.StatusOf(appErr.Code) >= 500 {
				util.Logger.Error("请求处理错误", fields...)
			} else {
				util.Logger.Info("请求被拒绝", fields...)
			}
		}
	}
}
