package api

import (
	"groupboard-backend/internal/api/admin"
	"groupboard-backend/internal/api/board"
	"groupboard-backend/internal/api/group"
	"groupboard-backend/internal/api/media"
	"groupboard-backend/internal/api/project"
	"groupboard-backend/internal/api/user"
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/middleware"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers 路由用到的全部处理器
type Handlers struct {
	Groups        *group.GroupHandler
	Sessions      *board.SessionHandler
	Profiles      *user.ProfileHandler
	Notifications *user.NotificationHandler
	Projects      *project.ProjectHandler
	Admin         *admin.AdminHandler
	Media         *media.MediaHandler
}

// RouterConfig 路由相关配置
type RouterConfig struct {
	FrontendURL    string
	UploadsPath    string // 为空时不提供本地静态文件
	RequestTimeout time.Duration
	Analytics      *errors.ErrorAnalytics
}

// NewRouter 注册中间件和全部路由
func NewRouter(h Handlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.RequestIDMiddleware())
	if cfg.Analytics != nil {
		r.Use(middleware.ErrorMonitorMiddleware(cfg.Analytics))
	}
	r.Use(middleware.RecoveryMiddleware())

	// 配置 CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		"X-Request-ID",
	}
	corsConfig.ExposeHeaders = []string{
		"Content-Length",
		"Content-Type",
		"X-Request-ID",
	}
	r.Use(cors.New(corsConfig))

	if cfg.UploadsPath != "" {
		// 静态文件的 CORS
		r.Use(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/uploads/") {
				c.Header("Access-Control-Allow-Origin", cfg.FrontendURL)
				c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type")
				if c.Request.Method == http.MethodOptions {
					c.AbortWithStatus(http.StatusOK)
					return
				}
			}
			c.Next()
		})
		r.Static("/uploads", cfg.UploadsPath)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	api := r.Group("/api")
	{
		// 预览地址直接用于 <img>，不要求令牌
		api.GET("/previews/:token", h.Media.Preview)

		// WebSocket 连接是长连接，不套用请求超时
		api.GET("/sessions/:session/ws", middleware.AuthMiddleware(), h.Sessions.Stream)

		authorized := api.Group("/")
		authorized.Use(middleware.AuthMiddleware(), middleware.TimeoutMiddleware(timeout))
		{
			authorized.GET("/profile", h.Profiles.GetProfile)
			authorized.PUT("/profile", h.Profiles.UpdateProfile)
			authorized.POST("/profile/avatar", h.Profiles.UploadAvatar)
			authorized.GET("/notifications", h.Notifications.List)
			authorized.DELETE("/images/:hash", h.Media.Delete)

			// 小组
			authorized.POST("/groups", h.Groups.CreateGroup)
			authorized.GET("/groups", h.Groups.ListGroups)
			authorized.GET("/groups/:id", h.Groups.GetGroup)
			authorized.POST("/groups/:id/join", h.Groups.Join)
			authorized.DELETE("/groups/:id/members/:user_id", h.Groups.RemoveMember)
			authorized.GET("/groups/:id/stats", h.Groups.Stats)
			authorized.POST("/groups/:id/sessions", h.Sessions.Open)

			// 动态会话
			sessions := authorized.Group("/sessions/:session")
			{
				sessions.GET("", h.Sessions.View)
				sessions.DELETE("", h.Sessions.Close)
				sessions.POST("/posts", h.Sessions.CreatePost)
				sessions.PUT("/posts/:pid", h.Sessions.EditPost)
				sessions.POST("/posts/:pid/replies", h.Sessions.SubmitReply)
				sessions.PUT("/replies/:rid", h.Sessions.EditReply)
				sessions.POST("/posts/:pid/like", h.Sessions.ToggleLike)
				sessions.POST("/posts/:pid/pin", h.Sessions.TogglePin)
				sessions.GET("/posts/:pid/likes/preview", h.Sessions.LikesPreview)
				sessions.GET("/posts/:pid/likes", h.Sessions.LikesModal)
				sessions.POST("/images", h.Sessions.SelectImage)
				sessions.POST("/images/upload", h.Sessions.UploadImages)
				sessions.DELETE("/images/:index", h.Sessions.RemoveImage)
			}

			// 项目提交
			authorized.POST("/projects", h.Projects.CreateProject)
			authorized.GET("/projects/:id", h.Projects.GetProject)
		}

		// 管理员路由组
		adminRoutes := api.Group("/admin")
		adminRoutes.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware(), middleware.TimeoutMiddleware(timeout))
		{
			adminRoutes.PATCH("/groups/:id/status", h.Admin.UpdateGroupStatus)
			adminRoutes.POST("/groups/:id/reconcile", h.Admin.ReconcileGroup)
			adminRoutes.GET("/submissions", h.Admin.ListSubmissions)
			adminRoutes.POST("/submissions/retry", h.Admin.RetryNotifications)
			adminRoutes.GET("/stats", h.Admin.GetSystemStats)
			adminRoutes.GET("/errors", h.Admin.GetErrorStats)
		}
	}

	return r
}
