package main

import (
	"context"
	"groupboard-backend/config"
	"groupboard-backend/internal/api"
	"groupboard-backend/internal/api/admin"
	"groupboard-backend/internal/api/board"
	"groupboard-backend/internal/api/group"
	"groupboard-backend/internal/api/media"
	"groupboard-backend/internal/api/project"
	"groupboard-backend/internal/api/user"
	"groupboard-backend/internal/common"
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/feed"
	"groupboard-backend/internal/notify"
	"groupboard-backend/internal/repository/interfaces"
	"groupboard-backend/internal/repository/memory"
	"groupboard-backend/internal/repository/mysql"
	"groupboard-backend/internal/repository/redis"
	"groupboard-backend/internal/repository/watch"
	"groupboard-backend/internal/service"
	"groupboard-backend/internal/storage"
	"groupboard-backend/internal/util"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// 单个实例最多同时打开的会话数
const maxSessions = 10000

type documentStore interface {
	interfaces.DocumentStore
	Hub() *watch.Hub
	Close() error
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			util.Logger.Error("程序发生严重错误", zap.Any("error", r))
		}
	}()

	// 初始化配置
	config.Init()
	cfg := &config.AppConfig

	// 初始化日志
	util.InitLogger(cfg.LogLevel)
	defer util.Logger.Sync()

	util.Logger.Info("应用程序启动")

	// 注册自定义验证器
	util.RegisterBindingValidators()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, usePublisher := openStore(ctx, cfg)
	defer store.Close()

	var workers sync.WaitGroup

	// 多实例部署时通过 Redis 传播集合变更
	if cfg.RedisAddr != "" && usePublisher != nil {
		rdb, err := redis.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			util.Logger.Fatal("连接 Redis 失败", zap.Error(err))
		}
		defer rdb.Close()
		changes := redis.NewChangeFeed(rdb, "", store.Hub())
		usePublisher(changes)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := changes.Run(ctx); err != nil && ctx.Err() == nil {
				util.Logger.Error("变更订阅中断", zap.Error(err))
			}
		}()
		util.Logger.Info("已启用 Redis 变更通知", zap.String("addr", cfg.RedisAddr))
	}

	backend, closeBackend := openImageBackend(ctx, cfg)
	defer closeBackend()
	images := storage.NewImageHost(backend, cfg.BackendURL+"/api/previews")

	// 初始化服务
	var mailer service.Mailer
	if cfg.SMTPEnabled() {
		mailer = service.NewEmailService(cfg)
	} else {
		util.Logger.Warn("未配置 SMTP，公告邮件和告警邮件不会发送")
	}
	notificationService := service.NewNotificationService(store, mailer, cfg.FrontendURL)
	communityService := service.NewCommunityService(store, notificationService)
	groupService := service.NewGroupService(store)

	cascade := notify.FromConfig(cfg)
	if cascade.Len() == 0 {
		util.Logger.Warn("未配置项目提交通知渠道")
	}
	projectService := service.NewProjectService(store, cascade, mailer, cfg.AdminEmail)
	userService := service.NewUserService(store)

	registry := feed.NewRegistry(cfg.SessionIdleTimeout, maxSessions)
	go registry.Run()
	adminService := service.NewAdminService(store, projectService, registry)

	analytics := errors.NewErrorAnalytics()
	uploadsPath := ""
	if cfg.ImageBackend == "local" {
		uploadsPath = cfg.LocalStoragePath
	}
	router := api.NewRouter(api.Handlers{
		Groups:        group.NewGroupHandler(groupService),
		Sessions:      board.NewSessionHandler(registry, groupService, store, communityService, images),
		Profiles:      user.NewProfileHandler(userService, images),
		Notifications: user.NewNotificationHandler(notificationService),
		Projects:      project.NewProjectHandler(projectService),
		Admin:         admin.NewAdminHandler(adminService, groupService, analytics),
		Media:         media.NewMediaHandler(images),
	}, api.RouterConfig{
		FrontendURL: cfg.FrontendURL,
		UploadsPath: uploadsPath,
		Analytics:   analytics,
	})

	// 定期校正小组成员数
	workers.Add(1)
	go func() {
		defer workers.Done()
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fixed, err := groupService.ReconcileAll(ctx)
				if err != nil {
					util.Logger.Error("校正成员数失败", zap.Error(err))
				}
				if fixed > 0 {
					util.Logger.Info("成员数已校正", zap.Int("groups", fixed))
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	go func() {
		util.Logger.Info("服务器正在启动", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Logger.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	if cfg.Debug {
		for _, route := range router.Routes() {
			util.Logger.Debug("路由",
				zap.String("method", route.Method),
				zap.String("path", route.Path),
				zap.String("handler", route.Handler))
		}
	}

	// 等待中断信号以优雅地关闭服务器（设置 5 秒的超时时间）
	<-ctx.Done()
	util.Logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		util.Logger.Error("服务器强制关闭", zap.Error(err))
	}

	registry.Stop()
	workers.Wait()
	communityService.Wait()
	projectService.Wait()

	util.Logger.Info("服务器已优雅关闭")
}

// openStore 按配置打开文档存储，只有 MySQL 存储支持跨实例发布
func openStore(ctx context.Context, cfg *config.Config) (documentStore, func(watch.Publisher)) {
	if cfg.StoreDriver != "mysql" {
		util.Logger.Info("使用内存存储")
		store := memory.NewDocumentStore()
		return store, nil
	}

	dsn := mysql.DSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	var store *mysql.DocumentStore
	err := common.WithRetry(func() error {
		db, err := mysql.Open(ctx, dsn)
		if err != nil {
			return err
		}
		store = mysql.NewDocumentStore(db)
		return nil
	}, 5)
	if err != nil {
		util.Logger.Fatal("连接数据库失败", zap.Error(err))
	}
	if err := store.EnsureSchema(ctx); err != nil {
		util.Logger.Fatal("初始化数据表失败", zap.Error(err))
	}
	util.Logger.Info("数据库连接成功", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return store, store.UsePublisher
}

// openImageBackend 按配置创建图片存储后端
func openImageBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func()) {
	switch cfg.ImageBackend {
	case "s3":
		client, err := storage.NewS3Client(cfg.S3Region, cfg.S3Bucket)
		if err != nil {
			util.Logger.Fatal("初始化 S3 失败", zap.Error(err))
		}
		return client, func() {}
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCSBucketName, cfg.GCSCredentialsFile)
		if err != nil {
			util.Logger.Fatal("初始化 GCS 失败", zap.Error(err))
		}
		return client, func() {
			if err := client.Close(); err != nil {
				util.Logger.Warn("关闭 GCS 客户端失败", zap.Error(err))
			}
		}
	default:
		if err := os.MkdirAll(cfg.LocalStoragePath, 0755); err != nil {
			util.Logger.Fatal("创建上传文件夹失败", zap.Error(err), zap.String("path", cfg.LocalStoragePath))
		}
		local, err := storage.NewLocalStorage(cfg.LocalStoragePath, cfg.BackendURL+"/uploads")
		if err != nil {
			util.Logger.Fatal("初始化本地存储失败", zap.Error(err))
		}
		return local, func() {}
	}
}
