package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Config 结构体用于存储应用程序的配置信息
type Config struct {
	ServerAddr  string
	StoreDriver string // memory 或 mysql
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	RedisAddr   string // 为空时使用进程内变更通知
	RedisPass   string
	RedisDB     int
	JWTSecret   string
	LogLevel    string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	AdminEmail   string

	FrontendURL string
	BackendURL  string

	ImageBackend       string // local、s3 或 gcs
	S3Region           string
	S3Bucket           string
	GCSProjectID       string
	GCSBucketName      string
	GCSCredentialsFile string
	LocalStoragePath   string

	// 项目提交通知渠道，按顺序降级
	NotifyPrimaryURL   string
	NotifySecondaryURL string
	NotifyMinimalURL   string
	SpreadsheetWebhook string
	NotifyTimeout      time.Duration

	SessionIdleTimeout time.Duration
	ReconcileInterval  time.Duration
	Debug              bool // 是否开启调试模式
}

// AppConfig 是全局配置变量
var AppConfig Config

// Init 函数用于初始化配置
func Init() {
	// 加载 .env 文件
	err := godotenv.Load()
	if err != nil {
		log.Printf("警告：无法加载 .env 文件: %v", err)
	}

	AppConfig = Load()

	if err := validateConfig(&AppConfig); err != nil {
		log.Fatalf("错误：%v", err)
	}

	if AppConfig.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("应用程序运行在调试模式")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.Println("应用程序运行在生产模式")
	}

	log.Printf("配置加载完成。存储驱动：%s，图片存储：%s", AppConfig.StoreDriver, AppConfig.ImageBackend)
}

// Load 从环境变量中读取配置
func Load() Config {
	return Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		StoreDriver:        getEnv("STORE_DRIVER", "memory"),
		DBHost:             getEnv("DB_HOST", ""),
		DBPort:             getEnv("DB_PORT", "3306"),
		DBUser:             getEnv("DB_USER", ""),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPass:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvAsInt("SMTP_PORT", 465),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		AdminEmail:         getEnv("ADMIN_EMAIL", ""),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8080"),
		ImageBackend:       getEnv("IMAGE_BACKEND", "local"),
		S3Region:           getEnv("S3_REGION", "us-west-2"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		GCSProjectID:       getEnv("GCS_PROJECT_ID", ""),
		GCSBucketName:      getEnv("GCS_BUCKET_NAME", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		LocalStoragePath:   getEnv("LOCAL_STORAGE_PATH", "./uploads"),
		NotifyPrimaryURL:   getEnv("NOTIFY_PRIMARY_URL", ""),
		NotifySecondaryURL: getEnv("NOTIFY_SECONDARY_URL", ""),
		NotifyMinimalURL:   getEnv("NOTIFY_MINIMAL_URL", ""),
		SpreadsheetWebhook: getEnv("SPREADSHEET_WEBHOOK_URL", ""),
		NotifyTimeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		ReconcileInterval:  getEnvAsDuration("MEMBER_RECONCILE_INTERVAL", 5*time.Minute),
		Debug:              getEnvAsBool("DEBUG", false),
	}
}

// SMTPEnabled 是否配置了邮件发送
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(key, "")
	if val, err := time.ParseDuration(valStr); err == nil && val > 0 {
		return val
	}
	return defaultVal
}

func validateConfig(c *Config) error {
	if c.JWTSecret == "" {
		return errors.New("JWT密钥未设置")
	}
	switch c.StoreDriver {
	case "memory":
	case "mysql":
		if c.DBHost == "" || c.DBPort == "" || c.DBUser == "" || c.DBName == "" {
			return errors.New("数据库配置不完整")
		}
	default:
		return fmt.Errorf("未知的存储驱动 %q", c.StoreDriver)
	}
	switch c.ImageBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3 存储桶未设置")
		}
	case "gcs":
		if c.GCSBucketName == "" || c.GCSCredentialsFile == "" {
			return errors.New("GCS 配置不完整")
		}
	default:
		return fmt.Errorf("未知的图片存储 %q", c.ImageBackend)
	}
	if c.SMTPHost != "" && (c.SMTPUsername == "" || c.SMTPPassword == "") {
		return errors.New("SMTP配置不完整")
	}
	return nil
}
