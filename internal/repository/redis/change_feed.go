package redis

import (
	"context"
	"groupboard-backend/internal/repository/watch"
	"groupboard-backend/internal/util"
	"strings"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultChannel 变更通知使用的频道
const DefaultChannel = "groupboard:changes"

// InitRedis 初始化 Redis 客户端
func InitRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// ChangeFeed 通过 Redis 发布订阅在多个实例之间传播集合变更
type ChangeFeed struct {
	rdb     *goredis.Client
	channel string
	origin  string
	hub     *watch.Hub
}

// NewChangeFeed 创建变更通道，本实例的变更直接唤醒 hub
func NewChangeFeed(rdb *goredis.Client, channel string, hub *watch.Hub) *ChangeFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &ChangeFeed{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
	}
}

// Publish 唤醒本地监听者并通知其他实例
func (f *ChangeFeed) Publish(ctx context.Context, collection string) error {
	f.hub.Notify(collection)
	return f.rdb.Publish(ctx, f.channel, encodeMessage(f.origin, collection)).Err()
}

// Run 接收其他实例的变更，直到 ctx 结束
func (f *ChangeFeed) Run(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	util.Logger.Info("已订阅变更频道", zap.String("channel", f.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, collection, valid := decodeMessage(msg.Payload)
			if !valid {
				util.Logger.Warn("忽略无效的变更消息", zap.String("payload", msg.Payload))
				continue
			}
			if origin == f.origin {
				continue
			}
			f.hub.Notify(collection)
		}
	}
}

func encodeMessage(origin, collection string) string {
	return origin + "|" + collection
}

func decodeMessage(payload string) (origin, collection string, ok bool) {
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
