package feed

import (
	"context"
	"groupboard-backend/internal/util"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// Registry 保存打开的会话，空闲超时或被删除时关闭对应的同步器
type Registry struct {
	cache   *ttlcache.Cache[string, *Synchronizer]
	running atomic.Bool
}

// NewRegistry idle 为会话的空闲超时，每次访问都会续期
func NewRegistry(idle time.Duration, capacity uint64) *Registry {
	opts := []ttlcache.Option[string, *Synchronizer]{
		ttlcache.WithTTL[string, *Synchronizer](idle),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *Synchronizer](capacity))
	}
	cache := ttlcache.New[string, *Synchronizer](opts...)

	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Synchronizer]) {
		s := item.Value()
		util.Logger.Info("会话已移出",
			zap.String("session_id", item.Key()),
			zap.String("group_id", s.GroupID()),
			zap.Int("reason", int(reason)))
		go s.Close()
	})
	return &Registry{cache: cache}
}

// Run 定期清理过期会话，直到 Stop
func (r *Registry) Run() {
	r.running.Store(true)
	r.cache.Start()
}

// Stop 停止清理并关闭全部会话
func (r *Registry) Stop() {
	// 清理循环没有启动时 Stop 会阻塞
	if r.running.CompareAndSwap(true, false) {
		r.cache.Stop()
	}
	r.cache.DeleteAll()
}

// Open 创建并启动一个会话，启动失败时不会登记
func (r *Registry) Open(ctx context.Context, opts Options) (string, *Synchronizer, error) {
	s := New(opts)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return "", nil, err
	}
	id := uuid.NewString()
	r.cache.Set(id, s, ttlcache.DefaultTTL)
	return id, s, nil
}

// Get 读取会话并续期，只有会话的创建者可以访问
func (r *Registry) Get(id, userID string) (*Synchronizer, bool) {
	item := r.cache.Get(id)
	if item == nil {
		return nil, false
	}
	s := item.Value()
	if s.Identity().UserID != userID {
		return nil, false
	}
	return s, true
}

// Remove 关闭并移除会话
func (r *Registry) Remove(id string) {
	r.cache.Delete(id)
}

// Len 当前打开的会话数
func (r *Registry) Len() int {
	return r.cache.Len()
}
