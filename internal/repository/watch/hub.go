package watch

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	"groupboard-backend/internal/util"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Fetcher 监听中心用来重新读取最新数据的接口
type Fetcher interface {
	Get(ctx context.Context, collection, id string) (*model.Document, error)
	Query(ctx context.Context, q model.Query) ([]*model.Document, error)
}

// Publisher 传播集合变更
type Publisher interface {
	Publish(ctx context.Context, collection string) error
}

// Hub 管理文档和查询的长连接监听
//
// 每个监听者有独立的投递协程，唤醒后重新读取数据再回调，所以多次变更会合并成
// 一次投递，且总是投递读取时的最新状态。
//
// 取消订阅会等正在执行的回调返回，调用方不能持有回调需要的锁，也不能在同一个
// 订阅的回调里取消它。
type Hub struct {
	fetcher      Fetcher
	fetchTimeout time.Duration

	mu        sync.Mutex
	listeners map[string]map[*listener]struct{}
	closed    bool
}

type listener struct {
	collection string
	fetch      func(ctx context.Context) func()
	wake       chan struct{}
	done       chan struct{}
	stopped    atomic.Bool
	once       sync.Once
	// 回调期间持有，与取消订阅互斥
	mu sync.Mutex
}

// NewHub 创建监听中心
func NewHub(fetcher Fetcher) *Hub {
	return &Hub{
		fetcher:      fetcher,
		fetchTimeout: 10 * time.Second,
		listeners:    make(map[string]map[*listener]struct{}),
	}
}

// WatchQuery 监听查询结果
func (h *Hub) WatchQuery(q model.Query, onSnapshot interfaces.SnapshotFunc, onError interfaces.ErrorFunc) (interfaces.Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return h.register(q.Collection, func(ctx context.Context) func() {
		docs, err := h.fetcher.Query(ctx, q)
		if err != nil {
			return errorCallback(onError, err)
		}
		return func() { onSnapshot(docs) }
	})
}

// WatchDocument 监听单个文档
func (h *Hub) WatchDocument(collection, id string, onSnapshot interfaces.DocumentFunc, onError interfaces.ErrorFunc) (interfaces.Unsubscribe, error) {
	if collection == "" || id == "" {
		return nil, errors.New("watch target is empty")
	}
	return h.register(collection, func(ctx context.Context) func() {
		doc, err := h.fetcher.Get(ctx, collection, id)
		if errors.Is(err, model.ErrDocumentNotFound) {
			return func() { onSnapshot(nil) }
		}
		if err != nil {
			return errorCallback(onError, err)
		}
		return func() { onSnapshot(doc) }
	})
}

func errorCallback(onError interfaces.ErrorFunc, err error) func() {
	if onError == nil {
		return nil
	}
	return func() { onError(err) }
}

func (h *Hub) register(collection string, fetch func(ctx context.Context) func()) (interfaces.Unsubscribe, error) {
	l := &listener{
		collection: collection,
		fetch:      fetch,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errors.New("watch hub is closed")
	}
	set, ok := h.listeners[collection]
	if !ok {
		set = make(map[*listener]struct{})
		h.listeners[collection] = set
	}
	set[l] = struct{}{}
	h.mu.Unlock()

	// 首次快照
	l.signal()
	go h.loop(l)

	return func() { h.remove(l) }, nil
}

func (h *Hub) loop(l *listener) {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		if l.stopped.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.fetchTimeout)
		h.deliver(ctx, l)
		cancel()
	}
}

func (h *Hub) deliver(ctx context.Context, l *listener) {
	defer func() {
		if r := recover(); r != nil {
			util.Logger.Error("订阅回调发生panic", zap.Any("error", r), zap.String("collection", l.collection))
		}
	}()
	callback := l.fetch(ctx)
	if callback == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// 读取期间可能已经取消订阅
	if l.stopped.Load() {
		return
	}
	callback()
}

func (h *Hub) remove(l *listener) {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)

		h.mu.Lock()
		if set, ok := h.listeners[l.collection]; ok {
			delete(set, l)
			if len(set) == 0 {
				delete(h.listeners, l.collection)
			}
		}
		h.mu.Unlock()
	})
	// 等待正在执行的回调结束，之后不会再有回调开始
	l.mu.Lock()
	l.mu.Unlock()
}

func (l *listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Notify 唤醒某个集合上的全部监听者
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.listeners[collection] {
		l.signal()
	}
}

// Publish 进程内的变更传播，直接唤醒本地监听者
func (h *Hub) Publish(_ context.Context, collection string) error {
	h.Notify(collection)
	return nil
}

// Len 返回当前监听者数量
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.listeners {
		n += len(set)
	}
	return n
}

// Close 停止全部监听
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*listener
	for _, set := range h.listeners {
		for l := range set {
			all = append(all, l)
		}
	}
	h.mu.Unlock()

	for _, l := range all {
		h.remove(l)
	}
}
