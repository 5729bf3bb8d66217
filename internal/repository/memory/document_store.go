package memory

import (
	"context"
	"fmt"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	"groupboard-backend/internal/repository/watch"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DocumentStore 进程内文档存储，单实例部署和测试使用
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*model.Document
	hub         *watch.Hub
	now         func() time.Time

	// 测试用的故障注入
	failMu   sync.Mutex
	failures map[string]error
}

var _ interfaces.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore 创建内存文档存储
func NewDocumentStore() *DocumentStore {
	s := &DocumentStore{
		collections: make(map[string]map[string]*model.Document),
		now:         time.Now,
		failures:    make(map[string]error),
	}
	s.hub = watch.NewHub(s)
	return s
}

// Hub 返回存储使用的监听中心
func (s *DocumentStore) Hub() *watch.Hub {
	return s.hub
}

// SetClock 替换存储时钟
func (s *DocumentStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext 让下一次指定操作（get/add/set/update/query）返回 err
func (s *DocumentStore) FailNext(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures[op] = err
}

func (s *DocumentStore) injected(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err, ok := s.failures[op]
	if ok {
		delete(s.failures, op)
	}
	return err
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.injected("get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, model.ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

func (s *DocumentStore) Add(ctx context.Context, collection string, data map[string]interface{}, extra ...model.FieldUpdate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.injected("add"); err != nil {
		return "", err
	}
	fields, err := model.NormalizeFields(data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	now := s.now()
	if fields, err = model.ApplyUpdates(fields, extra, now); err != nil {
		s.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	s.put(&model.Document{
		Collection: collection,
		ID:         id,
		Data:       fields,
		Version:    1,
		CreateTime: now,
		UpdateTime: now,
	})
	s.mu.Unlock()

	s.hub.Notify(collection)
	return id, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.injected("set"); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("set %s: empty id", collection)
	}
	fields, err := model.NormalizeFields(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	now := s.now()
	doc := &model.Document{
		Collection: collection,
		ID:         id,
		Data:       fields,
		Version:    1,
		CreateTime: now,
		UpdateTime: now,
	}
	if existing, ok := s.collections[collection][id]; ok {
		doc.Version = existing.Version + 1
		doc.CreateTime = existing.CreateTime
	}
	s.put(doc)
	s.mu.Unlock()

	s.hub.Notify(collection)
	return nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, updates ...model.FieldUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.injected("update"); err != nil {
		return err
	}

	s.mu.Lock()
	existing, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return model.ErrDocumentNotFound
	}
	now := s.now()
	fields, err := model.ApplyUpdates(existing.Data, updates, now)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.put(&model.Document{
		Collection: collection,
		ID:         id,
		Data:       fields,
		Version:    existing.Version + 1,
		CreateTime: existing.CreateTime,
		UpdateTime: now,
	})
	s.mu.Unlock()

	s.hub.Notify(collection)
	return nil
}

func (s *DocumentStore) Query(ctx context.Context, q model.Query) ([]*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.injected("query"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	docs := make([]*model.Document, 0)
	for _, doc := range s.collections[q.Collection] {
		if q.Matches(doc) {
			docs = append(docs, doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreateTime.Equal(docs[j].CreateTime) {
			return docs[i].CreateTime.Before(docs[j].CreateTime)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *DocumentStore) SubscribeDocument(collection, id string, onSnapshot interfaces.DocumentFunc, onError interfaces.ErrorFunc) (interfaces.Unsubscribe, error) {
	return s.hub.WatchDocument(collection, id, onSnapshot, onError)
}

func (s *DocumentStore) SubscribeQuery(q model.Query, onSnapshot interfaces.SnapshotFunc, onError interfaces.ErrorFunc) (interfaces.Unsubscribe, error) {
	return s.hub.WatchQuery(q, onSnapshot, onError)
}

// Close 停止全部监听
func (s *DocumentStore) Close() error {
	s.hub.Close()
	return nil
}

func (s *DocumentStore) put(doc *model.Document) {
	coll, ok := s.collections[doc.Collection]
	if !ok {
		coll = make(map[string]*model.Document)
		s.collections[doc.Collection] = coll
	}
	coll[doc.ID] = doc
}
