package interfaces

import (
	"context"
	"groupboard-backend/internal/model"
)

// SnapshotFunc 接收查询的完整结果集
type SnapshotFunc func(docs []*model.Document)

// DocumentFunc 接收单个文档的最新状态，文档不存在时为 nil
type DocumentFunc func(doc *model.Document)

// ErrorFunc 接收订阅错误
type ErrorFunc func(err error)

// Unsubscribe 取消订阅，可重复调用
type Unsubscribe func()

// DocumentStore 定义了文档存储的读写与订阅接口
//
// 订阅回调不会在 Subscribe* 调用内同步触发；同一个订阅的快照按投递顺序到达，
// 落后的订阅只会收到最新状态，不会在新快照之后再收到旧快照。
// Unsubscribe 返回后不会再有回调开始；它会等正在执行的回调返回，
// 所以不能在持有回调需要的锁时调用。
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*model.Document, error)
	Add(ctx context.Context, collection string, data map[string]interface{}, extra ...model.FieldUpdate) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error
	Update(ctx context.Context, collection, id string, updates ...model.FieldUpdate) error
	Query(ctx context.Context, q model.Query) ([]*model.Document, error)
	SubscribeDocument(collection, id string, onSnapshot DocumentFunc, onError ErrorFunc) (Unsubscribe, error)
	SubscribeQuery(q model.Query, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
}
