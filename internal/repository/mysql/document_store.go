package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	"groupboard-backend/internal/repository/watch"
	"groupboard-backend/internal/util"
	"regexp"
	"strings"
	"sync"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	collection VARCHAR(64) NOT NULL,
	id VARCHAR(64) NOT NULL,
	data JSON NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	PRIMARY KEY (collection, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// DocumentStore 基于 MySQL JSON 列的文档存储
type DocumentStore struct {
	db  *sql.DB
	hub *watch.Hub

	mu        sync.RWMutex
	publisher watch.Publisher
}

var _ interfaces.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore 创建 MySQL 文档存储，默认只唤醒本进程内的监听者
func NewDocumentStore(db *sql.DB) *DocumentStore {
	s := &DocumentStore{db: db}
	s.hub = watch.NewHub(s)
	s.publisher = s.hub
	return s
}

// Hub 返回存储使用的监听中心
func (s *DocumentStore) Hub() *watch.Hub {
	return s.hub
}

// UsePublisher 替换变更传播方式，例如跨实例的 Redis 通道
func (s *DocumentStore) UsePublisher(p watch.Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// EnsureSchema 创建文档表
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		util.Logger.Error("创建文档表失败", zap.Error(err))
		return err
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, version, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id)
	doc, err := scanDocument(collection, row)
	if err == sql.ErrNoRows {
		return nil, model.ErrDocumentNotFound
	}
	if err != nil {
		util.Logger.Error("读取文档失败", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return doc, nil
}

func (s *DocumentStore) Add(ctx context.Context, collection string, data map[string]interface{}, extra ...model.FieldUpdate) (string, error) {
	fields, err := model.NormalizeFields(data)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if fields, err = model.ApplyUpdates(fields, extra, now); err != nil {
		return "", err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, version, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
		collection, id, raw, now, now)
	if err != nil {
		util.Logger.Error("创建文档失败", zap.String("collection", collection), zap.Error(err))
		return "", err
	}
	s.changed(ctx, collection)
	return id, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("set %s: empty id", collection)
	}
	fields, err := model.NormalizeFields(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, version, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)
		 ON DUPLICATE KEY UPDATE data = VALUES(data), version = version + 1, updated_at = VALUES(updated_at)`,
		collection, id, raw, now, now)
	if err != nil {
		util.Logger.Error("写入文档失败", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		return err
	}
	s.changed(ctx, collection)
	return nil
}

// Update 在事务内锁定文档行后应用字段操作，保证单文档原子性
func (s *DocumentStore) Update(ctx context.Context, collection, id string, updates ...model.FieldUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ? FOR UPDATE`,
		collection, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.ErrDocumentNotFound
	}
	if err != nil {
		util.Logger.Error("锁定文档失败", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		return err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	now := time.Now().UTC()
	if fields, err = model.ApplyUpdates(fields, updates, now); err != nil {
		return err
	}
	if raw, err = json.Marshal(fields); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, version = version + 1, updated_at = ? WHERE collection = ? AND id = ?`,
		raw, now, collection, id)
	if err != nil {
		util.Logger.Error("更新文档失败", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		return err
	}
	if err := tx.Commit(); err != nil {
		util.Logger.Error("提交事务失败", zap.Error(err))
		return err
	}
	s.changed(ctx, collection)
	return nil
}

// Query 把字符串过滤条件下推到 SQL，其余条件在读取后过滤
func (s *DocumentStore) Query(ctx context.Context, q model.Query) ([]*model.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	where, args := buildWhere(q)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, version, created_at, updated_at FROM documents WHERE `+where+` ORDER BY created_at, id`,
		args...)
	if err != nil {
		util.Logger.Error("查询文档失败", zap.String("collection", q.Collection), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	docs := make([]*model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(q.Collection, rows)
		if err != nil {
			return nil, err
		}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, rows.Err()
}

func (s *DocumentStore) SubscribeDocument(collection, id string, onSnapshot interfaces.DocumentFunc, onError interfaces.ErrorFunc) (interfaces.Unsubscribe, error) {
	return s.hub.WatchDocument(collection, id, onSnapshot, onError)
}

func (s *DocumentStore) SubscribeQuery(q model.Query, onSnapshot interfaces.SnapshotFunc, onError interfaces.ErrorFunc) (interfaces.Unsubscribe, error) {
	return s.hub.WatchQuery(q, onSnapshot, onError)
}

// Close 停止全部监听并关闭数据库连接
func (s *DocumentStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func (s *DocumentStore) changed(ctx context.Context, collection string) {
	s.mu.RLock()
	p := s.publisher
	s.mu.RUnlock()
	if err := p.Publish(ctx, collection); err != nil {
		util.Logger.Warn("发布变更失败，仅通知本地监听者", zap.String("collection", collection), zap.Error(err))
		s.hub.Notify(collection)
	}
}

func buildWhere(q model.Query) (string, []interface{}) {
	clauses := []string{"collection = ?"}
	args := []interface{}{q.Collection}
	for _, f := range q.Filters {
		column, columnArgs, ok := filterColumn(f.Field)
		if !ok {
			continue
		}
		switch f.Op {
		case model.OpEqual:
			v, isString := f.Value.(string)
			if !isString {
				continue
			}
			clauses = append(clauses, column+" = ?")
			args = append(args, columnArgs...)
			args = append(args, v)
		case model.OpIn:
			vals, _ := f.Value.([]interface{})
			strs := make([]interface{}, 0, len(vals))
			for _, v := range vals {
				if str, isString := v.(string); isString {
					strs = append(strs, str)
				}
			}
			if len(strs) != len(vals) {
				continue
			}
			if len(strs) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(strs)), ",")
			clauses = append(clauses, column+" IN ("+placeholders+")")
			args = append(args, columnArgs...)
			args = append(args, strs...)
		}
	}
	return strings.Join(clauses, " AND "), args
}

func filterColumn(field string) (string, []interface{}, bool) {
	if field == "id" {
		return "id", nil, true
	}
	if !fieldPattern.MatchString(field) {
		return "", nil, false
	}
	return "JSON_UNQUOTE(JSON_EXTRACT(data, ?))", []interface{}{"$." + field}, true
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(collection string, row rowScanner) (*model.Document, error) {
	doc := &model.Document{Collection: collection}
	var raw []byte
	if err := row.Scan(&doc.ID, &raw, &doc.Version, &doc.CreateTime, &doc.UpdateTime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err)
	}
	if doc.Data == nil {
		doc.Data = map[string]interface{}{}
	}
	return doc, nil
}

// DSN 根据连接参数生成数据源名称
func DSN(host, port, user, password, name string) string {
	cfg := driver.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.DBName = name
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open 打开数据库连接并配置连接池
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errNoDSN
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var errNoDSN = errors.New("mysql dsn is empty")
