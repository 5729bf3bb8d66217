package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// 集合名称
const (
	CollectionGroups      = "groups"
	CollectionMembers     = "group_members"
	CollectionPosts       = "group_posts"
	CollectionReplies     = "group_post_replies"
	CollectionUsers       = "users"
	CollectionSubmissions = "project_submissions"
	CollectionNotices     = "notifications"
)

// MaxInValues 是 in 查询允许的最大取值数量
const MaxInValues = 10

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInLimitExceeded  = fmt.Errorf("in filter accepts at most %d values", MaxInValues)
)

// Document 是文档存储中的一条记录
type Document struct {
	Collection string                 `json:"collection"`
	ID         string                 `json:"id"`
	Data       map[string]interface{} `json:"data"`
	Version    int64                  `json:"version"`
	CreateTime time.Time              `json:"create_time"`
	UpdateTime time.Time              `json:"update_time"`
}

// DataTo 把文档字段解码到结构体，并回填 id 字段
func (d *Document) DataTo(v interface{}) error {
	fields := make(map[string]interface{}, len(d.Data)+1)
	for k, val := range d.Data {
		fields[k] = val
	}
	fields["id"] = d.ID
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Clone 深拷贝文档，避免调用方修改共享数据
func (d *Document) Clone() *Document {
	cp := *d
	cp.Data = cloneFields(d.Data)
	return &cp
}

// EncodeFields 把结构体编码为文档字段，id 字段不写入文档体
func EncodeFields(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "id")
	return fields, nil
}

// FilterOp 查询过滤操作符
type FilterOp string

const (
	OpEqual FilterOp = "=="
	OpIn    FilterOp = "in"
)

// Filter 单个字段过滤条件
type Filter struct {
	Field string      `json:"field"`
	Op    FilterOp    `json:"op"`
	Value interface{} `json:"value"`
}

// Where 构造相等过滤
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// WhereIn 构造集合成员过滤
func WhereIn(field string, values []string) Filter {
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Filter{Field: field, Op: OpIn, Value: vals}
}

// Query 描述一个集合查询
type Query struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters"`
}

// NewQuery 创建查询
func NewQuery(collection string, filters ...Filter) Query {
	return Query{Collection: collection, Filters: filters}
}

// Validate 校验查询是否满足存储约束
func (q Query) Validate() error {
	if q.Collection == "" {
		return errors.New("query collection is empty")
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual:
		case OpIn:
			vals, ok := f.Value.([]interface{})
			if !ok {
				return fmt.Errorf("in filter on %s needs a list value", f.Field)
			}
			if len(vals) > MaxInValues {
				return ErrInLimitExceeded
			}
		default:
			return fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	return nil
}

// Matches 判断文档是否满足全部过滤条件
func (q Query) Matches(doc *Document) bool {
	if doc.Collection != q.Collection {
		return false
	}
	for _, f := range q.Filters {
		val := doc.Data[f.Field]
		if f.Field == "id" {
			val = doc.ID
		}
		switch f.Op {
		case OpEqual:
			if !valuesEqual(val, f.Value) {
				return false
			}
		case OpIn:
			vals, _ := f.Value.([]interface{})
			found := false
			for _, candidate := range vals {
				if valuesEqual(val, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// UpdateOp 字段更新操作符
type UpdateOp string

const (
	UpdateSet             UpdateOp = "set"
	UpdateUnion           UpdateOp = "union"
	UpdateRemove          UpdateOp = "remove"
	UpdateIncrement       UpdateOp = "increment"
	UpdateServerTimestamp UpdateOp = "server_timestamp"
)

// FieldUpdate 单个字段的更新，When 非空时只在同一批更新里该数组字段确实发生变化后才生效
type FieldUpdate struct {
	Field string      `json:"field"`
	Op    UpdateOp    `json:"op"`
	Value interface{} `json:"value,omitempty"`
	When  string      `json:"when,omitempty"`
}

func Set(field string, value interface{}) FieldUpdate {
	return FieldUpdate{Field: field, Op: UpdateSet, Value: value}
}

func ArrayUnion(field string, values ...interface{}) FieldUpdate {
	return FieldUpdate{Field: field, Op: UpdateUnion, Value: values}
}

func ArrayRemove(field string, values ...interface{}) FieldUpdate {
	return FieldUpdate{Field: field, Op: UpdateRemove, Value: values}
}

func Increment(field string, delta int) FieldUpdate {
	return FieldUpdate{Field: field, Op: UpdateIncrement, Value: delta}
}

// IncrementIfChanged 仅当 arrayField 在本批更新中增删了元素时才累加
func IncrementIfChanged(field string, delta int, arrayField string) FieldUpdate {
	return FieldUpdate{Field: field, Op: UpdateIncrement, Value: delta, When: arrayField}
}

func ServerTimestamp(field string) FieldUpdate {
	return FieldUpdate{Field: field, Op: UpdateServerTimestamp}
}

// ApplyUpdates 在字段集合上依次应用更新，返回新的字段集合
func ApplyUpdates(data map[string]interface{}, updates []FieldUpdate, now time.Time) (map[string]interface{}, error) {
	out := cloneFields(data)
	changed := make(map[string]bool)
	for _, u := range updates {
		if u.Field == "" || u.Field == "id" {
			return nil, fmt.Errorf("invalid update field %q", u.Field)
		}
		if u.When != "" && !changed[u.When] {
			continue
		}
		switch u.Op {
		case UpdateSet:
			v, err := normalize(u.Value)
			if err != nil {
				return nil, err
			}
			out[u.Field] = v
		case UpdateServerTimestamp:
			out[u.Field] = now.UTC().Format(time.RFC3339Nano)
		case UpdateIncrement:
			delta, err := toFloat(u.Value)
			if err != nil {
				return nil, fmt.Errorf("increment %s: %w", u.Field, err)
			}
			current := 0.0
			if existing, ok := out[u.Field]; ok && existing != nil {
				if current, err = toFloat(existing); err != nil {
					return nil, fmt.Errorf("increment %s: %w", u.Field, err)
				}
			}
			out[u.Field] = current + delta
		case UpdateUnion, UpdateRemove:
			values, err := normalizeList(u.Value)
			if err != nil {
				return nil, err
			}
			existing, _ := out[u.Field].([]interface{})
			var next []interface{}
			if u.Op == UpdateUnion {
				next = unionValues(existing, values)
			} else {
				next = removeValues(existing, values)
			}
			// 并集只增、差集只减，长度不变即集合未变
			if len(next) != len(existing) {
				changed[u.Field] = true
			}
			out[u.Field] = next
		default:
			return nil, fmt.Errorf("unsupported update op %q", u.Op)
		}
	}
	return out, nil
}

func unionValues(existing, values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(existing)+len(values))
	out = append(out, existing...)
	for _, v := range values {
		present := false
		for _, e := range out {
			if valuesEqual(e, v) {
				present = true
				break
			}
		}
		if !present {
			out = append(out, v)
		}
	}
	return out
}

func removeValues(existing, values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(existing))
	for _, e := range existing {
		drop := false
		for _, v := range values {
			if valuesEqual(e, v) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, e)
		}
	}
	return out
}

func valuesEqual(a, b interface{}) bool {
	na, errA := normalize(a)
	nb, errB := normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// normalize 把任意值转换成 JSON 解码后的形态（数字统一为 float64）
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeList(v interface{}) ([]interface{}, error) {
	n, err := normalize(v)
	if err != nil {
		return nil, err
	}
	list, ok := n.([]interface{})
	if !ok {
		return []interface{}{n}, nil
	}
	return list, nil
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	}
	return 0, fmt.Errorf("value %v is not numeric", v)
}

func cloneFields(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneFields(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// NormalizeFields 把调用方传入的字段转换为存储使用的形态
func NormalizeFields(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	n, err := normalize(data)
	if err != nil {
		return nil, err
	}
	fields, ok := n.(map[string]interface{})
	if !ok {
		return nil, errors.New("document data must be an object")
	}
	delete(fields, "id")
	return fields, nil
}
