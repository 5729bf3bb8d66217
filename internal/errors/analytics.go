package errors

import (
	"fmt"
	"sync"
	"time"
)

// ErrorAnalytics 错误分析
type ErrorAnalytics struct {
	mu            sync.RWMutex
	TotalErrors   int
	ErrorsByCode  map[ErrorCode]int
	ErrorsByPath  map[string]int
	ErrorPatterns map[string]int
	LastErrorTime time.Time
}

// NewErrorAnalytics 创建错误分析器
func NewErrorAnalytics() *ErrorAnalytics {
	return &ErrorAnalytics{
		ErrorsByCode:  make(map[ErrorCode]int),
		ErrorsByPath:  make(map[string]int),
		ErrorPatterns: make(map[string]int),
	}
}

// Record 记录错误
func (a *ErrorAnalytics) Record(err *TracedError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.TotalErrors++
	a.ErrorsByCode[err.Code]++
	a.ErrorsByPath[err.Context.Path]++
	a.LastErrorTime = err.Timestamp

	if pattern := identifyPattern(err); pattern != "" {
		a.ErrorPatterns[pattern]++
	}
}

// identifyPattern 按错误类别和请求方法归类
func identifyPattern(err *TracedError) string {
	var category string
	switch {
	case err.Code >= 4000:
		category = "business"
	case err.Code >= 3000:
		category = "request"
	case err.Code >= 2000:
		category = "auth"
	default:
		category = "system"
	}
	if err.Context.Method == "" {
		return category
	}
	return fmt.Sprintf("%s:%s", category, err.Context.Method)
}

// GetStats 获取统计信息
func (a *ErrorAnalytics) GetStats() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byCode := make(map[string]int, len(a.ErrorsByCode))
	for code, n := range a.ErrorsByCode {
		byCode[fmt.Sprintf("%d", code)] = n
	}
	byPath := make(map[string]int, len(a.ErrorsByPath))
	for path, n := range a.ErrorsByPath {
		byPath[path] = n
	}
	patterns := make(map[string]int, len(a.ErrorPatterns))
	for p, n := range a.ErrorPatterns {
		patterns[p] = n
	}

	return map[string]interface{}{
		"total_errors":   a.TotalErrors,
		"errors_by_code": byCode,
		"errors_by_path": byPath,
		"error_patterns": patterns,
		"last_error":     a.LastErrorTime,
	}
}
