package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ServiceError 定义服务层错误
type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// ErrorCode 定义错误码类型
type ErrorCode int

const (
	// 数据库错误
	ErrDatabase ErrorCode = iota + 1000
	ErrNotFound
	ErrDuplicate

	// 业务逻辑错误
	ErrInvalidInput
	ErrUnauthorized
	ErrForbidden

	// 系统错误
	ErrInternal
	ErrThirdParty
)

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// New 创建新的服务错误
func New(code ErrorCode, message string) error {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装已有错误
func Wrap(code ErrorCode, message string, err error) error {
	return &ServiceError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsServiceError 判断是否为服务错误
func IsServiceError(err error) bool {
	var se *ServiceError
	return stderrors.As(err, &se)
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrInternal
}

// GetMessage 获取面向用户的错误信息
func GetMessage(err error) string {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// IsTransient 判断是否为网络或存储的临时故障
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return true
	}
	switch GetErrorCode(err) {
	case ErrDatabase, ErrThirdParty, ErrInternal:
		return true
	}
	return false
}
