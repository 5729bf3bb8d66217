package errors

import (
	stderrors "errors"
	"net/http"

	svcerrors "groupboard-backend/internal/service/errors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}

// SuccessResponse 定义成功响应结构
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// 错误码与HTTP状态码映射
var errorStatusMap = map[ErrorCode]int{
	// 系统错误 (1000-1999)
	ErrInternal: http.StatusInternalServerError,
	ErrDatabase: http.StatusInternalServerError,
	ErrCache:    http.StatusInternalServerError,
	ErrTimeout:  http.StatusRequestTimeout,
	ErrUpstream: http.StatusBadGateway,

	// 认证错误 (2000-2999)
	ErrUnauthorized:  http.StatusUnauthorized,
	ErrForbidden:     http.StatusForbidden,
	ErrInvalidToken:  http.StatusUnauthorized,
	ErrTokenExpired:  http.StatusUnauthorized,
	ErrNotGroupAdmin: http.StatusForbidden,

	// 请求错误 (3000-3999)
	ErrBadRequest:       http.StatusBadRequest,
	ErrValidation:       http.StatusBadRequest,
	ErrResourceNotFound: http.StatusNotFound,
	ErrResourceExists:   http.StatusConflict,
	ErrResourceConflict: http.StatusConflict,

	// 业务错误 (4000-4999)
	ErrGroupNotFound:   http.StatusNotFound,
	ErrPostNotFound:    http.StatusNotFound,
	ErrReplyNotFound:   http.StatusNotFound,
	ErrSessionNotFound: http.StatusNotFound,
	ErrImageRejected:   http.StatusBadRequest,
	ErrGroupClosed:     http.StatusConflict,
}

// 服务层错误码映射
var serviceCodeMap = map[svcerrors.ErrorCode]ErrorCode{
	svcerrors.ErrDatabase:     ErrDatabase,
	svcerrors.ErrNotFound:     ErrResourceNotFound,
	svcerrors.ErrDuplicate:    ErrResourceExists,
	svcerrors.ErrInvalidInput: ErrValidation,
	svcerrors.ErrUnauthorized: ErrUnauthorized,
	svcerrors.ErrForbidden:    ErrForbidden,
	svcerrors.ErrInternal:     ErrInternal,
	svcerrors.ErrThirdParty:   ErrUpstream,
}

// StatusOf 返回错误码对应的 HTTP 状态码
func StatusOf(code ErrorCode) int {
	if status, ok := errorStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromService 把服务层错误转换为应用错误
func FromService(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var se *svcerrors.ServiceError
	if stderrors.As(err, &se) {
		code, ok := serviceCodeMap[se.Code]
		if !ok {
			code = ErrInternal
		}
		return &AppError{Code: code, Message: se.Message, Err: se.Err}
	}
	return &AppError{Code: ErrInternal, Message: "Internal Server Error", Err: err}
}

// HandleError 统一处理错误响应
func HandleError(c *gin.Context, err error) {
	appErr := FromService(err)
	c.Error(appErr)

	resp := ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	if appErr.Err != nil {
		resp.Error = appErr.Err.Error()
	}

	c.JSON(StatusOf(appErr.Code), resp)
}

// HandleSuccess 统一处理成功响应
func HandleSuccess(c *gin.Context, data interface{}, message string) {
	resp := SuccessResponse{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCreated 统一处理创建成功响应
func HandleCreated(c *gin.Context, data interface{}, message string) {
	resp := SuccessResponse{
		Code:    http.StatusCreated,
		Message: message,
		Data:    data,
	}
	c.JSON(http.StatusCreated, resp)
}
