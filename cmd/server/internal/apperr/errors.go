package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Code 错误类型代码
type Code string

const (
	// VALIDATION_ERROR 输入参数不合法
	VALIDATION_ERROR Code = "VALIDATION_ERROR"

	// NOT_FOUND 路线图、天或任务不存在
	NOT_FOUND Code = "NOT_FOUND"

	// INVALID_STATE 路线图状态不允许该操作（非 active）
	INVALID_STATE Code = "INVALID_STATE"

	// CONFLICT 并发修改冲突，重试次数耗尽
	CONFLICT Code = "CONFLICT"

	// GENERATION_FORMAT_ERROR AI 返回文本中找不到 JSON 数组
	GENERATION_FORMAT_ERROR Code = "GENERATION_FORMAT_ERROR"

	// GENERATION_PARSE_ERROR JSON 数组无法解析或不符合结构约定
	GENERATION_PARSE_ERROR Code = "GENERATION_PARSE_ERROR"

	// GENERATION_UNAVAILABLE AI 服务调用失败或超时
	GENERATION_UNAVAILABLE Code = "GENERATION_UNAVAILABLE"

	// INTERNAL 未分类的内部错误
	INTERNAL Code = "INTERNAL"
)

// Error 带错误代码的应用错误
type Error struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误链支持
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误代码匹配，errors.Is(err, apperr.New(NOT_FOUND, "", nil)) 成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New 创建新的应用错误
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewValidationError 创建参数校验错误
func NewValidationError(format string, args ...any) *Error {
	return New(VALIDATION_ERROR, fmt.Sprintf(format, args...), nil)
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(format string, args ...any) *Error {
	return New(NOT_FOUND, fmt.Sprintf(format, args...), nil)
}

// NewInvalidStateError 创建状态错误
func NewInvalidStateError(format string, args ...any) *Error {
	return New(INVALID_STATE, fmt.Sprintf(format, args...), nil)
}

// NewConflictError 创建并发冲突错误
func NewConflictError(cause error) *Error {
	return New(CONFLICT, "roadmap was modified concurrently", cause)
}

// NewFormatError 创建生成格式错误
func NewFormatError(message string) *Error {
	return New(GENERATION_FORMAT_ERROR, message, nil)
}

// NewParseError 创建生成解析错误
func NewParseError(message string, cause error) *Error {
	return New(GENERATION_PARSE_ERROR, message, cause)
}

// NewUnavailableError 创建 AI 服务不可用错误
func NewUnavailableError(message string, cause error) *Error {
	return New(GENERATION_UNAVAILABLE, message, cause)
}

// NewInternalError 创建内部错误
func NewInternalError(message string, cause error) *Error {
	return New(INTERNAL, message, cause)
}

// CodeOf 提取错误链中的错误代码，非应用错误返回 INTERNAL
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return INTERNAL
}

// Has 判断错误链中是否包含指定代码
func Has(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsGeneration 判断是否为生成阶段错误
func IsGeneration(err error) bool {
	switch CodeOf(err) {
	case GENERATION_FORMAT_ERROR, GENERATION_PARSE_ERROR, GENERATION_UNAVAILABLE:
		return true
	}
	return false
}
