// Package apierr 定义交易后端 SDK 的错误类型
package apierr

import (
	"errors"
	"fmt"
)

const (
	// ReasonRequestFailed 后端未返回可用 detail 时的通用原因
	ReasonRequestFailed = "Request failed"
	// ReasonSessionExpired 401 时的提示信息
	ReasonSessionExpired = "Session expired, please login again"
)

// ValidationError 客户端提交前校验失败（不会发出网络请求）
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RequestError 非 2xx 响应或网络层失败
// Status 为 0 表示没有收到响应（网络错误）
type RequestError struct {
	Method string
	Path   string
	Status int
	Reason string
	Cause  error
}

func (e *RequestError) Error() string {
	return e.Reason
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// IsTransport 是否为网络层失败
func (e *RequestError) IsTransport() bool {
	return e.Status == 0
}

// SessionExpiredError 后端返回 401，token 已被清除，调用方需要跳转到登录
type SessionExpiredError struct {
	Method string
	Path   string
}

func (e *SessionExpiredError) Error() string {
	return ReasonSessionExpired
}

// DecodeError 2xx 响应体不是合法 JSON
type DecodeError struct {
	Path  string
	Body  string
	Cause error
}

func (e *DecodeError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("decode response of %s failed: %v, body: %s", e.Path, e.Cause, body)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsSessionExpired 判断错误链中是否包含 SessionExpiredError
func IsSessionExpired(err error) bool {
	var target *SessionExpiredError
	return errors.As(err, &target)
}

// IsValidation 判断错误链中是否包含 ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// AsRequestError 从错误链中取出 RequestError
func AsRequestError(err error) (*RequestError, bool) {
	var target *RequestError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
