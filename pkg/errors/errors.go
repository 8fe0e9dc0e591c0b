// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误；调用方用 errors.Is 判断分类
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArg        = errors.New("invalid argument")
	ErrMissingCredential = errors.New("missing credential")
	ErrUpstream          = errors.New("upstream provider error")
	ErrTimeout           = errors.New("timeout")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Upstream 将上游 HTTP 非成功响应归类为 ErrUpstream
func Upstream(provider string, status int, body string) error {
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Errorf("%w: %s status=%d body=%s", ErrUpstream, provider, status, body)
}

// MissingCredential 返回缺少凭证的配置错误
func MissingCredential(name string) error {
	return fmt.Errorf("%w: %s 未设置", ErrMissingCredential, name)
}

// IsRetryable 上游错误与超时可以由下一层兜底；配置错误不可
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrInvalidArg) {
		return false
	}
	return true
}
