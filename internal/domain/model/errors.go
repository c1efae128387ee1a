package model

import (
	"errors"
	"fmt"
)

var (
	// ErrVenueUnavailable 单个探测失败，继续下一个
	ErrVenueUnavailable = errors.New("venue unavailable")
	// ErrPoolNotFound 所有探测都失败
	ErrPoolNotFound = errors.New("pool not found")
	// ErrDecode 账户数据布局无法解析
	ErrDecode = errors.New("decode error")
	// ErrZeroReserve 储备为零，丢弃本次 tick
	ErrZeroReserve = errors.New("zero reserve")
	// ErrNotAvailable 已毕业的 bonding curve 且真实储备也为零
	ErrNotAvailable = errors.New("reserves not available")
	// ErrNotComputable 缺少报价资产的 USD 参考价，或报价资产不受支持
	ErrNotComputable = errors.New("price not computable")
	// ErrUpstreamDisconnected 上游 WebSocket 断开
	ErrUpstreamDisconnected = errors.New("upstream disconnected")
	// ErrRateLimited 上游限流
	ErrRateLimited = errors.New("rate limited")
)

// DecodeError carries the venue and the reason a layout was rejected.
type DecodeError struct {
	Venue  Venue
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Venue, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// NewDecodeError 构造布局解析错误
func NewDecodeError(v Venue, format string, args ...any) error {
	return &DecodeError{Venue: v, Reason: fmt.Sprintf(format, args...)}
}
