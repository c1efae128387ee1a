package port

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// AccountNotification 上游 accountNotification，Generation 标识所属连接
type AccountNotification struct {
	Generation     uint64
	SubscriptionID uint64
	Slot           uint64
	Data           []byte
}

// ConnEventKind 上游连接事件
type ConnEventKind int

const (
	// EventConnectionLost 连接断开，所有订阅 id 失效
	EventConnectionLost ConnEventKind = iota + 1
	// EventReconnected 重连成功，需要重新订阅
	EventReconnected
	// EventConnectionFailed 超过最大重试次数
	EventConnectionFailed
)

func (k ConnEventKind) String() string {
	switch k {
	case EventConnectionLost:
		return "connection_lost"
	case EventReconnected:
		return "reconnected"
	case EventConnectionFailed:
		return "connection_failed"
	default:
		return "unknown"
	}
}

type ConnEvent struct {
	Kind       ConnEventKind
	Generation uint64
	Err        error
}

// Upstream 单一上游区块链 WebSocket 连接
type Upstream interface {
	// Subscribe 阻塞直到拿到订阅 id 或超时
	Subscribe(ctx context.Context, account solana.PublicKey) (id uint64, generation uint64, err error)
	// Unsubscribe 对旧连接的 id 直接返回 nil
	Unsubscribe(ctx context.Context, id uint64, generation uint64) error
	Notifications() <-chan AccountNotification
	Events() <-chan ConnEvent
	Connected() bool
}
