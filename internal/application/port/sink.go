package port

import "solstream/internal/domain/model"

// Subscriber 下游客户端。所有方法都不能阻塞。
type Subscriber interface {
	ID() string
	// Acknowledge 在订阅者能收到任何报价之前调用
	Acknowledge(token string)
	// Notify 缓冲满时丢弃并返回 false
	Notify(q model.PriceQuote) bool
	// Fail 对某个代币的不可恢复错误
	Fail(token, message string)
}
