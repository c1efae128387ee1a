package stream

import (
	"time"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

// PoolState PoolSubscription 生命周期
type PoolState int

const (
	StateCreating PoolState = iota
	StateActive
	StateDraining
	StateClosed
)

func (s PoolState) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// upstreamKey 订阅 id 只在所属连接代际内有效
type upstreamKey struct {
	generation uint64
	id         uint64
}

// poolSub 一个被监听的池。所有字段由 Service.mu 保护
type poolSub struct {
	key    string
	handle model.PoolHandle
	state  PoolState

	subID      uint64
	generation uint64
	bound      bool // 持有当前连接上有效的订阅 id
	binding    bool // accountSubscribe 进行中
	unsubbed   bool // 保证只发一次 accountUnsubscribe

	subscribers map[string]port.Subscriber
	lastPrice   float64

	reading  bool      // 推送触发的外部读取进行中
	lastRead time.Time // 上一次推送触发读取的开始时间
}

func newPoolSub(h model.PoolHandle) *poolSub {
	return &poolSub{
		key:         h.Key(),
		handle:      h,
		state:       StateCreating,
		subscribers: make(map[string]port.Subscriber),
	}
}

func (p *poolSub) upstreamKey() upstreamKey {
	return upstreamKey{generation: p.generation, id: p.subID}
}

// clientSub 客户端对某个代币的订阅
type clientSub struct {
	token        string
	poolKey      string
	subscribedAt time.Time
}

// PoolInfo 只读视图
type PoolInfo struct {
	Key            string
	Token          string
	Venue          model.Venue
	State          PoolState
	Subscribers    int
	SubscriptionID uint64
	Generation     uint64
	Bound          bool
}

// Stats 运行状态计数
type Stats struct {
	Pools       int `json:"pools"`
	ActivePools int `json:"active_pools"`
	Clients     int `json:"clients"`
	ClientSubs  int `json:"client_subscriptions"`
	PollTimers  int `json:"poll_timers"`
}

// drainAction 在锁内决定、在锁外执行的清理
type drainAction struct {
	pool  *poolSub
	timer *Timer
	unsub bool
	id    uint64
	gen   uint64
}
