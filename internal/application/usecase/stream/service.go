// Package stream multiplexes client subscriptions onto upstream pool subscriptions.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"solstream/internal/application/port"
	appservice "solstream/internal/application/service"
	"solstream/internal/domain/model"
	"solstream/internal/infrastructure/metrics"
)

const (
	defaultWorkers  = 4
	defaultQueue    = 1024
	defaultPushRead = time.Second
	unsubscribeWait = 5 * time.Second
	failureMessage  = "upstream connection lost"
	triggerPush     = "push"
	triggerPoll     = "poll"
)

// Resolver token -> PoolHandle
type Resolver interface {
	Resolve(ctx context.Context, token solana.PublicKey) (model.PoolHandle, error)
}

// Quoter 价格管线
type Quoter interface {
	FromNotification(ctx context.Context, h model.PoolHandle, n port.AccountNotification) (float64, error)
	Read(ctx context.Context, h model.PoolHandle) (float64, error)
}

type ServiceDeps struct {
	Locator   Resolver
	Upstream  port.Upstream
	Quoter    Quoter
	Scheduler *Scheduler
	Prices    *appservice.PriceService
	Workers   int
	Queue     int
	// PushReadInterval 同一个池两次推送触发读取的最小间隔
	PushReadInterval time.Duration
}

type job struct {
	pool *poolSub
	note port.AccountNotification
}

// Service 唯一拥有 PoolSubscription 与 ClientSubscription 表
type Service struct {
	deps ServiceDeps

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	pools      map[string]*poolSub
	byUpstream map[upstreamKey]*poolSub
	clients    map[string]map[string]clientSub
	lostGen    uint64

	jobs chan job
}

func NewService(deps ServiceDeps) *Service {
	if deps.Workers <= 0 {
		deps.Workers = defaultWorkers
	}
	if deps.Queue <= 0 {
		deps.Queue = defaultQueue
	}
	if deps.PushReadInterval <= 0 {
		deps.PushReadInterval = defaultPushRead
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewScheduler(SchedulerConfig{})
	}
	if deps.Prices == nil {
		deps.Prices = appservice.NewPriceService(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		pools:      make(map[string]*poolSub),
		byUpstream: make(map[upstreamKey]*poolSub),
		clients:    make(map[string]map[string]clientSub),
		jobs:       make(chan job, deps.Queue),
	}
}

// Subscribe 解析代币并把客户端挂到对应的 PoolSubscription 上。
// 成功时先调用 Acknowledge，之后订阅者才可能收到报价。
func (s *Service) Subscribe(ctx context.Context, sub port.Subscriber, token solana.PublicKey) error {
	if err := s.ctx.Err(); err != nil {
		return model.ErrUpstreamDisconnected
	}

	h, err := s.deps.Locator.Resolve(ctx, token)
	if err != nil {
		return err
	}

	tokenStr := token.String()
	clientID := sub.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.clients[clientID]
	if subs == nil {
		subs = make(map[string]clientSub)
		s.clients[clientID] = subs
	}
	if _, ok := subs[tokenStr]; ok {
		sub.Acknowledge(tokenStr)
		return nil
	}

	p, ok := s.pools[h.Key()]
	if !ok {
		p = newPoolSub(h)
		p.binding = true
		s.pools[p.key] = p
		metrics.PoolSubscriptions.Inc()
		s.deps.Scheduler.Schedule(s.ctx, p.key, func(ctx context.Context) { s.pollTick(ctx, p) })
		go s.bind(p)
		log.Info().Str("token", tokenStr).Str("pool", p.key).Msg("pool subscription created")
	}

	sub.Acknowledge(tokenStr)
	p.subscribers[clientID] = sub
	subs[tokenStr] = clientSub{token: tokenStr, poolKey: p.key, subscribedAt: time.Now()}
	return nil
}

// Unsubscribe 幂等
func (s *Service) Unsubscribe(clientID string, token solana.PublicKey) error {
	s.mu.Lock()
	action, ok := s.removeClientSubLocked(clientID, token.String())
	if subs := s.clients[clientID]; subs != nil && len(subs) == 0 {
		delete(s.clients, clientID)
	}
	s.mu.Unlock()

	if ok {
		s.finishDrain(action)
	}
	return nil
}

// RemoveClient 客户端断开：一次性移除它的全部订阅
func (s *Service) RemoveClient(clientID string) {
	s.mu.Lock()
	var actions []drainAction
	for token := range s.clients[clientID] {
		if a, ok := s.removeClientSubLocked(clientID, token); ok {
			actions = append(actions, a)
		}
	}
	delete(s.clients, clientID)
	s.mu.Unlock()

	for _, a := range actions {
		s.finishDrain(a)
	}
}

// removeClientSubLocked 返回 true 表示池需要排空
func (s *Service) removeClientSubLocked(clientID, token string) (drainAction, bool) {
	subs := s.clients[clientID]
	cs, ok := subs[token]
	if !ok {
		return drainAction{}, false
	}
	delete(subs, token)

	p := s.pools[cs.poolKey]
	if p == nil {
		return drainAction{}, false
	}
	delete(p.subscribers, clientID)
	if len(p.subscribers) > 0 {
		return drainAction{}, false
	}
	return s.drainLocked(p), true
}

// drainLocked Active/Creating -> Draining：移出注册表并停止轮询，最多一次 unsubscribe
func (s *Service) drainLocked(p *poolSub) drainAction {
	p.state = StateDraining
	delete(s.pools, p.key)
	metrics.PoolSubscriptions.Dec()

	a := drainAction{pool: p, timer: s.deps.Scheduler.Stop(p.key)}
	if p.bound {
		delete(s.byUpstream, p.upstreamKey())
		if !p.unsubbed {
			p.unsubbed = true
			a.unsub, a.id, a.gen = true, p.subID, p.generation
		}
		p.bound = false
	}
	log.Info().Str("pool", p.key).Msg("pool subscription draining")
	return a
}

// finishDrain 锁外执行：等待轮询退出、发出 unsubscribe、进入 Closed
func (s *Service) finishDrain(a drainAction) {
	a.timer.Wait()

	if a.unsub {
		ctx, cancel := context.WithTimeout(s.ctx, unsubscribeWait)
		err := s.deps.Upstream.Unsubscribe(ctx, a.id, a.gen)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("pool", a.pool.key).Uint64("sub_id", a.id).Msg("upstream unsubscribe failed")
		}
	}

	s.mu.Lock()
	// 仍在 binding 的池由 bind 协程在拿到 id 后负责 unsubscribe 并关闭
	if !a.pool.binding {
		a.pool.state = StateClosed
	}
	s.mu.Unlock()
}

// bind 发出 accountSubscribe；失败时保持未绑定，由后续轮询 tick 重新绑定
func (s *Service) bind(p *poolSub) {
	id, gen, err := s.deps.Upstream.Subscribe(s.ctx, p.handle.PoolAddress)

	s.mu.Lock()
	p.binding = false
	if err != nil {
		if p.state == StateDraining {
			p.state = StateClosed
		}
		s.mu.Unlock()
		log.Warn().Err(err).Str("pool", p.key).Msg("upstream subscribe failed, will retry on poll")
		return
	}

	if p.state == StateDraining || p.state == StateClosed {
		unsub := !p.unsubbed
		p.unsubbed = true
		p.state = StateClosed
		s.mu.Unlock()
		if unsub {
			ctx, cancel := context.WithTimeout(s.ctx, unsubscribeWait)
			if err := s.deps.Upstream.Unsubscribe(ctx, id, gen); err != nil {
				log.Warn().Err(err).Str("pool", p.key).Msg("upstream unsubscribe after drain failed")
			}
			cancel()
		}
		return
	}

	if gen <= s.lostGen {
		// 订阅确认之前连接已断开，id 已失效
		s.mu.Unlock()
		return
	}

	p.subID, p.generation, p.bound = id, gen, true
	p.state = StateActive
	s.byUpstream[p.upstreamKey()] = p
	s.mu.Unlock()

	log.Info().Str("pool", p.key).Uint64("sub_id", id).Uint64("generation", gen).Msg("pool subscription active")
}

// Run 处理上游事件与通知，直到 ctx 结束
func (s *Service) Run(ctx context.Context) error {
	defer s.shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.deps.Prices.Run(gctx)
	})
	for i := 0; i < s.deps.Workers; i++ {
		g.Go(func() error {
			s.worker(gctx)
			return nil
		})
	}

	notes := s.deps.Upstream.Notifications()
	events := s.deps.Upstream.Events()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-events:
			s.handleEvent(ev)
		case n := <-notes:
			s.route(n)
		}
	}

	close(s.jobs)
	_ = g.Wait()
	return nil
}

func (s *Service) shutdown() {
	s.cancel()
	s.deps.Scheduler.StopAll()
}

func (s *Service) worker(ctx context.Context) {
	for j := range s.jobs {
		if ctx.Err() != nil {
			continue
		}
		s.mu.Lock()
		h, alive := j.pool.handle, j.pool.state == StateActive
		s.mu.Unlock()
		if !alive {
			continue
		}

		if !PushNeedsRead(h, j.note) {
			price, err := s.deps.Quoter.FromNotification(ctx, h, j.note)
			s.publish(ctx, j.pool, price, err, triggerPush)
			continue
		}

		// 需要外部读取：按池合并，并经过共享限流器
		if !s.beginRead(j.pool) {
			metrics.QuotesDropped.WithLabelValues("coalesced").Inc()
			continue
		}
		if err := s.deps.Scheduler.Wait(ctx); err != nil {
			s.endRead(j.pool)
			continue
		}
		price, err := s.deps.Quoter.FromNotification(ctx, h, j.note)
		s.endRead(j.pool)
		s.publish(ctx, j.pool, price, err, triggerPush)
	}
}

// beginRead 同一个池同时只有一个推送读取，且间隔不小于 PushReadInterval
func (s *Service) beginRead(p *poolSub) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.reading || time.Since(p.lastRead) < s.deps.PushReadInterval {
		return false
	}
	p.reading = true
	p.lastRead = time.Now()
	return true
}

func (s *Service) endRead(p *poolSub) {
	s.mu.Lock()
	p.reading = false
	s.mu.Unlock()
}

// route 按 (代际, 订阅 id) 查找池；找不到的迟到通知直接丢弃
func (s *Service) route(n port.AccountNotification) {
	s.mu.Lock()
	p := s.byUpstream[upstreamKey{generation: n.Generation, id: n.SubscriptionID}]
	s.mu.Unlock()
	if p == nil {
		log.Debug().Uint64("sub_id", n.SubscriptionID).Uint64("generation", n.Generation).Msg("drop notification for unknown subscription")
		return
	}
	select {
	case s.jobs <- job{pool: p, note: n}:
	default:
		metrics.NotificationsDropped.Inc()
	}
}

func (s *Service) handleEvent(ev port.ConnEvent) {
	log.Info().Str("kind", ev.Kind.String()).Uint64("generation", ev.Generation).Err(ev.Err).Msg("upstream event")
	switch ev.Kind {
	case port.EventConnectionLost:
		s.onConnectionLost(ev.Generation)
	case port.EventReconnected:
		s.onReconnected()
	case port.EventConnectionFailed:
		s.onConnectionFailed()
	}
}

// onConnectionLost 让该代际及更早的订阅 id 一次性失效；仍有订阅者的池回到 Creating。
// 已绑定到更新代际的池不受迟到的事件影响
func (s *Service) onConnectionLost(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.lostGen {
		s.lostGen = gen
	}
	for k := range s.byUpstream {
		if k.generation <= gen {
			delete(s.byUpstream, k)
		}
	}
	for _, p := range s.pools {
		if p.bound && p.generation > gen {
			continue
		}
		p.bound = false
		p.subID, p.generation = 0, 0
		p.state = StateCreating
	}
}

// onReconnected 每个仍被需要的池恰好重新订阅一次
func (s *Service) onReconnected() {
	s.mu.Lock()
	var rebind []*poolSub
	for _, p := range s.pools {
		if p.bound || p.binding || len(p.subscribers) == 0 {
			continue
		}
		p.binding = true
		rebind = append(rebind, p)
	}
	s.mu.Unlock()

	for _, p := range rebind {
		go s.bind(p)
	}
	log.Info().Int("pools", len(rebind)).Msg("resubscribing pools after reconnect")
}

// onConnectionFailed 超过最大重试：通知所有客户端并关闭全部池
func (s *Service) onConnectionFailed() {
	type failure struct {
		sub   port.Subscriber
		token string
	}

	s.mu.Lock()
	var (
		failures []failure
		timers   []*Timer
	)
	for key, p := range s.pools {
		token := p.handle.TargetMint.String()
		for id, sub := range p.subscribers {
			failures = append(failures, failure{sub: sub, token: token})
			if subs := s.clients[id]; subs != nil {
				delete(subs, token)
				if len(subs) == 0 {
					delete(s.clients, id)
				}
			}
		}
		p.subscribers = make(map[string]port.Subscriber)
		p.unsubbed = true
		p.bound = false
		if p.binding {
			p.state = StateDraining
		} else {
			p.state = StateClosed
		}
		timers = append(timers, s.deps.Scheduler.Stop(key))
		delete(s.pools, key)
		metrics.PoolSubscriptions.Dec()
	}
	s.byUpstream = make(map[upstreamKey]*poolSub)
	s.mu.Unlock()

	for _, t := range timers {
		t.Wait()
	}
	for _, f := range failures {
		f.sub.Fail(f.token, failureMessage)
	}
	log.Error().Int("clients", len(failures)).Msg("upstream connection failed, pool subscriptions closed")
}

// pollTick 轮询兜底：直接读取并无条件广播；未绑定的池在连接可用时重新绑定
func (s *Service) pollTick(ctx context.Context, p *poolSub) {
	s.mu.Lock()
	if p.state == StateDraining || p.state == StateClosed {
		s.mu.Unlock()
		return
	}
	h := p.handle
	rebind := !p.bound && !p.binding && s.deps.Upstream.Connected()
	if rebind {
		p.binding = true
	}
	s.mu.Unlock()

	if rebind {
		go s.bind(p)
	}

	price, err := s.deps.Quoter.Read(ctx, h)
	s.publish(ctx, p, price, err, triggerPoll)
}

// publish 非法价格只计数；合法价格扇出到当前订阅者（非阻塞）
func (s *Service) publish(ctx context.Context, p *poolSub, price float64, err error, trigger string) {
	if err == nil && !model.ValidPrice(price) {
		err = model.ErrNotComputable
	}
	if err != nil {
		metrics.QuotesDropped.WithLabelValues(dropReason(err)).Inc()
		ev := log.Debug()
		if errors.Is(err, model.ErrDecode) {
			ev = log.Warn()
		}
		ev.Err(err).Str("pool", p.key).Str("trigger", trigger).Msg("no quote this tick")
		return
	}

	s.mu.Lock()
	if p.state == StateDraining || p.state == StateClosed {
		s.mu.Unlock()
		return
	}
	q := model.NewPriceQuote(p.handle.TargetMint.String(), price, p.lastPrice, time.Now(), p.handle.Source())
	p.lastPrice = price
	subs := make([]port.Subscriber, 0, len(p.subscribers))
	for _, sub := range p.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if !sub.Notify(q) {
			metrics.QuotesDropped.WithLabelValues("slow_client").Inc()
		}
	}
	metrics.QuotesBroadcast.WithLabelValues(p.handle.Venue.String(), trigger).Inc()
	s.deps.Prices.Record(q)
}

// Stats 运行状态
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Pools:      len(s.pools),
		Clients:    len(s.clients),
		PollTimers: s.deps.Scheduler.Len(),
	}
	for _, p := range s.pools {
		if p.state == StateActive {
			st.ActivePools++
		}
	}
	for _, subs := range s.clients {
		st.ClientSubs += len(subs)
	}
	return st
}

// Pools 当前注册表快照
func (s *Service) Pools() []PoolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PoolInfo, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, PoolInfo{
			Key:            p.key,
			Token:          p.handle.TargetMint.String(),
			Venue:          p.handle.Venue,
			State:          p.state,
			Subscribers:    len(p.subscribers),
			SubscriptionID: p.subID,
			Generation:     p.generation,
			Bound:          p.bound,
		})
	}
	return out
}

// Scheduler 轮询调度器
func (s *Service) Scheduler() *Scheduler { return s.deps.Scheduler }
