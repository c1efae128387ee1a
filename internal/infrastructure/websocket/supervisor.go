// Package websocket owns the single upstream Solana PubSub connection.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
	"solstream/internal/infrastructure/metrics"
)

// RetryConfig WebSocket 连接重试配置
type RetryConfig struct {
	MaxRetries int           // 最大重试次数
	InitialDel time.Duration // 初始延迟
	MaxDelay   time.Duration // 最大延迟
}

// DefaultRetryConfig 默认重试配置
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 8,
	InitialDel: 500 * time.Millisecond,
	MaxDelay:   10 * time.Second,
}

const (
	dialTimeout    = 10 * time.Second
	readDeadline   = 60 * time.Second
	pingInterval   = 25 * time.Second
	writeDeadline  = 5 * time.Second
	defaultTimeout = 10 * time.Second
	eventBuffer    = 64
)

// Options Supervisor 构造参数
type Options struct {
	URL            string
	Commitment     string
	Retry          RetryConfig
	RequestTimeout time.Duration
	QueueSize      int
	// StableAfter 连接存活超过该时长才重置重试计数，默认 MaxDelay
	StableAfter time.Duration
}

// Supervisor 维护唯一的上游连接：断线重连、代际管理、请求/响应匹配
type Supervisor struct {
	url        string
	commitment string
	retry      RetryConfig
	timeout    time.Duration
	stable     time.Duration
	dialer     *gws.Dialer

	mu         sync.Mutex
	conn       *gws.Conn
	generation uint64
	connected  bool
	ready      chan struct{} // 连接建立时关闭，断开后替换
	nextID     uint64
	pending    map[uint64]chan rpcResult

	writeMu sync.Mutex

	notifications chan port.AccountNotification
	events        chan port.ConnEvent
	kick          chan struct{}
}

var _ port.Upstream = (*Supervisor)(nil)

func NewSupervisor(opts Options) *Supervisor {
	if opts.Retry.InitialDel <= 0 {
		opts.Retry.InitialDel = DefaultRetryConfig.InitialDel
	}
	if opts.Retry.MaxDelay <= 0 {
		opts.Retry.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Commitment == "" {
		opts.Commitment = "confirmed"
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = opts.Retry.MaxDelay
	}
	return &Supervisor{
		url:           strings.TrimSpace(opts.URL),
		commitment:    opts.Commitment,
		retry:         opts.Retry,
		timeout:       opts.RequestTimeout,
		stable:        opts.StableAfter,
		dialer:        &gws.Dialer{HandshakeTimeout: dialTimeout},
		ready:         make(chan struct{}),
		pending:       make(map[uint64]chan rpcResult),
		notifications: make(chan port.AccountNotification, opts.QueueSize),
		events:        make(chan port.ConnEvent, eventBuffer),
		kick:          make(chan struct{}, 1),
	}
}

func (s *Supervisor) Notifications() <-chan port.AccountNotification { return s.notifications }
func (s *Supervisor) Events() <-chan port.ConnEvent                  { return s.events }

func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Generation 当前连接代际，从 1 开始
func (s *Supervisor) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Run 连接循环，直到 ctx 结束
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := s.cycle(ctx); err != nil {
			return nil
		}
		// 超过最大重试次数，等待新的订阅需求
		log.Warn().Str("url", s.url).Msg("upstream idle until next subscribe")
		select {
		case <-s.kick:
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.kick:
		}
	}
}

// cycle 拨号与重连，直到超过最大重试次数（返回 nil）或 ctx 结束（返回 ctx.Err()）
func (s *Supervisor) cycle(ctx context.Context) error {
	backoff := s.retry.InitialDel
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		log.Info().Str("url", s.url).Int("attempt", attempts).Msg("upstream connecting")
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, err := s.dialer.DialContext(dctx, s.url, nil)
		cancel()
		if err != nil {
			attempts++
			log.Error().Err(err).Str("url", s.url).Int("attempt", attempts).Msg("upstream dial failed")
			if attempts > s.retry.MaxRetries {
				s.emit(ctx, port.ConnEvent{
					Kind:       port.EventConnectionFailed,
					Generation: s.Generation(),
					Err:        fmt.Errorf("%w after %d attempts: %v", model.ErrUpstreamDisconnected, attempts, err),
				})
				return nil
			}
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = minDur(backoff*2, s.retry.MaxDelay)
			continue
		}

		gen := s.attach(conn)
		connectedAt := time.Now()
		log.Info().Str("url", s.url).Uint64("generation", gen).Msg("upstream connected")
		if gen > 1 {
			s.emit(ctx, port.ConnEvent{Kind: port.EventReconnected, Generation: gen})
		}

		err = readLoop(ctx, conn, func(b []byte) { s.dispatch(b, gen) })
		s.detach(gen)
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// 握手成功后立即断开的连接仍计入重试次数
		if time.Since(connectedAt) >= s.stable {
			backoff = s.retry.InitialDel
			attempts = 0
		}
		attempts++

		log.Warn().Err(err).Uint64("generation", gen).Int("attempt", attempts).Msg("upstream disconnected, reconnecting")
		s.emit(ctx, port.ConnEvent{
			Kind:       port.EventConnectionLost,
			Generation: gen,
			Err:        fmt.Errorf("%w: %v", model.ErrUpstreamDisconnected, err),
		})
		if attempts > s.retry.MaxRetries {
			s.emit(ctx, port.ConnEvent{
				Kind:       port.EventConnectionFailed,
				Generation: gen,
				Err:        fmt.Errorf("%w after %d attempts: %v", model.ErrUpstreamDisconnected, attempts, err),
			})
			return nil
		}
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		backoff = minDur(backoff*2, s.retry.MaxDelay)
	}
}

func (s *Supervisor) attach(conn *gws.Conn) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.conn = conn
	s.connected = true
	close(s.ready)
	return s.generation
}

// detach 旧连接上的所有挂起请求以 ErrUpstreamDisconnected 失败
func (s *Supervisor) detach(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || !s.connected {
		return
	}
	s.conn = nil
	s.connected = false
	s.ready = make(chan struct{})
	for id, ch := range s.pending {
		ch <- rpcResult{err: model.ErrUpstreamDisconnected}
		delete(s.pending, id)
	}
}

func (s *Supervisor) emit(ctx context.Context, ev port.ConnEvent) {
	metrics.UpstreamEvents.WithLabelValues(ev.Kind.String()).Inc()
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Supervisor) dispatch(b []byte, gen uint64) {
	var msg rpcMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Error().Err(err).Msg("upstream json unmarshal failed")
		return
	}

	if msg.Method == methodAccountNotification && msg.Params != nil {
		n, err := decodeNotification(msg.Params, gen)
		if err != nil {
			log.Warn().Err(err).Msg("bad account notification")
			return
		}
		select {
		case s.notifications <- n:
		default:
			metrics.NotificationsDropped.Inc()
		}
		return
	}

	if msg.ID == nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.pending[*msg.ID]
	delete(s.pending, *msg.ID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if msg.Error != nil {
		ch <- rpcResult{err: msg.Error}
		return
	}
	ch <- rpcResult{raw: msg.Result}
}

// Subscribe accountSubscribe，连接未建立时触发一次连接并等待
func (s *Supervisor) Subscribe(ctx context.Context, account solana.PublicKey) (uint64, uint64, error) {
	raw, gen, err := s.call(ctx, methodAccountSubscribe, []interface{}{
		account.String(),
		subscribeOptions{Encoding: "base64", Commitment: s.commitment},
	})
	if err != nil {
		return 0, 0, err
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, 0, fmt.Errorf("accountSubscribe result %s: %w", string(raw), err)
	}
	return id, gen, nil
}

// Unsubscribe 旧代际的 id 已随连接失效，直接返回
func (s *Supervisor) Unsubscribe(ctx context.Context, id, generation uint64) error {
	s.mu.Lock()
	stale := !s.connected || s.generation != generation
	s.mu.Unlock()
	if stale {
		return nil
	}

	raw, _, err := s.call(ctx, methodAccountUnsubscribe, []interface{}{id})
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil || !ok {
		return fmt.Errorf("accountUnsubscribe %d rejected: %s", id, string(raw))
	}
	return nil
}

func (s *Supervisor) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.awaitConnected(ctx); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, 0, model.ErrUpstreamDisconnected
	}
	s.nextID++
	id := s.nextID
	gen := s.generation
	conn := s.conn
	ch := make(chan rpcResult, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	err := conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		s.drop(id)
		return nil, 0, fmt.Errorf("%s write: %w: %v", method, model.ErrUpstreamDisconnected, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, 0, fmt.Errorf("%s: %w", method, res.err)
		}
		return res.raw, gen, nil
	case <-ctx.Done():
		s.drop(id)
		return nil, 0, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (s *Supervisor) awaitConnected(ctx context.Context) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	default:
	}

	select {
	case s.kick <- struct{}{}:
	default:
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", model.ErrUpstreamDisconnected, ctx.Err())
	}
}

func (s *Supervisor) drop(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func readLoop(ctx context.Context, conn *gws.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(gws.PingMessage, []byte("ping"), time.Now().Add(writeDeadline))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
