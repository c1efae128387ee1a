// Package gateway serves the downstream client WebSocket protocol.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
	"solstream/internal/infrastructure/metrics"
)

const (
	msgUpstreamLost = "upstream connection lost"
	msgTimeout      = "subscribe timed out"
	msgUnavailable  = "price source temporarily unavailable"
	msgInvalid      = "invalid message"
	msgBadAddress   = "invalid token address"
)

// Stream 订阅复用器
type Stream interface {
	Subscribe(ctx context.Context, sub port.Subscriber, token solana.PublicKey) error
	Unsubscribe(clientID string, token solana.PublicKey) error
	RemoveClient(clientID string)
}

type Options struct {
	Path             string
	ClientBuffer     int
	SubscribeTimeout time.Duration
	MaxMessageBytes  int64
	// MetricsPath 为空时不挂载 /metrics
	MetricsPath string
	// Health /healthz 返回的附加状态
	Health func() any
}

type Server struct {
	stream   Stream
	opts     Options
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu      sync.Mutex
	clients map[string]*client
}

func NewServer(stream Stream, opts Options) *Server {
	if opts.Path == "" {
		opts.Path = "/ws"
	}
	if opts.SubscribeTimeout <= 0 {
		opts.SubscribeTimeout = 15 * time.Second
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 4096
	}
	s := &Server{
		stream: stream,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		clients: make(map[string]*client),
	}
	s.mux.HandleFunc(opts.Path, s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if opts.MetricsPath != "" {
		s.mux.Handle(opts.MetricsPath, metrics.Handler())
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Run 阻塞直到 ctx 结束
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", addr).Str("path", s.opts.Path).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	return err
}

// ClientCount 当前连接数
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "clients": s.ClientCount()}
	if s.opts.Health != nil {
		body["stream"] = s.opts.Health()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	c := newClient(conn, s.opts.ClientBuffer)

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	metrics.ClientConnections.Inc()
	log.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("client connected")

	go c.writeLoop()
	s.readLoop(r.Context(), c)

	c.close()
	s.stream.RemoveClient(c.id)

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	metrics.ClientConnections.Dec()
	log.Info().Str("client", c.id).Msg("client disconnected")
}

// readLoop 按顺序处理客户端消息，同一客户端的 subscribe/unsubscribe 不会乱序
func (s *Server) readLoop(ctx context.Context, c *client) {
	conn := c.conn
	conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if !c.closed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Str("client", c.id).Err(err).Msg("client read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.handleMessage(ctx, c, b)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *client, b []byte) {
	var msg clientMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		c.control(encodeError("", msgInvalid))
		return
	}

	switch msg.Type {
	case typeSubscribe, typeUnsubscribe:
	default:
		c.control(encodeError(msg.Token, fmt.Sprintf("unknown message type: %q", msg.Type)))
		return
	}

	token, err := solana.PublicKeyFromBase58(msg.Token)
	if err != nil {
		c.control(encodeError(msg.Token, msgBadAddress))
		return
	}

	if msg.Type == typeUnsubscribe {
		_ = s.stream.Unsubscribe(c.id, token)
		c.control(encodeAck(typeUnsubscribed, msg.Token))
		return
	}

	subCtx, cancel := context.WithTimeout(ctx, s.opts.SubscribeTimeout)
	defer cancel()
	if err := s.stream.Subscribe(subCtx, c, token); err != nil {
		log.Info().Str("client", c.id).Str("token", msg.Token).Err(err).Msg("subscribe rejected")
		c.control(encodeError(msg.Token, clientMessageFor(msg.Token, err)))
	}
}

// clientMessageFor 只有 ErrPoolNotFound 与持久断线会以具名错误返回客户端
func clientMessageFor(token string, err error) string {
	switch {
	case errors.Is(err, model.ErrPoolNotFound):
		return fmt.Sprintf("no liquidity pool found for token %s", token)
	case errors.Is(err, model.ErrUpstreamDisconnected):
		return msgUpstreamLost
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	default:
		return msgUnavailable
	}
}
