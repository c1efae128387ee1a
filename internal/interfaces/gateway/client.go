package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"solstream/internal/application/port"
	"solstream/internal/domain/model"
)

const (
	pingInterval = 25 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// client 一个下游 WebSocket 连接。实现 port.Subscriber，所有方法都不阻塞
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, buffer int) *client {
	if buffer <= 0 {
		buffer = 64
	}
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

// Acknowledge 控制消息入队失败时关闭慢客户端
func (c *client) Acknowledge(token string) {
	c.control(encodeAck(typeSubscribed, token))
}

// Notify 缓冲满时丢弃
func (c *client) Notify(q model.PriceQuote) bool {
	b, err := encodeQuote(q)
	if err != nil {
		return false
	}
	return c.enqueue(b)
}

func (c *client) Fail(token, message string) {
	c.control(encodeError(token, message))
}

func (c *client) control(b []byte) {
	if !c.enqueue(b) {
		log.Warn().Str("client", c.id).Msg("control message not enqueued, closing slow client")
		c.close()
	}
}

func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writeLoop 唯一的写协程，负责 ping
func (c *client) writeLoop() {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug().Str("client", c.id).Err(err).Msg("client write failed")
				return
			}
		case <-pingTicker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

var _ port.Subscriber = (*client)(nil)
