// Package realtime is the Broadcast Layer: it manages persistent
// bidirectional client connections over websockets, scopes each one to
// its caller's company, and fans out Presence Hub events with bounded,
// non-blocking back-pressure.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// CloseReason is sent to the client in the final close frame.
type CloseReason string

const (
	ReasonUnauthenticated CloseReason = "unauthenticated"
	ReasonSlowConsumer    CloseReason = "slow_consumer"
	ReasonRevoked         CloseReason = "revoked"
	ReasonIdle            CloseReason = "idle_timeout"
	ReasonClientClose     CloseReason = "client_close"
)

const (
	heartbeatInterval = 30 * time.Second
	writeWait         = 10 * time.Second
)

// Connection wraps one websocket connection together with its bounded
// outbound queue and the identity scope the server enforces on it.
type Connection struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
	JTI       string

	conn     *websocket.Conn
	outbound chan []byte

	idleTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}

	registry *Registry
	logger   *slog.Logger
}

type outboundMessage struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
	Data any    `json:"data,omitempty"`
}

func newConnection(conn *websocket.Conn, userID, companyID uuid.UUID, role, jti string, queueCap int, idleTimeout time.Duration, registry *Registry, logger *slog.Logger) *Connection {
	return &Connection{
		UserID:      userID,
		CompanyID:   companyID,
		Role:        role,
		JTI:         jti,
		conn:        conn,
		outbound:    make(chan []byte, queueCap),
		idleTimeout: idleTimeout,
		closed:      make(chan struct{}),
		registry:    registry,
		logger:      logger,
	}
}

// enqueue attempts a non-blocking send onto the outbound queue. When the
// queue is full the connection is the slow consumer: it is closed rather
// than allowed to stall the publisher.
func (c *Connection) enqueue(payload []byte) {
	select {
	case c.outbound <- payload:
	default:
		c.Close(ReasonSlowConsumer)
	}
}

// Close is idempotent; it stops both goroutines and removes the
// connection from its Registry.
func (c *Connection) Close(reason CloseReason) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.registry.remove(c)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason)),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// readLoop is the connection's reader task: it processes client frames
// (get_active_timers, ping) until the socket errors or idle-times-out.
func (c *Connection) readLoop(hub *presence.Hub) {
	defer c.Close(ReasonClientClose)

	c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			c.sendJSON(outboundMessage{Type: "pong", Data: time.Now().UTC()})
		case "get_active_timers":
			var scope *uuid.UUID
			if c.Role != "super_admin" {
				cid := c.CompanyID
				scope = &cid
			}
			snapshot := hub.Snapshot(scope, nil)
			c.sendJSON(outboundMessage{Type: "active_timers", Data: snapshot})
		}
	}
}

func (c *Connection) sendJSON(msg outboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("realtime_marshal_failed", "error", err)
		return
	}
	c.enqueue(payload)
}

// writeLoop is the connection's writer task: it serializes all writes to
// the underlying socket (outbound queue drains plus periodic pings) so
// no two goroutines ever call conn.Write concurrently.
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer c.Close(ReasonIdle)

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
