package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Registry is the Broadcast Layer's connection table: connections[user_id]
// = set<Connection>, as spec'd. It implements presence.Publisher.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[uuid.UUID]map[*Connection]struct{}
	kv      kv.KV
	hub     *presence.Hub
	queueCap    int
	idleTimeout time.Duration
	logger      *slog.Logger

	upgrader websocket.Upgrader
}

// NewRegistry constructs a Registry and attaches it to hub as the
// Presence Hub's Publisher.
func NewRegistry(hub *presence.Hub, cache kv.KV, queueCap int, idleTimeout time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{
		byUser:      make(map[uuid.UUID]map[*Connection]struct{}),
		kv:          cache,
		hub:         hub,
		queueCap:    queueCap,
		idleTimeout: idleTimeout,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	hub.Attach(r)
	return r
}

// Accept upgrades an HTTP request to a websocket connection, registers
// it under userID/companyID/role, and starts its reader/writer tasks —
// the "two tasks per connection" scheduling model.
func (r *Registry) Accept(w http.ResponseWriter, req *http.Request, userID, companyID uuid.UUID, role, jti string) (*Connection, error) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil, err
	}

	c := newConnection(conn, userID, companyID, role, jti, r.queueCap, r.idleTimeout, r, r.logger)

	r.mu.Lock()
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[*Connection]struct{})
		r.byUser[userID] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()

	go c.readLoop(r.hub)
	go r.revocationWatch(c)
	go c.writeLoop()

	return c, nil
}

func (r *Registry) remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[c.UserID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byUser, c.UserID)
	}
}

// revocationWatch closes c with reason "revoked" within one heartbeat
// interval of its token's jti entering the revocation set, or the user
// being deactivated (surfaced the same way by the caller of
// CloseUser).
func (r *Registry) revocationWatch(c *Connection) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			revoked, err := r.kv.Exists(context.Background(), "revoked:"+c.JTI)
			if err == nil && revoked {
				c.Close(ReasonRevoked)
				return
			}
		}
	}
}

// CloseUser closes every connection belonging to userID with reason —
// used when a user is deactivated.
func (r *Registry) CloseUser(userID uuid.UUID, reason CloseReason) {
	r.mu.RLock()
	set := r.byUser[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close(reason)
	}
}

// Publish implements presence.Publisher: it fans an event out to every
// connection entitled to see it (matching company_id, or any connection
// held by a super_admin).
func (r *Registry) Publish(event presence.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, set := range r.byUser {
		for c := range set {
			if c.Role != "super_admin" && c.CompanyID != event.CompanyID {
				continue
			}
			c.sendJSON(outboundMessage{Type: string(event.Type), Seq: event.Seq, Data: event.Info})
		}
	}
}
