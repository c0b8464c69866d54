// Package stream maintains the live connection registry. Each authenticated
// user may hold any number of websocket connections; events published for a
// user fan out to all of them. All registry operations are thread-safe via
// sync.RWMutex.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is the wire format for everything sent down a stream connection.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Event type discriminators. Clients switch on these; the set is part of the
// wire contract.
const (
	EventConnected       = "connected"
	EventUnreadCount     = "unread_count"
	EventNewNotification = "new_notification"
	EventHeartbeat       = "heartbeat"
)

// conn is a single live connection. Send is buffered; a reader that cannot
// keep up loses events rather than blocking the publisher.
type conn struct {
	userID uuid.UUID
	role   string
	send   chan []byte

	closeOnce sync.Once
}

const sendBuffer = 256

func newConn(userID uuid.UUID, role string) *conn {
	return &conn{userID: userID, role: role, send: make(chan []byte, sendBuffer)}
}

// Registry tracks live connections by user and role.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[*conn]struct{}
	all    map[*conn]struct{}

	heartbeat time.Duration
	logger    zerolog.Logger
}

func NewRegistry(heartbeat time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		byUser:    make(map[uuid.UUID]map[*conn]struct{}),
		all:       make(map[*conn]struct{}),
		heartbeat: heartbeat,
		logger:    logger,
	}
}

func (r *Registry) register(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byUser[c.userID] == nil {
		r.byUser[c.userID] = make(map[*conn]struct{})
	}
	r.byUser[c.userID][c] = struct{}{}
	r.all[c] = struct{}{}
}

// unregister removes a connection and closes its send channel. Idempotent;
// the read and write pumps may both trigger it on teardown.
func (r *Registry) unregister(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.all[c]; !ok {
		return
	}
	delete(r.all, c)
	if conns, ok := r.byUser[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.byUser, c.userID)
		}
	}
	c.closeOnce.Do(func() { close(c.send) })
}

// Broadcast sends an event to every live connection matching the recipient,
// by user id or by role. An empty role matches nothing, so an id-only
// broadcast reaches just that user's connections. A connection matching both
// criteria receives the event once. A recipient with no connections is a
// no-op; the notification ledger is the durable record.
func (r *Registry) Broadcast(recipientID uuid.UUID, recipientRole, eventType string, data any) {
	payload, err := r.encode(eventType, data)
	if err != nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.all {
		if c.userID == recipientID || (recipientRole != "" && c.role == recipientRole) {
			r.offer(c, payload)
		}
	}
}

// PublishAll sends an event to every live connection.
func (r *Registry) PublishAll(eventType string, data any) {
	payload, err := r.encode(eventType, data)
	if err != nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.all {
		r.offer(c, payload)
	}
}

// Run emits heartbeats until ctx is cancelled. Heartbeats keep
// intermediaries from reaping idle connections and give clients a liveness
// signal.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PublishAll(EventHeartbeat, nil)
		}
	}
}

// ConnectionCount returns the total number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// UserConnectionCount returns the number of live connections for one user.
func (r *Registry) UserConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

func (r *Registry) encode(eventType string, data any) ([]byte, error) {
	payload, err := json.Marshal(Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		r.logger.Error().Err(err).Str("type", eventType).Msg("failed to encode stream event")
		return nil, err
	}
	return payload, nil
}

func (r *Registry) offer(c *conn, payload []byte) {
	select {
	case c.send <- payload:
	default:
		// Connection buffer full; skip to avoid blocking.
	}
}
