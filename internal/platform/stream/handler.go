package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// UnreadCounter supplies the unread total sent with the connected event.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
}

// Handler upgrades authenticated requests to stream connections.
type Handler struct {
	registry *Registry
	unread   UnreadCounter
}

func NewHandler(registry *Registry, unread UnreadCounter) *Handler {
	return &Handler{registry: registry, unread: unread}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stream", h.Connect)
}

// Connect upgrades the request, registers the connection, and starts the
// pumps. The handshake is two frames: a connected event, then the caller's
// unread count so clients can render a badge without a second round trip.
func (h *Handler) Connect(c echo.Context) error {
	ctx := c.Request().Context()
	callerID := auth.UserIDFromContext(ctx)
	if callerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	role := auth.RoleFromContext(ctx)

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cn := newConn(callerID, role)
	h.registry.register(cn)

	if payload, err := h.registry.encode(EventConnected, nil); err == nil {
		h.registry.offer(cn, payload)
	}

	unread := 0
	if h.unread != nil {
		if n, err := h.unread.UnreadCount(ctx, callerID); err == nil {
			unread = n
		}
	}
	if payload, err := h.registry.encode(EventUnreadCount, map[string]int{"unread_count": unread}); err == nil {
		h.registry.offer(cn, payload)
	}

	go h.writePump(cn, ws)
	go h.readPump(cn, ws)

	return nil
}

// readPump drains inbound frames until the peer goes away. The protocol is
// one-directional; inbound content is discarded.
func (h *Handler) readPump(cn *conn, ws *gorillawebsocket.Conn) {
	defer func() {
		h.registry.unregister(cn)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump writes queued events to the connection until the send channel
// closes or a write fails.
func (h *Handler) writePump(cn *conn, ws *gorillawebsocket.Conn) {
	defer func() {
		h.registry.unregister(cn)
		ws.Close()
	}()

	for message := range cn.send {
		ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
