package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

type stubCounter struct {
	counts map[uuid.UUID]int
}

func (s *stubCounter) UnreadCount(_ context.Context, id uuid.UUID) (int, error) {
	return s.counts[id], nil
}

// newStreamServer starts an echo server whose middleware authenticates every
// request as userID before the upgrade.
func newStreamServer(t *testing.T, r *Registry, counter UnreadCounter, userID uuid.UUID, role string) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, userID)
			ctx = context.WithValue(ctx, auth.UserRoleKey, role)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(r, counter).RegisterRoutes(e.Group("/api/v1"))

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *gorillawebsocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/stream"
	ws, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *gorillawebsocket.Conn) Event {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	return ev
}

func waitForConnections(t *testing.T, r *Registry, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", n, r.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// The handshake is two frames: connected, then the caller's unread count as
// its own event so clients keying on the type discriminator see both.
func TestHandler_ConnectHandshake(t *testing.T) {
	r := newTestRegistry()
	userID := uuid.New()
	counter := &stubCounter{counts: map[uuid.UUID]int{userID: 4}}
	srv := newStreamServer(t, r, counter, userID, "patient")

	ws := dial(t, srv)

	ev := readEvent(t, ws)
	if ev.Type != EventConnected {
		t.Fatalf("expected connected event first, got %q", ev.Type)
	}

	ev = readEvent(t, ws)
	if ev.Type != EventUnreadCount {
		t.Fatalf("expected unread_count event second, got %q", ev.Type)
	}
	data, ok := ev.Data.(map[string]any)
	if !ok || data["unread_count"] != float64(4) {
		t.Errorf("expected unread_count 4, got %+v", ev.Data)
	}
}

func TestHandler_DeliversBroadcastEvents(t *testing.T) {
	r := newTestRegistry()
	userID := uuid.New()
	srv := newStreamServer(t, r, &stubCounter{}, userID, "patient")

	ws := dial(t, srv)
	readEvent(t, ws) // connected
	readEvent(t, ws) // unread_count

	waitForConnections(t, r, 1)
	r.Broadcast(userID, "", EventNewNotification, map[string]string{"kind": "access_request"})

	ev := readEvent(t, ws)
	if ev.Type != EventNewNotification {
		t.Fatalf("expected new_notification, got %q", ev.Type)
	}
}

func TestHandler_DisconnectPrunesRegistry(t *testing.T) {
	r := newTestRegistry()
	userID := uuid.New()
	srv := newStreamServer(t, r, &stubCounter{}, userID, "patient")

	ws := dial(t, srv)
	waitForConnections(t, r, 1)

	ws.Close()
	waitForConnections(t, r, 0)
	if r.UserConnectionCount(userID) != 0 {
		t.Errorf("user index must be pruned after disconnect")
	}
}

func TestHandler_MultipleConnectionsPerUser(t *testing.T) {
	r := newTestRegistry()
	userID := uuid.New()
	srv := newStreamServer(t, r, &stubCounter{}, userID, "patient")

	ws1 := dial(t, srv)
	ws2 := dial(t, srv)
	for _, ws := range []*gorillawebsocket.Conn{ws1, ws2} {
		readEvent(t, ws) // connected
		readEvent(t, ws) // unread_count
	}
	waitForConnections(t, r, 2)

	r.Broadcast(userID, "", EventNewNotification, nil)

	var wg sync.WaitGroup
	for _, ws := range []*gorillawebsocket.Conn{ws1, ws2} {
		wg.Add(1)
		go func(ws *gorillawebsocket.Conn) {
			defer wg.Done()
			ev := readEvent(t, ws)
			if ev.Type != EventNewNotification {
				t.Errorf("expected new_notification, got %q", ev.Type)
			}
		}(ws)
	}
	wg.Wait()
}
