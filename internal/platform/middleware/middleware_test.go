package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	mw := RequestID()
	h := mw(handler)
	h(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

// The logger reads the id RequestID stored, so every entry can be correlated
// with the X-Request-ID header the client saw.
func TestLogger_CarriesRequestID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/mine", nil)
	req.Header.Set(RequestIDHeader, "rid-for-logs")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	chain := RequestID()(Logger(logger)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))
	if err := chain(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"request_id":"rid-for-logs"`) {
		t.Errorf("expected request id in log entry, got %s", out)
	}
	if !strings.Contains(out, `"path":"/api/v1/sessions/mine"`) {
		t.Errorf("expected path in log entry, got %s", out)
	}
}

func TestRecovery_RecoversPanic(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	logger := zerolog.New(os.Stderr)
	handler := func(c echo.Context) error {
		panic("boom")
	}

	h := Recovery(logger)(handler)
	err := h(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 HTTPError, got %v", err)
	}
}

func TestRecovery_LogsRequestContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/request", nil)
	req.Header.Set(RequestIDHeader, "rid-for-panic")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	chain := Recovery(logger)(RequestID()(func(c echo.Context) error {
		panic("boom")
	}))
	if err := chain(c); err == nil {
		t.Fatal("expected error from recovered panic")
	}

	out := buf.String()
	if !strings.Contains(out, `"request_id":"rid-for-panic"`) {
		t.Errorf("expected request id in panic entry, got %s", out)
	}
	if !strings.Contains(out, `"path":"/api/v1/sessions/request"`) {
		t.Errorf("expected path in panic entry, got %s", out)
	}
}

func TestRequestTimeout_AllowsFastHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/mine", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestTimeout(time.Second)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_CancelsSlowHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/mine", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestTimeout(10 * time.Millisecond)(func(c echo.Context) error {
		select {
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		case <-time.After(time.Second):
			return c.String(http.StatusOK, "too late")
		}
	})

	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504 HTTPError, got %v", err)
	}
}

func TestRequestTimeout_SkipsStreamPath(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestTimeout(10 * time.Millisecond)(func(c echo.Context) error {
		if _, hasDeadline := c.Request().Context().Deadline(); hasDeadline {
			t.Error("stream path should not carry a request deadline")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
