package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/domain/subject"
	"github.com/carelink/carelink/internal/platform/auth"
)

func newHandlerFixture(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.svc), f, echo.New()
}

func patientContext(e *echo.Echo, method, target string, f *fixture) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, f.patID)
	ctx = context.WithValue(ctx, auth.UserRoleKey, auth.RolePatient)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Rotate(t *testing.T) {
	h, f, e := newHandlerFixture(t)

	c, rec := patientContext(e, http.MethodPost, "/api/v1/capability/rotate", f)
	if err := h.Rotate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var issued Issued
	json.Unmarshal(rec.Body.Bytes(), &issued)
	if issued.Token == "" {
		t.Fatal("expected signed token in response")
	}
	if issued.ShareURL == "" {
		t.Fatal("expected shareable url in response")
	}

	// Rotating again invalidates the token just handed out.
	c, rec2 := patientContext(e, http.MethodPost, "/api/v1/capability/rotate", f)
	if err := h.Rotate(c); err != nil {
		t.Fatalf("second rotate: %v", err)
	}
	var second Issued
	json.Unmarshal(rec2.Body.Bytes(), &second)

	if f.svc.Validate(context.Background(), issued.Token) {
		t.Error("rotated-away token must not validate")
	}
	if !f.svc.Validate(context.Background(), second.Token) {
		t.Error("fresh token must validate")
	}
}

func TestHandler_Invalidate(t *testing.T) {
	h, f, e := newHandlerFixture(t)

	issued, _ := f.svc.Issue(context.Background(), f.patID)

	c, rec := patientContext(e, http.MethodPost, "/api/v1/capability/invalidate", f)
	if err := h.Invalidate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if f.svc.Validate(context.Background(), issued.Token) {
		t.Error("invalidated token must not validate")
	}
}

func TestHandler_Revoke(t *testing.T) {
	h, f, e := newHandlerFixture(t)

	issued, _ := f.svc.Issue(context.Background(), f.patID)

	c, rec := patientContext(e, http.MethodDelete, "/api/v1/capability/"+issued.ID.String(), f)
	c.SetParamNames("id")
	c.SetParamValues(issued.ID.String())
	if err := h.Revoke(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if f.svc.Validate(context.Background(), issued.Token) {
		t.Error("revoked token must not validate")
	}

	// Revoking an unknown id is a 404.
	c, _ = patientContext(e, http.MethodDelete, "/api/v1/capability/unknown", f)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	err := h.Revoke(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_Resolve(t *testing.T) {
	h, f, e := newHandlerFixture(t)
	issued, _ := f.svc.Issue(context.Background(), f.patID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/capability/resolve?token="+url.QueryEscape(issued.Token), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Resolve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var sum subject.Summary
	json.Unmarshal(rec.Body.Bytes(), &sum)
	if sum.ID != f.patID {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestHandler_Resolve_Errors(t *testing.T) {
	h, f, e := newHandlerFixture(t)

	expired, _ := f.svc.Issue(context.Background(), f.patID)
	f.advance(testTTL + time.Second)
	fresh, _ := f.svc.Issue(context.Background(), f.patID)
	f.svc.Invalidate(context.Background(), f.patID)

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{"missing", "", http.StatusBadRequest},
		{"garbage", "not-a-jwt", http.StatusBadRequest},
		{"expired", expired.Token, http.StatusGone},
		{"revoked", fresh.Token, http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/capability/resolve?token="+url.QueryEscape(tt.token), nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.Resolve(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != tt.wantCode {
				t.Errorf("expected %d, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestHandler_Validate(t *testing.T) {
	h, f, e := newHandlerFixture(t)
	issued, _ := f.svc.Issue(context.Background(), f.patID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/capability/validate?token="+url.QueryEscape(issued.Token), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Validate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp["valid"] {
		t.Error("expected valid=true for live token")
	}
}
