package subject

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	repo := newMockRepo()
	h := NewHandler(NewService(repo))
	return h, repo, echo.New()
}

func TestHandler_Create(t *testing.T) {
	h, _, e := newTestHandler()

	body := `{"name":"Ada Lovelace","role":"patient","email":"ada@example.org"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var sub Subject
	json.Unmarshal(rec.Body.Bytes(), &sub)
	if sub.Name != "Ada Lovelace" {
		t.Errorf("expected 'Ada Lovelace', got %s", sub.Name)
	}
}

func TestHandler_GetSummary(t *testing.T) {
	h, repo, e := newTestHandler()

	sub := &Subject{Name: "Ada", Role: "patient", Email: strPtr("ada@example.org")}
	repo.Create(nil, sub)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(sub.ID.String())

	if err := h.GetSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var sum Summary
	json.Unmarshal(rec.Body.Bytes(), &sum)
	if sum.ID != sub.ID || sum.Name != "Ada" {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if strings.Contains(rec.Body.String(), "ada@example.org") {
		t.Error("summary must not leak contact details")
	}
}

func TestHandler_GetSummary_NotFound(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetSummary(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetSummaryByContact(t *testing.T) {
	h, repo, e := newTestHandler()

	sub := &Subject{Name: "Ada", Role: "patient", Email: strPtr("ada@example.org")}
	repo.Create(nil, sub)

	req := httptest.NewRequest(http.MethodGet, "/?contact=ada@example.org", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetSummaryByContact(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetSummaryByContact_Missing(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.GetSummaryByContact(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without contact param, got %v", err)
	}
}
