package subject

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers subject routes. gate is the access-gate
// middleware protecting subject-scoped reads; gateByContact is its
// contact-address variant.
func (h *Handler) RegisterRoutes(api *echo.Group, gate, gateByContact echo.MiddlewareFunc) {
	api.POST("/subjects", h.Create, auth.RequireRole(auth.RoleAdmin))
	api.GET("/subjects/:id/summary", h.GetSummary, gate)
	api.GET("/subjects/by-contact/summary", h.GetSummaryByContact, gateByContact)
	api.POST("/subjects/push-token", h.RegisterPushToken)
}

func (h *Handler) Create(c echo.Context) error {
	var sub Subject
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) GetSummary(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sum, err := h.svc.Summary(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "subject not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) GetSummaryByContact(c echo.Context) error {
	contact := c.QueryParam("contact")
	if contact == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contact query parameter is required")
	}
	ctx := c.Request().Context()
	id, found, err := h.svc.ResolveContact(ctx, contact)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "subject not found")
	}
	sum, err := h.svc.Summary(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

type pushTokenRequest struct {
	Token *string `json:"token"`
}

// RegisterPushToken stores the caller's own device address. A null token
// clears the registration.
func (h *Handler) RegisterPushToken(c echo.Context) error {
	var req pushTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	callerID := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RegisterPushToken(c.Request().Context(), callerID, req.Token); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "subject not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
