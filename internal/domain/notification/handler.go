package notification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.GET("/notifications/unread-count", h.UnreadCount)
	g.POST("/notifications/:id/read", h.MarkRead)
	g.POST("/notifications/read-all", h.MarkAllRead)
	g.POST("/notifications/remind", h.Remind, auth.RequireRole(auth.RoleClinician))
}

// List returns the caller's ledger page, newest first.
func (h *Handler) List(c echo.Context) error {
	callerID := auth.UserIDFromContext(c.Request().Context())
	params := pagination.FromContext(c)

	records, total, err := h.svc.List(c.Request().Context(), callerID, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list notifications")
	}
	if records == nil {
		records = []*Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, params.Limit, params.Offset))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	callerID := auth.UserIDFromContext(c.Request().Context())

	count, err := h.svc.UnreadCount(c.Request().Context(), callerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count notifications")
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification id")
	}
	callerID := auth.UserIDFromContext(c.Request().Context())

	switch err := h.svc.MarkRead(c.Request().Context(), id, callerID); {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	callerID := auth.UserIDFromContext(c.Request().Context())

	n, err := h.svc.MarkAllRead(c.Request().Context(), callerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark notifications read")
	}
	return c.JSON(http.StatusOK, map[string]int{"marked": n})
}

type remindBody struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Message     string    `json:"message"`
}

// Remind lets a clinician nudge a patient about a pending request.
func (h *Handler) Remind(c echo.Context) error {
	var body remindBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.RecipientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient_id is required")
	}

	ctx := c.Request().Context()
	callerID := auth.UserIDFromContext(ctx)
	callerRole := auth.RoleFromContext(ctx)

	switch err := h.svc.Remind(ctx, callerID, callerRole, body.RecipientID, body.Message); {
	case errors.Is(err, ErrRecipientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrRecipientNotFound.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to send reminder")
	}
	return c.NoContent(http.StatusAccepted)
}
