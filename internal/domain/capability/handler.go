package capability

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

// RegisterRoutes wires the authenticated token-management routes onto g and
// the anonymous resolution routes onto public. Resolution is deliberately
// unauthenticated: the token itself is the credential.
func (h *Handler) RegisterRoutes(g *echo.Group, public *echo.Group) {
	g.POST("/capability/rotate", h.Rotate, auth.RequireRole(auth.RolePatient))
	g.POST("/capability/invalidate", h.Invalidate, auth.RequireRole(auth.RolePatient))
	g.DELETE("/capability/:id", h.Revoke, auth.RequireRole(auth.RolePatient))
	public.GET("/capability/resolve", h.Resolve)
	public.GET("/capability/validate", h.Validate)
}

// Rotate revokes the caller's live token and returns a fresh one.
func (h *Handler) Rotate(c echo.Context) error {
	callerID := auth.UserIDFromContext(c.Request().Context())

	issued, err := h.svc.Rotate(c.Request().Context(), callerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to rotate token")
	}
	return c.JSON(http.StatusCreated, issued)
}

// Invalidate revokes the caller's live tokens without replacement.
func (h *Handler) Invalidate(c echo.Context) error {
	callerID := auth.UserIDFromContext(c.Request().Context())

	n, err := h.svc.Invalidate(c.Request().Context(), callerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to invalidate tokens")
	}
	return c.JSON(http.StatusOK, map[string]int{"revoked": n})
}

// Revoke deactivates a single token by id, leaving any newer token alone.
func (h *Handler) Revoke(c echo.Context) error {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid token id")
	}
	callerID := auth.UserIDFromContext(c.Request().Context())

	switch err := h.svc.Revoke(c.Request().Context(), tokenID, callerID); {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke token")
	}
	return c.NoContent(http.StatusNoContent)
}

// Resolve exchanges a presented token for the subject summary it grants
// access to.
func (h *Handler) Resolve(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	sum, err := h.svc.Resolve(c.Request().Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, ErrExpiredToken):
			return echo.NewHTTPError(http.StatusGone, ErrExpiredToken.Error())
		case errors.Is(err, ErrRevokedToken):
			return echo.NewHTTPError(http.StatusGone, ErrRevokedToken.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, ErrInvalidToken.Error())
		}
	}
	return c.JSON(http.StatusOK, sum)
}

// Validate reports token liveness without resolving the subject.
func (h *Handler) Validate(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	return c.JSON(http.StatusOK, map[string]bool{
		"valid": h.svc.Validate(c.Request().Context(), token),
	})
}
