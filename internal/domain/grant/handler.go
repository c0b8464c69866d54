package grant

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

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sessions/request", h.CreateRequest, auth.RequireRole(auth.RoleClinician))
	g.POST("/sessions/:id/respond", h.Respond, auth.RequireRole(auth.RolePatient))
	g.GET("/sessions/:id/status", h.Status)
	g.GET("/sessions/mine", h.ListMine, auth.RequireRole(auth.RoleClinician))
}

type createRequestBody struct {
	SubjectID uuid.UUID `json:"subject_id"`
	Label     string    `json:"label"`
	Anonymous bool      `json:"anonymous"`
}

// CreateRequest opens a pending consent session towards the subject. The
// requester may ask to appear anonymously, in which case no identity is
// attached to the session.
func (h *Handler) CreateRequest(c echo.Context) error {
	var body createRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.SubjectID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "subject_id is required")
	}

	var requesterID *uuid.UUID
	if !body.Anonymous {
		callerID := auth.UserIDFromContext(c.Request().Context())
		if callerID == uuid.Nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
		}
		requesterID = &callerID
	}

	sess, err := h.svc.CreateRequest(c.Request().Context(), requesterID, body.SubjectID, body.Label)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

type respondBody struct {
	Decision string `json:"decision"`
}

// Respond records the subject's accept or decline decision.
func (h *Handler) Respond(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	callerID := auth.UserIDFromContext(c.Request().Context())
	if callerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	var body respondBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, err := h.svc.Respond(c.Request().Context(), sessionID, callerID, body.Decision)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Status returns the session view for either party.
func (h *Handler) Status(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	callerID := auth.UserIDFromContext(c.Request().Context())
	if callerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	view, err := h.svc.Status(c.Request().Context(), sessionID, callerID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// ListMine returns the caller's currently usable grants.
func (h *Handler) ListMine(c echo.Context) error {
	callerID := auth.UserIDFromContext(c.Request().Context())
	if callerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	grants, err := h.svc.ListAccepted(c.Request().Context(), callerID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"grants": grants,
		"total":  len(grants),
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrSubjectNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrSubjectNotFound.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrDuplicateActiveGrant):
		return echo.NewHTTPError(http.StatusConflict, ErrDuplicateActiveGrant.Error())
	case errors.Is(err, ErrAlreadyResolved):
		return echo.NewHTTPError(http.StatusConflict, ErrAlreadyResolved.Error())
	case errors.Is(err, ErrExpired):
		return echo.NewHTTPError(http.StatusGone, ErrExpired.Error())
	case errors.Is(err, ErrInvalidDecision):
		return echo.NewHTTPError(http.StatusBadRequest, ErrInvalidDecision.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
