package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// GrantedSubjectKey is the echo context key under which the gate stores the
// subject id of the grant that admitted the request.
const GrantedSubjectKey = "granted_subject_id"

// GrantChecker is the single predicate the gate depends on. It is
// re-evaluated on every protected call; grants are revocable only by time
// and must never outlive their window, so the result is never cached across
// requests.
type GrantChecker interface {
	IsGranted(ctx context.Context, requesterID, subjectID uuid.UUID) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
}

// ContactResolver maps a contact address (email or phone) to a subject id.
// found is false when no subject carries that address.
type ContactResolver interface {
	ResolveContact(ctx context.Context, contact string) (id uuid.UUID, found bool, err error)
}

// SubjectExtractor resolves the target subject id from a request. ok is
// false when the request does not carry one at that location.
type SubjectExtractor func(c echo.Context) (uuid.UUID, bool)

// SubjectFromPath extracts the subject id from a named path parameter.
func SubjectFromPath(param string) SubjectExtractor {
	return func(c echo.Context) (uuid.UUID, bool) {
		id, err := uuid.Parse(c.Param(param))
		return id, err == nil
	}
}

// SubjectFromQuery extracts the subject id from a query parameter.
func SubjectFromQuery(name string) SubjectExtractor {
	return func(c echo.Context) (uuid.UUID, bool) {
		id, err := uuid.Parse(c.QueryParam(name))
		return id, err == nil
	}
}

// SubjectFromBody extracts the subject id from a top-level JSON body field.
// The body is restored so downstream binding still works.
func SubjectFromBody(field string) SubjectExtractor {
	return func(c echo.Context) (uuid.UUID, bool) {
		req := c.Request()
		if req.Body == nil {
			return uuid.Nil, false
		}
		raw, err := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil || len(raw) == 0 {
			return uuid.Nil, false
		}

		var body map[string]json.RawMessage
		if err := json.Unmarshal(raw, &body); err != nil {
			return uuid.Nil, false
		}
		var val string
		if err := json.Unmarshal(body[field], &val); err != nil {
			return uuid.Nil, false
		}
		id, err := uuid.Parse(val)
		return id, err == nil
	}
}

// GateConfig declares, per route group, which caller roles are gated and
// where the target subject id is found. Declaring extractors explicitly
// keeps a new route from silently picking up subject discovery by
// convention.
type GateConfig struct {
	// RequesterRoles are the privileged roles whose access is consent-gated.
	// Callers with any other role pass through: subjects always reach their
	// own data and public endpoints are not this gate's concern.
	RequesterRoles []string

	// Extractors are tried in order until one resolves a subject id. If none
	// resolve, the request is allowed through: it is not subject-scoped.
	// This fail-open default is deliberate; see DESIGN.md.
	Extractors []SubjectExtractor

	// Logger receives sweep-failure warnings.
	Logger zerolog.Logger
}

// RequireGrant returns middleware enforcing that a privileged caller holds a
// currently valid consent grant for the subject a request targets.
func RequireGrant(checker GrantChecker, cfg GateConfig) echo.MiddlewareFunc {
	gated := make(map[string]bool, len(cfg.RequesterRoles))
	for _, r := range cfg.RequesterRoles {
		gated[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			role := RoleFromContext(ctx)
			if !gated[role] {
				return next(c)
			}

			subjectID, ok := resolveSubject(c, cfg.Extractors)
			if !ok {
				return next(c)
			}

			return checkGrant(c, next, checker, subjectID, cfg.Logger)
		}
	}
}

// RequireGrantByContact is the indirect variant: the route addresses the
// subject by a contact address rather than an id, so the address is resolved
// first and then the same grant check applies. An unknown address is a
// distinct failure from a missing grant.
func RequireGrantByContact(checker GrantChecker, resolver ContactResolver, contactParam string, logger zerolog.Logger, requesterRoles ...string) echo.MiddlewareFunc {
	gated := make(map[string]bool, len(requesterRoles))
	for _, r := range requesterRoles {
		gated[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			role := RoleFromContext(ctx)
			if !gated[role] {
				return next(c)
			}

			contact := c.Param(contactParam)
			if contact == "" {
				contact = c.QueryParam(contactParam)
			}
			if contact == "" {
				return next(c)
			}

			subjectID, found, err := resolver.ResolveContact(ctx, contact)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "contact lookup failed")
			}
			if !found {
				return echo.NewHTTPError(http.StatusNotFound, "subject not found for contact")
			}

			return checkGrant(c, next, checker, subjectID, logger)
		}
	}
}

func resolveSubject(c echo.Context, extractors []SubjectExtractor) (uuid.UUID, bool) {
	for _, extract := range extractors {
		if id, ok := extract(c); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func checkGrant(c echo.Context, next echo.HandlerFunc, checker GrantChecker, subjectID uuid.UUID, logger zerolog.Logger) error {
	ctx := c.Request().Context()
	callerID := UserIDFromContext(ctx)

	// Self-access never requires a grant, whatever the caller's role.
	if callerID == subjectID {
		return next(c)
	}

	// Opportunistic sweep so a lapsed grant can never be observed as valid.
	if _, err := checker.SweepExpired(ctx); err != nil {
		// Sweep failures are retried on the next tick; the read below still
		// treats expired rows as absent.
		logger.Warn().Err(err).Stringer("subject", subjectID).Msg("grant sweep failed")
	}

	granted, err := checker.IsGranted(ctx, callerID, subjectID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "grant check failed")
	}
	if !granted {
		return echo.NewHTTPError(http.StatusForbidden,
			fmt.Sprintf("no active grant for subject %s", subjectID))
	}

	c.Set(GrantedSubjectKey, subjectID)
	return next(c)
}
