package middleware

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/guard"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/service"
)

// ScopedHandler is a handler that receives the guard output explicitly.
type ScopedHandler func(c echo.Context, rc guard.RequestContext) error

// Guarded runs the default guard chain for meta and hands the resulting
// context to h. Guard failures are returned as errors for the HTTP error
// handler; authorization failures are also audited.
func Guarded(meta guard.RouteMeta, audit *service.Auditor, h ScopedHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		rc, err := runGuards(c, meta, audit)
		if err != nil {
			return err
		}
		return h(c, rc)
	}
}

const scopeKey = "guard_scope"

// Guard is the middleware form of Guarded, for routes where other
// middleware (the read cache) must not run before the guards. The guard
// output is stored on the context for a handler wrapped with Scoped.
func Guard(meta guard.RouteMeta, audit *service.Auditor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc, err := runGuards(c, meta, audit)
			if err != nil {
				return err
			}
			c.Set(scopeKey, rc)
			return next(c)
		}
	}
}

// Scoped adapts h to a route already protected by Guard. A route without
// Guard fails with ErrConfiguration instead of running unguarded.
func Scoped(h ScopedHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		rc, ok := c.Get(scopeKey).(guard.RequestContext)
		if !ok {
			return fmt.Errorf("%w: route %s has no guard", apperr.ErrConfiguration, c.Path())
		}
		return h(c, rc)
	}
}

func runGuards(c echo.Context, meta guard.RouteMeta, audit *service.Auditor) (guard.RequestContext, error) {
	p := PrincipalFrom(c)
	rc, err := guard.Run(meta, guard.RequestContext{Principal: p}, guard.Default...)
	if err != nil && p != nil && errors.Is(err, apperr.ErrAuthorization) {
		action := model.ActionAccessRejected
		if p.CandidateID == "" {
			action = model.ActionTenantMissing
		}
		audit.Record(c.Request().Context(), model.SecurityEvent{
			ActorUserID: p.ID,
			Action:      action,
			Severity:    model.SeverityWarning,
			EntityType:  model.EntityUser,
			EntityID:    p.ID,
			CandidateID: p.CandidateID,
			Metadata:    map[string]any{"route": c.Path(), "role": string(p.Role), "reason": err.Error()},
		})
	}
	return rc, err
}
