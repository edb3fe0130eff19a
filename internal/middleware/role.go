package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/guard"
	"github.com/iliyamo/campaign-session/internal/model"
)

// RequireRole applies guard.RoleGate to a whole route group. Handlers that
// need the tenant scope should use Guarded instead.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	meta := guard.Roles(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := guard.RoleGate(meta, guard.RequestContext{Principal: PrincipalFrom(c)}); err != nil {
				return err
			}
			return next(c)
		}
	}
}
