package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/service"
	"github.com/iliyamo/campaign-session/internal/utils"
)

// accessToken reads the access token from the cookie, falling back to an
// "Authorization: Bearer" header for non-browser clients.
func accessToken(c echo.Context) string {
	if ck, err := c.Cookie(AccessTokenCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Authenticate verifies the access token, if any, and attaches its
// principal. It never rejects a request by itself: a missing or invalid
// token just leaves the request anonymous so the guards and handlers
// decide. Invalid tokens are audited. A missing signing secret is a
// server error.
func Authenticate(signer *utils.Signer, audit *service.Auditor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := accessToken(c)
			if raw == "" {
				return next(c)
			}
			claims, err := signer.ParseAccess(raw)
			if err != nil {
				if errors.Is(err, apperr.ErrConfiguration) {
					return err
				}
				audit.Record(c.Request().Context(), model.SecurityEvent{
					Action:     model.ActionAccessRejected,
					Severity:   model.SeverityInfo,
					EntityType: model.EntityUser,
					Metadata:   map[string]any{"route": c.Path(), "error": err.Error()},
				})
				return next(c)
			}
			p := claims.Principal()
			setPrincipal(c, &p)
			return next(c)
		}
	}
}
