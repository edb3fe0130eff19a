package middleware

// identity.go holds the echo context keys shared by the middleware in this
// package and the accessors handlers use to read them.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/model"
)

// AccessTokenCookie carries the access token for browser clients.
const AccessTokenCookie = "access_token"

const principalKey = "principal"

// PrincipalFrom returns the principal attached by Authenticate, or nil.
func PrincipalFrom(c echo.Context) *model.Principal {
	p, _ := c.Get(principalKey).(*model.Principal)
	return p
}

func setPrincipal(c echo.Context, p *model.Principal) { c.Set(principalKey, p) }

// userID returns the authenticated user id, or "anon".
func userID(c echo.Context) string {
	if p := PrincipalFrom(c); p != nil && p.ID != "" {
		return p.ID
	}
	return "anon"
}
