package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/middleware"
)

// Session carrier cookies. The access cookie name is shared with the
// authentication middleware.
const (
	AccessCookie  = middleware.AccessTokenCookie
	RefreshCookie = "refresh_token"
	DeviceCookie  = "trusted_device"
)

// refreshCookiePath keeps the refresh token off every request except the
// auth endpoints that consume it.
const refreshCookiePath = "/v1/auth"

// CookieConfig carries the attributes shared by all session cookies.
type CookieConfig struct {
	Domain string
	Secure bool
}

func (cc CookieConfig) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cc.Domain,
		MaxAge:   int(ttl / time.Second),
		Secure:   cc.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (cc CookieConfig) set(c echo.Context, name, value, path string, ttl time.Duration) {
	c.SetCookie(cc.cookie(name, value, path, ttl))
}

// clear expires a cookie immediately. Path and Domain must match the ones
// it was set with or the browser keeps the original.
func (cc CookieConfig) clear(c echo.Context, name, path string) {
	ck := cc.cookie(name, "", path, 0)
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	c.SetCookie(ck)
}

// cookieValue returns the named cookie's value or "".
func cookieValue(c echo.Context, name string) string {
	if ck, err := c.Cookie(name); err == nil {
		return ck.Value
	}
	return ""
}
