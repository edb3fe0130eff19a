package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/service"
)

// RequestMeta copies the client IP, user agent and request id into the
// request context so security events recorded downstream carry them. It
// must run after echo's RequestID middleware.
func RequestMeta() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = req.Header.Get(echo.HeaderXRequestID)
			}
			ctx := service.WithRequestMeta(req.Context(), service.RequestMeta{
				IP:        c.RealIP(),
				UserAgent: req.UserAgent(),
				RequestID: rid,
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
