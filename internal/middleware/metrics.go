package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/obs"
)

// Metrics records request count, latency and in-flight requests labelled
// by the route template, so ids in paths do not explode cardinality.
func Metrics(m *obs.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			done := m.RequestStarted()
			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = apperr.HTTPStatus(err)
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			done(c.Request().Method, path, status)
			return err
		}
	}
}
