package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/campaign-session/internal/apperr"
	"github.com/iliyamo/campaign-session/internal/repository"
)

// ErrorHandler renders handler and middleware errors. Authentication
// failures always produce the same body so callers cannot tell a bad
// password from an unknown user or a replayed token. Anything outside the
// taxonomy is logged and reported as a bare 500.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			e.DefaultHTTPErrorHandler(err, c)
			return
		}

		status, body := errorBody(err)
		if status == http.StatusInternalServerError {
			c.Logger().Errorj(log.JSON{
				"event":  "request_failed",
				"method": c.Request().Method,
				"route":  c.Path(),
				"error":  err.Error(),
			})
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			c.Logger().Error(werr)
		}
	}
}

func errorBody(err error) (int, echo.Map) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrUnknownKind):
		return http.StatusNotFound, echo.Map{"error": "not_found"}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, echo.Map{"error": "bad_request", "message": strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")}
	}

	status := apperr.HTTPStatus(err)
	switch status {
	case http.StatusUnauthorized:
		return status, echo.Map{"error": "unauthorized"}
	case http.StatusForbidden:
		return status, echo.Map{"error": "forbidden", "reason": strings.TrimPrefix(err.Error(), apperr.ErrAuthorization.Error()+": ")}
	case http.StatusLocked:
		return status, echo.Map{"error": "locked", "message": "reference data is write-protected"}
	}
	return http.StatusInternalServerError, echo.Map{"error": "internal"}
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error { return fmt.Errorf("%w: %s", errBadRequest, msg) }
