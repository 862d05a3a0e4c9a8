package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/sessionguard"
)

// statusOf maps an engine error kind to an HTTP status.
func statusOf(err error) int {
	switch sessionguard.KindOf(err) {
	case sessionguard.KindUnauthorized, sessionguard.KindTokenExpired:
		return http.StatusUnauthorized
	case sessionguard.KindForbidden:
		return http.StatusForbidden
	case sessionguard.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail converts an engine error into the response error. Internal causes
// are logged and never reach the body.
func fail(l *slog.Logger, handler string, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		l.Error(handler+"_failed", "status", status, "error", err)
	} else {
		l.Warn(handler+"_failed", "status", status, "code", sessionguard.ErrorCode(err))
	}
	he := echo.NewHTTPError(status, echo.Map{
		"error":   sessionguard.ErrorCode(err),
		"message": sessionguard.PublicMessage(err),
	})
	return he.SetInternal(err)
}

func badRequest(l *slog.Logger, handler string, err error) error {
	l.Warn(handler+"_error", "status", http.StatusBadRequest, "error", err)
	return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
		"error":   "invalid_body",
		"message": "invalid body",
	})
}
