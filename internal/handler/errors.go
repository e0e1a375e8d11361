package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler renders errors raised by echo and its middleware as
// {"detail": ...}, the same shape the proxy uses for its own errors.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			detail = http.StatusText(code)
			if he.Message != nil {
				detail = fmt.Sprint(he.Message)
			}
		} else {
			logger.Error("unhandled error", "err", err, "path", c.Request().URL.Path)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, ErrorResponse{Detail: detail})
		}
		if werr != nil {
			logger.Debug("write error response", "err", werr)
		}
	}
}
