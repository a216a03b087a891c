package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joelxhenry/zeen-connect-platform-sub001/internal/engine"
)

// errorResponse is the JSON error envelope every endpoint returns
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// CustomErrorHandler maps engine errors to JSON responses for Echo. Internal
// details never leak to the client; the full error goes to the log instead.
func CustomErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		kind := engine.KindInternal
		message := "internal server error"

		var engErr *engine.Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &engErr):
			code = engErr.HTTPStatus()
			kind = engErr.Kind
			message = engErr.Message
		case errors.As(err, &httpErr):
			code = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok && msg != "" {
				message = msg
			} else {
				message = http.StatusText(code)
			}
			kind = engine.KindValidation
			if code == http.StatusNotFound {
				kind = engine.KindNotFound
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			code = http.StatusNotFound
			kind = engine.KindNotFound
			message = "not found"
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
			)
		} else {
			logger.Warn("request rejected",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}

		if writeErr := c.JSON(code, errorResponse{Error: message, Kind: string(kind)}); writeErr != nil {
			logger.Error("failed to write error response", zap.Error(writeErr))
		}
	}
}
