package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"clinicq/queue-service/internal/store"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// mapError turns a domain error into status, code and a message safe to show.
func mapError(err error) (int, string, string) {
	var domainErr *store.Error
	message := "internal server error"
	if errors.As(err, &domainErr) {
		message = domainErr.Msg
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", message
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state", message
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", message
	case errors.Is(err, store.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", message
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", message
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", message
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, errorResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func (h *Handler) fail(c echo.Context, err error) error {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", requestID(c)).Str("path", c.Path()).Msg("request failed")
	}
	return writeError(c, status, code, message)
}

// ErrorHandler renders errors raised outside handlers (unknown routes,
// recovered panics) in the same envelope.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, code, message := http.StatusInternalServerError, "internal_error", "internal server error"
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
			code = codeForStatus(status)
			if m, ok := httpErr.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		} else {
			logger.Error().Err(err).Str("request_id", requestID(c)).Msg("unhandled error")
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = writeError(c, status, code, message)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	}
	if status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return "error"
}
