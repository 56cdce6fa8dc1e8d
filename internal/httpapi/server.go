package httpapi

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// NewServer builds the echo instance with the middleware chain and routes.
// limiter may be nil.
func NewServer(h *Handler, logger zerolog.Logger, limiter *RateLimiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(RequestID())
	e.Use(Logger(logger))
	e.Use(Recovery(logger))
	if limiter != nil {
		e.Use(limiter.Middleware())
	}

	h.Register(e)
	return e
}
