package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

// Logger writes one structured line per request. Lifecycle failures are
// logged with their error kind; only internal errors are logged at error level.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				// Let echo write the response so the logged status is the real one.
				c.Error(err)
			}

			evt := logger.Info()
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok && he.Code < 500 {
					evt = logger.Warn().Err(err)
				} else {
					evt = logger.Error().Err(err)
				}
			}
			if body, ok := errBody(err); ok {
				evt = evt.Str("error_kind", string(body.Error))
			}

			rid, _ := c.Get("request_id").(string)
			actorID, _ := c.Get("actor_id").(string)
			evt.
				Str("request_id", rid).
				Str("actor_id", actorID).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}

func errBody(err error) (apperr.Body, bool) {
	he, ok := err.(*echo.HTTPError)
	if !ok {
		return apperr.Body{}, false
	}
	body, ok := he.Message.(apperr.Body)
	return body, ok
}
