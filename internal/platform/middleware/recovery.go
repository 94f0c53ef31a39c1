package middleware

import (
	"fmt"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

// Recovery turns a handler panic into the standard internal error body. A
// panic inside a service call has already rolled its transaction back.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)

				rid, _ := c.Get("request_id").(string)
				actor, _ := c.Get("actor_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("actor_id", actor).
					Str("method", c.Request().Method).
					Str("path", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack[:n]).
					Msg("panic recovered")

				err = apperr.ToHTTP(apperr.Internal("panic", fmt.Errorf("%v", r)))
			}()
			return next(c)
		}
	}
}
