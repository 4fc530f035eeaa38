package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"redirect-proxy-go/internal/cors"
)

// CORS returns an Echo middleware that attaches the fixed CORS header set to
// every response and answers every OPTIONS request with 204 and no body.
//
// Headers are set before the handler runs so error responses written by
// handlers or by Echo's error handler carry them too.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cors.Apply(c.Response().Header())

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
