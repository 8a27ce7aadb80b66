package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderRequestID is the header the request id is read from and echoed on.
const HeaderRequestID = "X-Request-ID"

// RequestID tags every request with an id for log correlation, reusing the
// caller's id when one is supplied.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}

			c.Response().Header().Set(HeaderRequestID, id)
			c.Set("request_id", id)

			return next(c)
		}
	}
}
