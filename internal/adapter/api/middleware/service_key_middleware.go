package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"

	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
	"kitchenchat/pkg/response"
)

// HeaderServiceKey carries the shared key of trusted backend callers.
const HeaderServiceKey = "X-Service-Key"

type ServiceKeyMiddleware struct {
	key []byte
}

func NewServiceKeyMiddleware(key string) *ServiceKeyMiddleware {
	return &ServiceKeyMiddleware{
		key: []byte(key),
	}
}

// ServiceOnly admits requests carrying the configured service key. With no
// key configured every request is refused.
func (m *ServiceKeyMiddleware) ServiceOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(m.key) == 0 {
			return response.Error(c, errors.Forbidden("Internal endpoints are disabled", nil))
		}

		supplied := c.Request().Header.Get(HeaderServiceKey)
		if supplied == "" {
			return response.Error(c, errors.Unauthorized("Service key is required", nil))
		}
		if subtle.ConstantTimeCompare([]byte(supplied), m.key) != 1 {
			logger.Warn("ServiceOnly: rejected service key from %s", c.RealIP())
			return response.Error(c, errors.Forbidden("Invalid service key", nil))
		}

		return next(c)
	}
}
