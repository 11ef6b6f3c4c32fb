package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"kitchenchat/internal/domain/service"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
	"kitchenchat/pkg/response"
)

// Context keys set on every authenticated request.
const (
	ContextUserID = "uid"
	ContextRole   = "role"
)

type Authenticator interface {
	Authenticate(ctx context.Context, idToken string) (service.Identity, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
}

func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
	}
}

// Authenticate verifies the bearer token and places the caller identity in
// the request context. Browsers cannot set headers on a WebSocket handshake,
// so a token query parameter is accepted as well.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		idToken, err := bearerToken(c)
		if err != nil {
			return response.Error(c, err)
		}

		ctx := c.Request().Context()
		identity, err := m.authenticator.Authenticate(ctx, idToken)
		if err != nil {
			logger.Warn("Authenticate: rejected token from %s: %v", c.RealIP(), err)
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}

		c.SetRequest(c.Request().WithContext(service.WithIdentity(ctx, identity)))
		c.Set(ContextUserID, identity.UserID())
		c.Set(ContextRole, identity.Role())

		return next(c)
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", errors.Unauthorized("Authorization header is required", nil)
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.Unauthorized("Invalid authorization format", nil)
	}
	return parts[1], nil
}
