package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"kitchenchat/internal/infrastructure/ratelimit"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
	"kitchenchat/pkg/response"
)

// Rate-limited actions.
const (
	ActionSendMessage = "send_message"
	ActionUpload      = "upload"
)

// RateLimit throttles action per authenticated user. It must run after
// Authenticate; unauthenticated requests fall back to the client IP.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if userID, ok := c.Get(ContextUserID).(int64); ok && userID != 0 {
				key = strconv.FormatInt(userID, 10)
			}

			allowed, retryAfter := limiter.Allow(key, action)
			if !allowed {
				logger.Warn("RATE LIMIT: %s blocked for %s (retry in %v)", action, key, retryAfter)
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded, slow down"))
			}

			return next(c)
		}
	}
}
