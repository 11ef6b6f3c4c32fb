package router

import (
	"github.com/labstack/echo/v4"

	"kitchenchat/internal/adapter/api/handler"
	"kitchenchat/internal/adapter/api/middleware"
	"kitchenchat/internal/infrastructure/ratelimit"
)

func SetupUploadRouter(e *echo.Echo, uploadHandler *handler.UploadHandler, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	e.POST("/v1/uploads", uploadHandler.UploadFile,
		authMiddleware.Authenticate,
		middleware.RateLimit(limiter, middleware.ActionUpload))
}
