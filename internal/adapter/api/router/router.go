package router

import (
	"github.com/labstack/echo/v4"

	"kitchenchat/internal/adapter/api/handler"
	"kitchenchat/internal/adapter/api/middleware"
	"kitchenchat/internal/infrastructure/ratelimit"
)

type Handlers struct {
	Health       *handler.HealthHandler
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Upload       *handler.UploadHandler
	WebSocket    *handler.WebSocketHandler
}

func Setup(
	e *echo.Echo,
	h Handlers,
	authMiddleware *middleware.AuthMiddleware,
	serviceMiddleware *middleware.ServiceKeyMiddleware,
	limiter *ratelimit.RateLimiter,
) {
	SetupHealthRouter(e, h.Health)
	SetupConversationRouter(e, h.Conversation, h.Message, authMiddleware, serviceMiddleware, limiter)
	SetupUploadRouter(e, h.Upload, authMiddleware, limiter)
	SetupWebSocketRouter(e, h.WebSocket, authMiddleware)
}
