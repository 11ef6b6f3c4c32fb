package router

import (
	"github.com/labstack/echo/v4"

	"kitchenchat/internal/adapter/api/handler"
	"kitchenchat/internal/adapter/api/middleware"
)

// SetupWebSocketRouter sets up the live subscription endpoint. The token may
// be passed as ?token= since browsers cannot set headers on the handshake.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/ws", wsHandler.HandleWebSocket, authMiddleware.Authenticate)
}
