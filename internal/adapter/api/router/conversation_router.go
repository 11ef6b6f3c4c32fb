package router

import (
	"github.com/labstack/echo/v4"

	"kitchenchat/internal/adapter/api/handler"
	"kitchenchat/internal/adapter/api/middleware"
	"kitchenchat/internal/infrastructure/ratelimit"
)

// SetupConversationRouter sets up conversation and message routes
func SetupConversationRouter(
	e *echo.Echo,
	conversationHandler *handler.ConversationHandler,
	messageHandler *handler.MessageHandler,
	authMiddleware *middleware.AuthMiddleware,
	serviceMiddleware *middleware.ServiceKeyMiddleware,
	limiter *ratelimit.RateLimiter,
) {
	sendLimit := middleware.RateLimit(limiter, middleware.ActionSendMessage)

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)

	conversations.POST("", conversationHandler.CreateConversation)     // POST /v1/conversations
	conversations.GET("", conversationHandler.GetUserConversations)    // GET /v1/conversations
	conversations.GET("/:id", conversationHandler.GetConversationByID) // GET /v1/conversations/:id

	conversations.POST("/:id/messages", messageHandler.SendMessage, sendLimit) // POST /v1/conversations/:id/messages
	conversations.GET("/:id/messages", messageHandler.GetMessages)             // GET /v1/conversations/:id/messages?limit=
	conversations.PUT("/:id/read", messageHandler.MarkAsRead)                  // PUT /v1/conversations/:id/read

	applications := e.Group("/v1/applications")
	applications.Use(authMiddleware.Authenticate)
	applications.GET("/:applicationId/conversation", conversationHandler.GetConversationByApplication)

	// backend-only, e.g. booking status changes
	internal := e.Group("/v1/internal")
	internal.Use(serviceMiddleware.ServiceOnly)
	internal.POST("/conversations/:id/system-messages", messageHandler.SendSystemMessage)
}
