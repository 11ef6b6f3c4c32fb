package handler

import (
	"github.com/labstack/echo/v4"

	"kitchenchat/internal/usecase"
	"kitchenchat/pkg/response"
)

type ConversationHandler struct {
	conversationUseCase *usecase.ConversationUseCase
}

func NewConversationHandler(conversationUseCase *usecase.ConversationUseCase) *ConversationHandler {
	return &ConversationHandler{
		conversationUseCase: conversationUseCase,
	}
}

type createConversationRequest struct {
	ApplicationID int64 `json:"application_id" validate:"required,min=1"`
	ChefID        int64 `json:"chef_id" validate:"min=0"`
	ManagerID     int64 `json:"manager_id" validate:"min=0"`
	LocationID    int64 `json:"location_id" validate:"min=0"`
}

// CreateConversation returns the application's conversation, creating it
// on first use.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	id, err := h.conversationUseCase.Create(c.Request().Context(), usecase.CreateConversationInput{
		ApplicationID: req.ApplicationID,
		ChefID:        req.ChefID,
		ManagerID:     req.ManagerID,
		LocationID:    req.LocationID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"conversation_id": id})
}

// GetUserConversations lists the caller's conversations, most recent first.
func (h *ConversationHandler) GetUserConversations(c echo.Context) error {
	userID, role, err := caller(c)
	if err != nil {
		return response.Error(c, err)
	}

	convs, err := h.conversationUseCase.ListForUser(c.Request().Context(), userID, role)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, convs)
}

func (h *ConversationHandler) GetConversationByID(c echo.Context) error {
	conv, err := h.conversationUseCase.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

func (h *ConversationHandler) GetConversationByApplication(c echo.Context) error {
	applicationID, err := int64Param(c, "applicationId")
	if err != nil {
		return response.Error(c, err)
	}

	conv, err := h.conversationUseCase.GetByApplication(c.Request().Context(), applicationID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}
