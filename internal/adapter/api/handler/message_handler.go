package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/usecase"
	"kitchenchat/pkg/response"
)

type MessageHandler struct {
	messageUseCase      *usecase.MessageUseCase
	readStateUseCase    *usecase.ReadStateUseCase
	conversationUseCase *usecase.ConversationUseCase
}

func NewMessageHandler(
	messageUseCase *usecase.MessageUseCase,
	readStateUseCase *usecase.ReadStateUseCase,
	conversationUseCase *usecase.ConversationUseCase,
) *MessageHandler {
	return &MessageHandler{
		messageUseCase:      messageUseCase,
		readStateUseCase:    readStateUseCase,
		conversationUseCase: conversationUseCase,
	}
}

type sendMessageRequest struct {
	Content     string `json:"content" validate:"max=4000"`
	Type        string `json:"type" validate:"omitempty,oneof=text file"`
	FileURL     string `json:"file_url" validate:"omitempty,url"`
	FileName    string `json:"file_name" validate:"max=255"`
	SenderLabel string `json:"sender_label" validate:"max=100"`
}

type systemMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// SendMessage appends a message from the caller.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	userID, role, err := caller(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	conversationID := c.Param("id")
	id, err := h.messageUseCase.Append(ctx, usecase.AppendInput{
		ConversationID: conversationID,
		SenderID:       userID,
		SenderRole:     role,
		SenderLabel:    req.SenderLabel,
		Content:        req.Content,
		Type:           entity.MessageType(req.Type),
		FileURL:        req.FileURL,
		FileName:       req.FileName,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if role == entity.RoleManager {
		go h.conversationUseCase.EnsureManagerID(context.WithoutCancel(ctx), conversationID, userID)
	}

	return response.Created(c, map[string]string{"message_id": id})
}

// SendSystemMessage appends a system-authored message.
func (h *MessageHandler) SendSystemMessage(c echo.Context) error {
	var req systemMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	id, err := h.messageUseCase.AppendSystem(c.Request().Context(), c.Param("id"), req.Content)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"message_id": id})
}

// GetMessages returns the latest window, oldest first.
func (h *MessageHandler) GetMessages(c echo.Context) error {
	limit, err := limitQuery(c)
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := h.messageUseCase.Read(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

// MarkAsRead marks the counterpart's messages read for the caller.
func (h *MessageHandler) MarkAsRead(c echo.Context) error {
	userID, role, err := caller(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.readStateUseCase.MarkRead(c.Request().Context(), c.Param("id"), userID, role); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}
