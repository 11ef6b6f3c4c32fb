package repository

import (
	"context"

	"kitchenchat/internal/domain/entity"
)

type ConversationRepository interface {
	// Create inserts conv unless a conversation for the same application
	// exists. It returns the stored conversation and whether it was created.
	Create(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	GetByApplicationID(ctx context.Context, applicationID int64) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, role entity.Role, userID int64) ([]*entity.Conversation, error)
	Update(ctx context.Context, id string, update entity.ConversationUpdate) error
}

type MessageRepository interface {
	Create(ctx context.Context, conversationID string, message *entity.Message) (string, error)
	// ListRecent returns up to limit newest messages, oldest first.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error)
	ListAll(ctx context.Context, conversationID string) ([]*entity.Message, error)
	MarkRead(ctx context.Context, conversationID, messageID string) error
	SubscribeRecent(ctx context.Context, conversationID string, limit int, onMessages func([]*entity.Message), onError func(error)) (Unsubscribe, error)
}
