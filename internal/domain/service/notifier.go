package service

import (
	"context"

	"kitchenchat/internal/domain/entity"
)

// Notification tells a recipient about a new chat message.
type Notification struct {
	RecipientRole  entity.Role
	RecipientID    int64
	LocationID     int64
	SenderLabel    string
	Preview        string
	ConversationID string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
