package repository

import (
	"time"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
)

const (
	conversationsCollection = "conversations"
	messagesSubcollection   = "messages"
)

func messagesCollection(conversationID string) string {
	return conversationsCollection + "/" + conversationID + "/" + messagesSubcollection
}

// Document field names as stored.
const (
	fieldApplicationID      = "applicationId"
	fieldChefID             = "chefId"
	fieldManagerID          = "managerId"
	fieldLocationID         = "locationId"
	fieldCreatedAt          = "createdAt"
	fieldLastMessageAt      = "lastMessageAt"
	fieldUnreadChefCount    = "unreadChefCount"
	fieldUnreadManagerCount = "unreadManagerCount"

	fieldSenderID   = "senderId"
	fieldSenderRole = "senderRole"
	fieldContent    = "content"
	fieldType       = "type"
	fieldFileURL    = "fileUrl"
	fieldFileName   = "fileName"
	fieldReadAt     = "readAt"
)

// intField reads an integer regardless of how the backend decoded it.
func intField(f repository.Fields, key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func stringField(f repository.Fields, key string) string {
	s, _ := f[key].(string)
	return s
}

func timeField(f repository.Fields, key string) time.Time {
	t, _ := f[key].(time.Time)
	return t
}

func optionalTimeField(f repository.Fields, key string) *time.Time {
	t, ok := f[key].(time.Time)
	if !ok || t.IsZero() {
		return nil
	}
	return &t
}

func unreadField(role entity.Role) string {
	switch role {
	case entity.RoleChef:
		return fieldUnreadChefCount
	case entity.RoleManager:
		return fieldUnreadManagerCount
	}
	return ""
}
