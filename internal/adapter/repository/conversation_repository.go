package repository

import (
	"context"
	"fmt"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
	"kitchenchat/pkg/errors"
)

type documentConversationRepository struct {
	store repository.DocumentStore
}

func NewConversationRepository(store repository.DocumentStore) repository.ConversationRepository {
	return &documentConversationRepository{
		store: store,
	}
}

func (r *documentConversationRepository) Create(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	fields := repository.Fields{
		fieldApplicationID:      conv.ApplicationID,
		fieldChefID:             conv.ChefID,
		fieldManagerID:          conv.ManagerID,
		fieldLocationID:         conv.LocationID,
		fieldCreatedAt:          repository.ServerTimestamp,
		fieldLastMessageAt:      repository.ServerTimestamp,
		fieldUnreadChefCount:    int64(0),
		fieldUnreadManagerCount: int64(0),
	}

	id, created, err := r.store.CreateIfAbsent(ctx, conversationsCollection,
		repository.UniqueKey{Field: fieldApplicationID, Value: conv.ApplicationID}, fields)
	if err != nil {
		return nil, false, err
	}

	stored, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *documentConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.store.GetDocument(ctx, conversationsCollection, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, err
	}
	return decodeConversation(doc), nil
}

func (r *documentConversationRepository) GetByApplicationID(ctx context.Context, applicationID int64) (*entity.Conversation, error) {
	docs, err := r.store.QueryDocuments(ctx, repository.Query{
		Collection: conversationsCollection,
		Filters:    []repository.Filter{{Field: fieldApplicationID, Value: applicationID}},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("Conversation for application %d", applicationID), nil)
	}
	return decodeConversation(docs[0]), nil
}

func (r *documentConversationRepository) ListByParticipant(ctx context.Context, role entity.Role, userID int64) ([]*entity.Conversation, error) {
	field := fieldChefID
	if role == entity.RoleManager {
		field = fieldManagerID
	}

	docs, err := r.store.QueryDocuments(ctx, repository.Query{
		Collection: conversationsCollection,
		Filters:    []repository.Filter{{Field: field, Value: userID}},
	})
	if err != nil {
		return nil, err
	}

	convs := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		convs = append(convs, decodeConversation(doc))
	}
	return convs, nil
}

func (r *documentConversationRepository) Update(ctx context.Context, id string, update entity.ConversationUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	fields := repository.Fields{}
	if update.ChefID != nil {
		fields[fieldChefID] = *update.ChefID
	}
	if update.ManagerID != nil {
		fields[fieldManagerID] = *update.ManagerID
	}
	if update.TouchLastMessage {
		fields[fieldLastMessageAt] = repository.ServerTimestamp
	}
	if f := unreadField(update.IncrementUnread); f != "" {
		fields[f] = repository.Increment(1)
	}
	if f := unreadField(update.ResetUnread); f != "" {
		fields[f] = int64(0)
	}

	if err := r.store.UpdateDocument(ctx, conversationsCollection, id, fields); err != nil {
		if errors.IsNotFound(err) {
			return errors.NotFound("Conversation", err)
		}
		return err
	}
	return nil
}

func decodeConversation(doc *repository.Document) *entity.Conversation {
	f := doc.Fields
	return &entity.Conversation{
		ID:                 doc.ID,
		ApplicationID:      intField(f, fieldApplicationID),
		ChefID:             intField(f, fieldChefID),
		ManagerID:          intField(f, fieldManagerID),
		LocationID:         intField(f, fieldLocationID),
		CreatedAt:          timeField(f, fieldCreatedAt),
		LastMessageAt:      timeField(f, fieldLastMessageAt),
		UnreadChefCount:    intField(f, fieldUnreadChefCount),
		UnreadManagerCount: intField(f, fieldUnreadManagerCount),
	}
}
