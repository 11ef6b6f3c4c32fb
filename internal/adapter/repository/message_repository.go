package repository

import (
	"context"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
)

type documentMessageRepository struct {
	store repository.DocumentStore
}

func NewMessageRepository(store repository.DocumentStore) repository.MessageRepository {
	return &documentMessageRepository{
		store: store,
	}
}

func (r *documentMessageRepository) Create(ctx context.Context, conversationID string, message *entity.Message) (string, error) {
	fields := repository.Fields{
		fieldSenderID:   message.SenderID,
		fieldSenderRole: string(message.SenderRole),
		fieldContent:    message.Content,
		fieldType:       string(message.Type),
		fieldCreatedAt:  repository.ServerTimestamp,
	}
	if message.FileURL != "" {
		fields[fieldFileURL] = message.FileURL
	}
	if message.FileName != "" {
		fields[fieldFileName] = message.FileName
	}

	return r.store.CreateDocument(ctx, messagesCollection(conversationID), fields)
}

func (r *documentMessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	docs, err := r.store.QueryDocuments(ctx, windowQuery(conversationID, limit))
	if err != nil {
		return nil, err
	}
	return chronological(docs), nil
}

func (r *documentMessageRepository) ListAll(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	docs, err := r.store.QueryDocuments(ctx, repository.Query{
		Collection: messagesCollection(conversationID),
		OrderBy:    fieldCreatedAt,
		Direction:  repository.Asc,
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, decodeMessage(doc))
	}
	return messages, nil
}

func (r *documentMessageRepository) MarkRead(ctx context.Context, conversationID, messageID string) error {
	return r.store.UpdateDocument(ctx, messagesCollection(conversationID), messageID, repository.Fields{
		fieldReadAt: repository.ServerTimestamp,
	})
}

func (r *documentMessageRepository) SubscribeRecent(ctx context.Context, conversationID string, limit int, onMessages func([]*entity.Message), onError func(error)) (repository.Unsubscribe, error) {
	return r.store.SubscribeQuery(ctx, windowQuery(conversationID, limit),
		func(docs []*repository.Document) {
			onMessages(chronological(docs))
		}, onError)
}

// windowQuery selects the limit most recent messages, newest first.
func windowQuery(conversationID string, limit int) repository.Query {
	return repository.Query{
		Collection: messagesCollection(conversationID),
		OrderBy:    fieldCreatedAt,
		Direction:  repository.Desc,
		Limit:      limit,
	}
}

// chronological decodes a newest-first window into oldest-first order.
func chronological(docs []*repository.Document) []*entity.Message {
	messages := make([]*entity.Message, len(docs))
	for i, doc := range docs {
		messages[len(docs)-1-i] = decodeMessage(doc)
	}
	return messages
}

func decodeMessage(doc *repository.Document) *entity.Message {
	f := doc.Fields
	return &entity.Message{
		ID:         doc.ID,
		SenderID:   intField(f, fieldSenderID),
		SenderRole: entity.Role(stringField(f, fieldSenderRole)),
		Content:    stringField(f, fieldContent),
		Type:       entity.MessageType(stringField(f, fieldType)),
		FileURL:    stringField(f, fieldFileURL),
		FileName:   stringField(f, fieldFileName),
		CreatedAt:  timeField(f, fieldCreatedAt),
		ReadAt:     optionalTimeField(f, fieldReadAt),
		Pending:    doc.HasPendingWrites,
	}
}
