package usecase

import (
	"context"
	"sync"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
	"kitchenchat/internal/domain/service"
	"kitchenchat/internal/infrastructure/metrics"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
)

// PreviewLength bounds the message preview sent with notifications.
const PreviewLength = 100

const DefaultWindowLimit = 50

type MessageUseCase struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	notifier         service.Notifier
	metrics          *metrics.Metrics
	windowLimit      int
}

func NewMessageUseCase(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	notifier service.Notifier,
	m *metrics.Metrics,
	windowLimit int,
) *MessageUseCase {
	if windowLimit <= 0 {
		windowLimit = DefaultWindowLimit
	}
	return &MessageUseCase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		notifier:         notifier,
		metrics:          m,
		windowLimit:      windowLimit,
	}
}

type AppendInput struct {
	ConversationID string
	SenderID       int64
	SenderRole     entity.Role
	// SenderLabel is the name shown in the notification. Defaults to the role.
	SenderLabel string
	Content     string
	Type        entity.MessageType
	FileURL     string
	FileName    string
}

func (in *AppendInput) validate() error {
	if in.ConversationID == "" {
		return errors.Validation("conversationId is required")
	}
	if in.SenderID == 0 {
		return errors.Validation("senderId is required")
	}
	if !in.SenderRole.IsParty() {
		return errors.Validation("senderRole must be chef or manager")
	}
	if in.Content == "" && in.FileURL == "" {
		return errors.Validation("message must have content or a file")
	}
	switch in.Type {
	case "":
		in.Type = entity.MessageTypeText
		if in.Content == "" {
			in.Type = entity.MessageTypeFile
		}
	case entity.MessageTypeText, entity.MessageTypeFile:
	default:
		return errors.Validation("type must be text or file")
	}
	return nil
}

// Append writes a message from a chef or manager, bumps the recipient's
// unread counter and notifies the recipient. The caller must be the sender
// and a party of the conversation. Notification failures never fail the
// call.
func (uc *MessageUseCase) Append(ctx context.Context, input AppendInput) (string, error) {
	if err := input.validate(); err != nil {
		return "", err
	}
	id, err := refreshedIdentity(ctx)
	if err != nil {
		return "", err
	}
	if err := actingAs(id, input.SenderID, input.SenderRole); err != nil {
		return "", err
	}

	conv, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	switch {
	case errors.IsNotFound(err):
		conv = nil
	case err != nil:
		logger.Error("Append Error: reading conversation %s: %v", input.ConversationID, err)
		return "", err
	default:
		if err := authorizeParty(conv, id); err != nil {
			logger.Warn("Append: %s %d rejected on conversation %s: %v", input.SenderRole, input.SenderID, conv.ID, err)
			return "", err
		}
	}

	messageID, err := uc.messageRepo.Create(ctx, input.ConversationID, &entity.Message{
		SenderID:   input.SenderID,
		SenderRole: input.SenderRole,
		Content:    input.Content,
		Type:       input.Type,
		FileURL:    input.FileURL,
		FileName:   input.FileName,
	})
	if err != nil {
		logger.Error("Append Error: message write to %s failed: %v", input.ConversationID, err)
		return "", err
	}
	uc.metrics.MessageAppended(string(input.SenderRole))

	if conv == nil {
		logger.Warn("Append: conversation %s missing, message %s left without conversation update", input.ConversationID, messageID)
		return messageID, nil
	}

	recipient := input.SenderRole.Counterpart()
	update := entity.ConversationUpdate{
		TouchLastMessage: true,
		IncrementUnread:  recipient,
	}
	// authorizeParty only lets a mismatch through when the slot is 0
	if conv.PartyID(input.SenderRole) != input.SenderID {
		logger.Warn("Append: healing %s id on conversation %s (%d -> %d)",
			input.SenderRole, conv.ID, conv.PartyID(input.SenderRole), input.SenderID)
		update.SetPartyID(input.SenderRole, input.SenderID)
		uc.metrics.Healed(string(input.SenderRole)+"Id", "append")
	}
	if err := uc.conversationRepo.Update(ctx, conv.ID, update); err != nil {
		logger.Error("Append Error: updating conversation %s: %v", conv.ID, err)
		return "", err
	}

	uc.notify(ctx, conv, recipient, input)
	return messageID, nil
}

func (uc *MessageUseCase) notify(ctx context.Context, conv *entity.Conversation, recipient entity.Role, input AppendInput) {
	if uc.notifier == nil {
		return
	}
	recipientID := conv.PartyID(recipient)
	if recipientID == 0 {
		logger.Warn("Append: no %s on conversation %s, notification skipped", recipient, conv.ID)
		return
	}

	label := input.SenderLabel
	if label == "" {
		label = defaultSenderLabel(input.SenderRole)
	}
	preview := input.Content
	if preview == "" {
		preview = input.FileName
	}

	err := uc.notifier.Notify(ctx, service.Notification{
		RecipientRole:  recipient,
		RecipientID:    recipientID,
		LocationID:     conv.LocationID,
		SenderLabel:    label,
		Preview:        truncate(preview, PreviewLength),
		ConversationID: conv.ID,
	})
	uc.metrics.Notified(err == nil)
	if err != nil {
		logger.Warn("Append: notification to %s %d for conversation %s failed: %v", recipient, recipientID, conv.ID, err)
	}
}

// AppendSystem writes a system-authored message. It only moves
// lastMessageAt; counters and notifications are untouched. It is meant for
// internal callers and performs no party check. A caller identity, when
// present, still gets its credential refreshed.
func (uc *MessageUseCase) AppendSystem(ctx context.Context, conversationID, content string) (string, error) {
	if conversationID == "" {
		return "", errors.Validation("conversationId is required")
	}
	if content == "" {
		return "", errors.Validation("content is required")
	}
	if _, ok := service.IdentityFromContext(ctx); ok {
		if _, err := refreshedIdentity(ctx); err != nil {
			return "", err
		}
	}

	messageID, err := uc.messageRepo.Create(ctx, conversationID, &entity.Message{
		SenderID:   entity.SystemSenderID,
		SenderRole: entity.RoleSystem,
		Content:    content,
		Type:       entity.MessageTypeSystem,
	})
	if err != nil {
		logger.Error("AppendSystem Error: message write to %s failed: %v", conversationID, err)
		return "", err
	}
	uc.metrics.MessageAppended(string(entity.RoleSystem))

	err = uc.conversationRepo.Update(ctx, conversationID, entity.ConversationUpdate{TouchLastMessage: true})
	if err != nil {
		if errors.IsNotFound(err) {
			logger.Warn("AppendSystem: conversation %s missing, message %s left without conversation update", conversationID, messageID)
			return messageID, nil
		}
		logger.Error("AppendSystem Error: updating conversation %s: %v", conversationID, err)
		return "", err
	}
	return messageID, nil
}

// Read returns up to limit most recent messages, oldest first.
func (uc *MessageUseCase) Read(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	if conversationID == "" {
		return nil, errors.Validation("conversationId is required")
	}
	if err := uc.authorize(ctx, conversationID); err != nil {
		return nil, err
	}
	return uc.messageRepo.ListRecent(ctx, conversationID, uc.limit(limit))
}

// authorize checks that the caller is a party of the conversation.
func (uc *MessageUseCase) authorize(ctx context.Context, conversationID string) error {
	id, err := callerIdentity(ctx)
	if err != nil {
		return err
	}
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	return authorizeParty(conv, id)
}

// Subscribe delivers the current window, oldest first, on every change.
// Each delivery replaces the previous one. After onError the subscription
// is dead and the caller must subscribe again.
func (uc *MessageUseCase) Subscribe(
	ctx context.Context,
	conversationID string,
	limit int,
	onMessages func([]*entity.Message),
	onError func(error),
) (repository.Unsubscribe, error) {
	if conversationID == "" {
		return nil, errors.Validation("conversationId is required")
	}
	if onMessages == nil {
		return nil, errors.Validation("onMessages is required")
	}
	if err := uc.authorize(ctx, conversationID); err != nil {
		return nil, err
	}

	var once sync.Once
	closed := func() { once.Do(uc.metrics.SubscriptionClosed) }

	handleError := func(err error) {
		closed()
		if onError != nil {
			onError(err)
			return
		}
		logger.Error("Subscribe: subscription on conversation %s failed: %v", conversationID, err)
	}

	unsubscribe, err := uc.messageRepo.SubscribeRecent(ctx, conversationID, uc.limit(limit), onMessages, handleError)
	if err != nil {
		return nil, err
	}
	uc.metrics.SubscriptionOpened()

	return func() {
		unsubscribe()
		closed()
	}, nil
}

func (uc *MessageUseCase) limit(limit int) int {
	if limit <= 0 {
		return uc.windowLimit
	}
	return limit
}

func defaultSenderLabel(role entity.Role) string {
	if role == entity.RoleManager {
		return "Kitchen manager"
	}
	return "Chef"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
