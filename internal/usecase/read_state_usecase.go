package usecase

import (
	"context"

	"go.uber.org/multierr"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
	"kitchenchat/internal/infrastructure/metrics"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
)

type ReadStateUseCase struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	metrics          *metrics.Metrics
}

func NewReadStateUseCase(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	m *metrics.Metrics,
) *ReadStateUseCase {
	return &ReadStateUseCase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		metrics:          m,
	}
}

// MarkRead stamps readAt on every unread message authored by the other
// party, then resets role's unread counter to zero. The caller must be the
// given user and a party of the conversation. The counter is reset
// even when some stamps fail; the next call picks up what is left.
func (uc *ReadStateUseCase) MarkRead(ctx context.Context, conversationID string, userID int64, role entity.Role) error {
	if conversationID == "" {
		return errors.Validation("conversationId is required")
	}
	if userID == 0 {
		return errors.Validation("userId is required")
	}
	if !role.IsParty() {
		return errors.Validation("role must be chef or manager")
	}
	id, err := refreshedIdentity(ctx)
	if err != nil {
		return err
	}
	if err := actingAs(id, userID, role); err != nil {
		return err
	}

	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := authorizeParty(conv, id); err != nil {
		return err
	}

	// full scan, a window could miss older unread messages
	messages, err := uc.messageRepo.ListAll(ctx, conversationID)
	if err != nil {
		logger.Error("MarkRead Error: listing messages of %s: %v", conversationID, err)
		return err
	}

	author := role.Counterpart()
	var batchErr error
	marked := 0
	for _, m := range messages {
		if m.SenderRole != author || m.IsRead() {
			continue
		}
		if err := uc.messageRepo.MarkRead(ctx, conversationID, m.ID); err != nil {
			batchErr = multierr.Append(batchErr, err)
			continue
		}
		marked++
	}
	uc.metrics.MarkedRead(marked)

	if err := uc.conversationRepo.Update(ctx, conversationID, entity.ConversationUpdate{ResetUnread: role}); err != nil {
		batchErr = multierr.Append(batchErr, err)
	}

	if batchErr != nil {
		logger.Error("MarkRead Error: conversation %s for %s %d: %v", conversationID, role, userID, batchErr)
	}
	return batchErr
}
