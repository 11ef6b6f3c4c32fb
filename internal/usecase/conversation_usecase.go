package usecase

import (
	"context"
	"sort"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/repository"
	"kitchenchat/internal/infrastructure/metrics"
	"kitchenchat/pkg/errors"
	"kitchenchat/pkg/logger"
)

type ConversationUseCase struct {
	conversationRepo repository.ConversationRepository
	metrics          *metrics.Metrics
}

func NewConversationUseCase(conversationRepo repository.ConversationRepository, m *metrics.Metrics) *ConversationUseCase {
	return &ConversationUseCase{
		conversationRepo: conversationRepo,
		metrics:          m,
	}
}

type CreateConversationInput struct {
	ApplicationID int64
	ChefID        int64
	ManagerID     int64
	LocationID    int64
}

// Create returns the conversation of the application, creating it when
// none exists. An existing conversation whose chef or manager differs from a
// supplied non-zero id is healed in place. Only a party of the conversation
// may do so, and the caller's own slot can only be claimed while it is 0.
func (uc *ConversationUseCase) Create(ctx context.Context, input CreateConversationInput) (string, error) {
	if input.ApplicationID == 0 {
		return "", errors.Validation("applicationId is required")
	}
	id, err := refreshedIdentity(ctx)
	if err != nil {
		return "", err
	}

	candidate := &entity.Conversation{
		ApplicationID: input.ApplicationID,
		ChefID:        input.ChefID,
		ManagerID:     input.ManagerID,
		LocationID:    input.LocationID,
	}
	if err := authorizeParty(candidate, id); err != nil {
		logger.Warn("CreateConversation: %s %d rejected for application %d: %v", id.Role(), id.UserID(), input.ApplicationID, err)
		return "", err
	}

	conv, created, err := uc.conversationRepo.Create(ctx, candidate)
	if err != nil {
		logger.Error("CreateConversation Error: application %d: %v", input.ApplicationID, err)
		return "", err
	}
	if created {
		uc.metrics.ConversationCreated()
		logger.Info("CreateConversation: created %s for application %d", conv.ID, input.ApplicationID)
		return conv.ID, nil
	}
	if err := authorizeParty(conv, id); err != nil {
		logger.Warn("CreateConversation: %s %d is not a party of %s: %v", id.Role(), id.UserID(), conv.ID, err)
		return "", err
	}

	var heal entity.ConversationUpdate
	if input.ChefID != 0 && conv.ChefID != input.ChefID {
		heal.SetPartyID(entity.RoleChef, input.ChefID)
		uc.metrics.Healed("chefId", "create")
	}
	if input.ManagerID != 0 && conv.ManagerID != input.ManagerID {
		heal.SetPartyID(entity.RoleManager, input.ManagerID)
		uc.metrics.Healed("managerId", "create")
	}
	if !heal.IsEmpty() {
		logger.Warn("CreateConversation: healing conversation %s (chef %d->%d, manager %d->%d)",
			conv.ID, conv.ChefID, input.ChefID, conv.ManagerID, input.ManagerID)
		if err := uc.conversationRepo.Update(ctx, conv.ID, heal); err != nil {
			logger.Error("CreateConversation Error: heal of %s failed: %v", conv.ID, err)
			return "", err
		}
	}

	return conv.ID, nil
}

// GetByApplication returns one conversation of the application. When the
// store holds duplicates any of them may be returned.
func (uc *ConversationUseCase) GetByApplication(ctx context.Context, applicationID int64) (*entity.Conversation, error) {
	if applicationID == 0 {
		return nil, errors.Validation("applicationId is required")
	}
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := uc.conversationRepo.GetByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeParty(conv, id); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetByID returns the conversation when the caller is one of its parties.
func (uc *ConversationUseCase) GetByID(ctx context.Context, conversationID string) (*entity.Conversation, error) {
	if conversationID == "" {
		return nil, errors.Validation("conversationId is required")
	}
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeParty(conv, id); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListForUser returns the user's conversations, most recently active first,
// with at most one entry per application.
func (uc *ConversationUseCase) ListForUser(ctx context.Context, userID int64, role entity.Role) ([]*entity.Conversation, error) {
	if userID == 0 {
		return nil, errors.Validation("userId is required")
	}
	if !role.IsParty() {
		return nil, errors.Validation("role must be chef or manager")
	}
	id, err := refreshedIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if err := actingAs(id, userID, role); err != nil {
		return nil, err
	}

	convs, err := uc.conversationRepo.ListByParticipant(ctx, role, userID)
	if err != nil {
		logger.Error("ListForUser Error: %s %d: %v", role, userID, err)
		return nil, err
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})

	// Duplicates per application can exist from before creation was
	// transactional. The first seen is the most recently active.
	seen := make(map[int64]struct{}, len(convs))
	out := make([]*entity.Conversation, 0, len(convs))
	for _, conv := range convs {
		if _, dup := seen[conv.ApplicationID]; dup {
			continue
		}
		seen[conv.ApplicationID] = struct{}{}
		out = append(out, conv)
	}
	return out, nil
}

// EnsureManagerID fills a missing managerId with the calling manager.
// Failures are logged and never returned.
func (uc *ConversationUseCase) EnsureManagerID(ctx context.Context, conversationID string, managerID int64) {
	if conversationID == "" || managerID == 0 {
		return
	}
	id, err := refreshedIdentity(ctx)
	if err != nil {
		logger.Warn("EnsureManagerID: skipped for %s: %v", conversationID, err)
		return
	}
	if err := actingAs(id, managerID, entity.RoleManager); err != nil {
		logger.Warn("EnsureManagerID: skipped for %s: %v", conversationID, err)
		return
	}

	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		logger.Warn("EnsureManagerID: could not read conversation %s: %v", conversationID, err)
		return
	}
	if conv.ManagerID == managerID {
		return
	}
	if err := authorizeParty(conv, id); err != nil {
		logger.Warn("EnsureManagerID: manager %d may not claim %s: %v", managerID, conversationID, err)
		return
	}

	var heal entity.ConversationUpdate
	heal.SetPartyID(entity.RoleManager, managerID)
	if err := uc.conversationRepo.Update(ctx, conversationID, heal); err != nil {
		logger.Warn("EnsureManagerID: could not heal conversation %s: %v", conversationID, err)
		return
	}
	uc.metrics.Healed("managerId", "ensure")
	logger.Info("EnsureManagerID: conversation %s managerId %d -> %d", conversationID, conv.ManagerID, managerID)
}
