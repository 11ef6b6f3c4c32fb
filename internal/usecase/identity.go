package usecase

import (
	"context"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/service"
	"kitchenchat/pkg/errors"
)

// refreshedIdentity returns the caller after forcing a credential refresh.
// Every write and the conversation listing go through it.
func refreshedIdentity(ctx context.Context) (service.Identity, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := id.Credential(ctx, true); err != nil {
		return nil, errors.Unauthorized("Credential refresh failed", err)
	}
	return id, nil
}

// callerIdentity returns the caller without touching the credential.
func callerIdentity(ctx context.Context) (service.Identity, error) {
	id, ok := service.IdentityFromContext(ctx)
	if !ok {
		return nil, errors.Unauthorized("Authentication required", nil)
	}
	return id, nil
}

// actingAs rejects a caller claiming another user's id or role.
func actingAs(id service.Identity, userID int64, role entity.Role) error {
	if id.UserID() != userID || id.Role() != role {
		return errors.Forbidden("Cannot act on behalf of another user", nil)
	}
	return nil
}

// authorizeParty admits the chef and the manager of conv. A party slot that
// is still 0 admits any caller of that role, who then gets healed into it.
func authorizeParty(conv *entity.Conversation, id service.Identity) error {
	role := id.Role()
	if !role.IsParty() {
		return errors.Forbidden("Only the chef or manager of a conversation may access it", nil)
	}
	if stored := conv.PartyID(role); stored != 0 && stored != id.UserID() {
		return errors.Forbidden("Not a participant of this conversation", nil)
	}
	return nil
}
