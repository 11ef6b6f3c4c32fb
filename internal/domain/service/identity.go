package service

import (
	"context"

	"kitchenchat/internal/domain/entity"
)

// Identity is the authenticated caller. Credential returns the caller's
// bearer token; forceRefresh re-validates it against the identity provider
// instead of trusting the cached verification.
type Identity interface {
	UserID() int64
	Role() entity.Role
	Credential(ctx context.Context, forceRefresh bool) (string, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id != nil
}
