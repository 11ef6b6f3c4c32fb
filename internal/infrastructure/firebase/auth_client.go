package firebase

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/auth"

	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/service"
)

// Custom claims set on Firebase accounts linked to a chef or manager record.
const (
	ClaimUserID = "userId"
	ClaimRole   = "role"
)

// TokenVerifier is the subset of *auth.Client the identity provider uses.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthClient struct {
	verifier TokenVerifier
}

func NewAuthClient(verifier TokenVerifier) *AuthClient {
	return &AuthClient{
		verifier: verifier,
	}
}

// Identify verifies idToken and builds the caller identity from its claims.
func (c *AuthClient) Identify(ctx context.Context, idToken string) (*TokenIdentity, error) {
	token, err := c.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	userID, err := claimInt(token.Claims, ClaimUserID)
	if err != nil {
		return nil, err
	}
	role, _ := token.Claims[ClaimRole].(string)

	return &TokenIdentity{
		verifier: c.verifier,
		idToken:  idToken,
		uid:      token.UID,
		userID:   userID,
		role:     entity.Role(role),
	}, nil
}

// Authenticate is Identify behind the service.Identity interface.
func (c *AuthClient) Authenticate(ctx context.Context, idToken string) (service.Identity, error) {
	identity, err := c.Identify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

type TokenIdentity struct {
	verifier TokenVerifier
	idToken  string
	uid      string
	userID   int64
	role     entity.Role
}

var _ service.Identity = (*TokenIdentity)(nil)

func (i *TokenIdentity) UID() string       { return i.uid }
func (i *TokenIdentity) UserID() int64     { return i.userID }
func (i *TokenIdentity) Role() entity.Role { return i.role }

// Credential returns the ID token. With forceRefresh the token is checked
// against the auth backend for expiry and revocation.
func (i *TokenIdentity) Credential(ctx context.Context, forceRefresh bool) (string, error) {
	if forceRefresh {
		if _, err := i.verifier.VerifyIDTokenAndCheckRevoked(ctx, i.idToken); err != nil {
			return "", err
		}
	}
	return i.idToken, nil
}

func claimInt(claims map[string]interface{}, key string) (int64, error) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("claim %s: %w", key, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("claim %s missing", key)
	}
	return 0, fmt.Errorf("claim %s has unexpected type", key)
}
