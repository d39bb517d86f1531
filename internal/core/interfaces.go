package core

import (
	"context"

	"matchpass/internal/types"
)

// Authenticator decouples the HTTP layer from token storage, allowing for
// easy mocking in tests.
type Authenticator interface {
	// ResolveToken returns the account Actor for a bearer token, or an
	// auth_* AppError when the token is unknown, expired or revoked.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// ServiceKeyVerifier authenticates internal callers presenting X-Service-Key.
type ServiceKeyVerifier interface {
	VerifyServiceKey(key string) (*types.Actor, error)
}
