// Package auth resolves API credentials to an Actor: bearer tokens for
// accounts and a bcrypt-hashed service key for internal callers.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"matchpass/internal/types"
)

// TokenPrefix marks account bearer tokens so a malformed credential is
// rejected before touching the database.
const TokenPrefix = "mpt_"

// TokenRepo is the subset of db.AccountTokenRepository the TokenService needs.
type TokenRepo interface {
	GetActorByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*types.Actor, error)
	CreateToken(ctx context.Context, tokenHash, accountID string, role types.Role, expiresAt *time.Time) error
	RevokeToken(ctx context.Context, tokenHash string, at time.Time) error
}

// TokenService issues and resolves account bearer tokens.
type TokenService struct {
	repo   TokenRepo
	clock  types.Clock
	logger *slog.Logger
}

func NewTokenService(repo TokenRepo, clock types.Clock, logger *slog.Logger) *TokenService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{repo: repo, clock: clock, logger: logger}
}

// HashToken produces a hex-encoded SHA-256 digest of a raw token. The digest
// is what account_tokens stores and indexes.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// GenerateToken returns a new plaintext token: TokenPrefix + 64 hex chars.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

// ResolveToken maps a bearer token to the account Actor it was issued for.
// Unknown, expired and revoked tokens all yield auth_token_invalid.
func (s *TokenService) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if !strings.HasPrefix(token, TokenPrefix) || len(token) != len(TokenPrefix)+64 {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "malformed token", nil)
	}

	actor, err := s.repo.GetActorByTokenHash(ctx, HashToken(token), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token not recognised", nil)
	}
	return actor, nil
}

// IssueToken creates a token for accountID with the given role. A zero ttl
// issues a token that never expires. The plaintext is returned once and never
// stored.
func (s *TokenService) IssueToken(ctx context.Context, accountID string, role types.Role, ttl time.Duration) (string, error) {
	switch role {
	case types.RoleMember, types.RoleProvider, types.RoleVenue:
	default:
		return "", types.NewAppError(types.ErrCodeValidationInvalidBody, fmt.Sprintf("unknown role %q", role), nil)
	}
	if accountID == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "account_id is required", nil)
	}

	token, err := GenerateToken()
	if err != nil {
		return "", err
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := s.clock.Now().Add(ttl)
		expiresAt = &t
	}
	if err := s.repo.CreateToken(ctx, HashToken(token), accountID, role, expiresAt); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "account token issued",
		"account_id", accountID,
		"role", string(role),
		"expires_at", expiresAt,
	)
	return token, nil
}

// RevokeToken invalidates a plaintext token. Unknown tokens are a no-op so
// sign-out can be retried.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "token is required", nil)
	}
	if err := s.repo.RevokeToken(ctx, HashToken(token), s.clock.Now()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "account token revoked")
	return nil
}
