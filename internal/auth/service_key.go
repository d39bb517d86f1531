package auth

import (
	"golang.org/x/crypto/bcrypt"

	"matchpass/internal/types"
)

// bcryptCost is the cost factor for service key hashes.
const bcryptCost = 12

// ServiceActorID identifies internal callers in logs and in the Actor.
const ServiceActorID = "internal"

// ServiceKeyVerifier checks the X-Service-Key presented by internal callers
// against a bcrypt hash from configuration.
type ServiceKeyVerifier struct {
	hash []byte
}

func NewServiceKeyVerifier(hash types.SecretString) *ServiceKeyVerifier {
	return &ServiceKeyVerifier{hash: []byte(hash.Unmask())}
}

// VerifyServiceKey returns the service Actor when key matches the configured
// hash.
func (v *ServiceKeyVerifier) VerifyServiceKey(key string) (*types.Actor, error) {
	if key == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "service key is required", nil)
	}
	if len(v.hash) == 0 {
		return nil, types.NewAppError(types.ErrCodeAuthServiceKey, "service key authentication is not configured", nil)
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthServiceKey, "invalid service key", nil)
	}
	return &types.Actor{ID: ServiceActorID, Type: types.ActorTypeService}, nil
}

// HashServiceKey produces the bcrypt hash to put in SERVICE_KEY_HASH.
func HashServiceKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
