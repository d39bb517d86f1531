package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"matchpass/internal/auth"
)

// tokenByteLength gives 256 bits of entropy, 64 hex characters.
const tokenByteLength = 32

// GenerateSecureToken returns a random hex token from crypto/rand.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashForServiceKeyVerifier derives the SERVICE_KEY_HASH value the API
// compares X-Service-Key against.
func HashForServiceKeyVerifier(key string) (string, error) {
	hash, err := auth.HashServiceKey(key)
	if err != nil {
		return "", fmt.Errorf("hashing service key: %w", err)
	}
	return hash, nil
}
