package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// tokenByteLength is the entropy of generated keys: 32 bytes, 64 hex chars.
const tokenByteLength = 32

// adminKeyBcryptCost matches what core.AdminAuthMiddleware verifies against.
const adminKeyBcryptCost = bcrypt.DefaultCost

// GenerateSecureToken returns a hex-encoded random token from crypto/rand.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateAdminKey creates a new admin API key and the bcrypt hash the
// notifier stores as ADMIN_API_KEY_HASH. Only the hash is persisted; the
// plaintext key is shown to the operator once.
func GenerateAdminKey() (key string, hash string, err error) {
	key, err = GenerateSecureToken()
	if err != nil {
		return "", "", fmt.Errorf("generating admin API key: %w", err)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), adminKeyBcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing admin API key: %w", err)
	}
	return key, string(h), nil
}
