// Package auth implements bearer token issuance and credential handling for
// the admin console.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenPrefix is the prefix of all issued bearer tokens.
	TokenPrefix = "lodo_"
	// TokenHexLength is the length of the random hex portion of a token.
	TokenHexLength = 64 // 32 bytes = 64 hex chars
	// DefaultTokenTTL is how long an issued token stays valid.
	DefaultTokenTTL = 24 * time.Hour
)

// ErrTokenNotFound is returned when a token is unknown or expired.
var ErrTokenNotFound = errors.New("token not found")

// GenerateToken returns a fresh opaque bearer token.
func GenerateToken() (string, error) {
	raw := make([]byte, TokenHexLength/2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(raw), nil
}

// IsValidTokenFormat checks whether a presented token has the issued shape.
func IsValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	hexPart := strings.TrimPrefix(token, TokenPrefix)
	if len(hexPart) != TokenHexLength {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// HashToken creates the SHA-256 digest under which a token is stored. Raw
// tokens never touch the store.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenStore persists the mapping from token hash to user id with a TTL.
type TokenStore interface {
	Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error
	Lookup(ctx context.Context, tokenHash string) (uuid.UUID, error)
	Revoke(ctx context.Context, tokenHash string) error
}
