package authflow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenType represents different types of store-issued codes.
type TokenType string

const (
	TokenTypeEmailConfirm  TokenType = "email_confirm"
	TokenTypePasswordReset TokenType = "password_reset"
)

// Default token expiry durations
const (
	TokenExpiryEmailConfirm  = 24 * time.Hour
	TokenExpiryPasswordReset = 1 * time.Hour
)

// AuthToken is a server-verifiable secret proving possession of an emailed
// link for an existing account.
type AuthToken struct {
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenStore manages confirmation and reset tokens.
type TokenStore interface {
	CreateToken(accountID, email string, tokenType TokenType, expiry time.Duration) (*AuthToken, error)

	// GetToken retrieves a live token. Returns ErrTokenNotFound for unknown
	// or expired tokens.
	GetToken(token string) (*AuthToken, error)

	// DeleteToken removes a token. Deleting an absent token is not an error.
	DeleteToken(token string) error

	// DeleteAccountTokens removes all tokens of one type for an account.
	DeleteAccountTokens(accountID string, tokenType TokenType) error
}

// GenerateSecureToken generates a cryptographically secure random token.
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsExpired checks if a token has expired.
func (t *AuthToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid checks if a token is live and matches the expected type.
func (t *AuthToken) IsValid(expectedType TokenType) bool {
	return t.Type == expectedType && !t.IsExpired()
}
