package authflow

import (
	"fmt"
	"regexp"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Policy defines what the registration and display-name steps require.
type Policy struct {
	// Minimum password length. Defaults to 8.
	MinPasswordLength int

	// Maximum display name length. Defaults to 50.
	MaxDisplayNameLength int
}

// DefaultPolicy returns the default validation policy.
func DefaultPolicy() Policy {
	return Policy{
		MinPasswordLength:    8,
		MaxDisplayNameLength: 50,
	}
}

func (p Policy) minPasswordLength() int {
	if p.MinPasswordLength > 0 {
		return p.MinPasswordLength
	}
	return 8
}

func (p Policy) maxDisplayNameLength() int {
	if p.MaxDisplayNameLength > 0 {
		return p.MaxDisplayNameLength
	}
	return 50
}

// ValidateEmail checks presence and format of an email address.
func (p Policy) ValidateEmail(email string) *AuthError {
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if !emailRegex.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	return nil
}

// ValidatePassword checks presence and strength of a password.
func (p Policy) ValidatePassword(password string) *AuthError {
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(password) < p.minPasswordLength() {
		return NewAuthError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters", p.minPasswordLength()), "password")
	}
	return nil
}

// ValidateDisplayName checks that a display name is non-empty and bounded.
func (p Policy) ValidateDisplayName(displayName string) *AuthError {
	if displayName == "" {
		return NewAuthError(ErrCodeMissingField, "Display name is required", "display_name")
	}
	if len(displayName) > p.maxDisplayNameLength() {
		return NewAuthError(ErrCodeInvalidDisplayName,
			fmt.Sprintf("Display name must be at most %d characters", p.maxDisplayNameLength()), "display_name")
	}
	return nil
}
