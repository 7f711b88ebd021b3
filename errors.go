package authflow

import (
	"errors"
	"fmt"
)

// Error codes for validation-shaped failures. These are resolved locally
// into a user-facing status message and never cross into generic error
// pages.
const (
	ErrCodeMissingField         = "missing_field"
	ErrCodeInvalidEmail         = "invalid_email"
	ErrCodeWeakPassword         = "weak_password"
	ErrCodeInvalidDisplayName   = "invalid_display_name"
	ErrCodeMalformedToken       = "malformed_token"
	ErrCodeMissingWorkflowState = "missing_workflow_state"
	ErrCodeMissingEmailClaim    = "missing_email_claim"
	ErrCodeProviderError        = "provider_error"
	ErrCodeAlreadyRegistered    = "already_registered"
	ErrCodeInvalidPayload       = "invalid_confirmation_payload"
	ErrCodeConfirmationFailed   = "confirmation_failed"
	ErrCodeAccountCreation      = "account_creation_failed"
	ErrCodeBindingAddition      = "binding_addition_failed"
	ErrCodeResetFailed          = "reset_failed"
)

// Sentinel errors for infrastructure-shaped failures. These propagate as
// failures of the whole request.
var (
	// ErrAccountNotFound is returned by AccountStore lookups when no record
	// matches.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTokenNotFound is returned by TokenStore lookups for unknown or
	// expired tokens.
	ErrTokenNotFound = errors.New("token not found")

	// ErrEmailTaken is returned by AccountStore.Create when the email is
	// already registered, including races lost against a concurrent Create.
	ErrEmailTaken = errors.New("email already registered")

	// ErrStateUnavailable is returned by a FlowStateStore whose backing
	// storage cannot be reached. The whole request is safe to retry.
	ErrStateUnavailable = errors.New("workflow state store unavailable")
)

// AuthError is a validation-shaped failure with a stable code, a
// user-presentable message and the form field it relates to (may be empty).
type AuthError struct {
	Code    string
	Message string
	Field   string
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError creates an AuthError with the given code, message and field.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// AsAuthError unwraps err into an *AuthError if it is one.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
