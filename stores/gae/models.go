//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	af "github.com/manualhq/authflow"
)

// AccountEntity is the Datastore entity for accounts. Key is the account ID.
type AccountEntity struct {
	Key            *datastore.Key `datastore:"__key__"`
	Email          string         `datastore:"email"`
	DisplayName    string         `datastore:"display_name,noindex"`
	EmailConfirmed bool           `datastore:"email_confirmed"`
	PasswordHash   string         `datastore:"password_hash,noindex"`
	CreatedAt      time.Time      `datastore:"created_at"`
	UpdatedAt      time.Time      `datastore:"updated_at"`
	Version        int            `datastore:"version"`
}

func (e *AccountEntity) ToAccount() *af.Account {
	return &af.Account{
		ID:             e.Key.Name,
		Email:          e.Email,
		DisplayName:    e.DisplayName,
		EmailConfirmed: e.EmailConfirmed,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// BindingEntity is the Datastore entity for external login bindings
// Key format: Provider + ":" + ProviderKey
type BindingEntity struct {
	Key                 *datastore.Key `datastore:"__key__"`
	Provider            string         `datastore:"provider"`
	ProviderKey         string         `datastore:"provider_key"`
	AccountID           string         `datastore:"account_id"`
	ProviderDisplayName string         `datastore:"provider_display_name,noindex"`
	CreatedAt           time.Time      `datastore:"created_at"`
}

func (e *BindingEntity) ToBinding() af.Binding {
	return af.Binding{
		Provider:            e.Provider,
		ProviderKey:         e.ProviderKey,
		ProviderDisplayName: e.ProviderDisplayName,
		CreatedAt:           e.CreatedAt,
	}
}

// EmailEntity is the Datastore entity for email -> account ID mapping
// Key is the email (lowercased for case-insensitive lookup)
type EmailEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Email     string         `datastore:"email"` // Original case-preserved email
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// AuthTokenEntity is the Datastore entity for confirmation/reset tokens
type AuthTokenEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Type      af.TokenType   `datastore:"type"`
	AccountID string         `datastore:"account_id"`
	Email     string         `datastore:"email"`
	CreatedAt time.Time      `datastore:"created_at"`
	ExpiresAt time.Time      `datastore:"expires_at"`
}

func (e *AuthTokenEntity) ToAuthToken() *af.AuthToken {
	return &af.AuthToken{
		Token:     e.Key.Name,
		Type:      e.Type,
		AccountID: e.AccountID,
		Email:     e.Email,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
	}
}
