//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	af "github.com/manualhq/authflow"
)

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID             string    `gorm:"primaryKey;size:64"`
	Email          string    `gorm:"size:255;uniqueIndex"`
	DisplayName    string    `gorm:"size:255"`
	EmailConfirmed bool      `gorm:"default:false"`
	PasswordHash   string    `gorm:"size:128"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *af.Account {
	return &af.Account{
		ID:             m.ID,
		Email:          m.Email,
		DisplayName:    m.DisplayName,
		EmailConfirmed: m.EmailConfirmed,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// BindingModel is the GORM model for external login bindings
type BindingModel struct {
	Provider            string    `gorm:"primaryKey;size:32"`
	ProviderKey         string    `gorm:"primaryKey;size:320"`
	AccountID           string    `gorm:"size:64;index"`
	ProviderDisplayName string    `gorm:"size:255"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

func (BindingModel) TableName() string {
	return "bindings"
}

func (m *BindingModel) ToBinding() af.Binding {
	return af.Binding{
		Provider:            m.Provider,
		ProviderKey:         m.ProviderKey,
		ProviderDisplayName: m.ProviderDisplayName,
		CreatedAt:           m.CreatedAt,
	}
}

// AuthTokenModel is the GORM model for confirmation/reset tokens
type AuthTokenModel struct {
	Token     string       `gorm:"primaryKey;size:128"`
	Type      af.TokenType `gorm:"size:32;index"`
	AccountID string       `gorm:"size:64;index"`
	Email     string       `gorm:"size:255"`
	CreatedAt time.Time    `gorm:"autoCreateTime"`
	ExpiresAt time.Time    `gorm:"index"`
}

func (AuthTokenModel) TableName() string {
	return "auth_tokens"
}

func (m *AuthTokenModel) ToAuthToken() *af.AuthToken {
	return &af.AuthToken{
		Token:     m.Token,
		Type:      m.Type,
		AccountID: m.AccountID,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func AuthTokenToModel(t *af.AuthToken) *AuthTokenModel {
	return &AuthTokenModel{
		Token:     t.Token,
		Type:      t.Type,
		AccountID: t.AccountID,
		Email:     t.Email,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	}
}
