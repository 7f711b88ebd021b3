//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	af "github.com/manualhq/authflow"
)

// AutoMigrate runs database migrations for all authflow tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&BindingModel{},
		&AuthTokenModel{},
	)
}

// =============================================================================
// AccountStore
// =============================================================================

// AccountStore implements af.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) FindByEmail(email string) (*af.Account, error) {
	var model AccountModel
	if err := s.db.First(&model, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) FindByID(id string) (*af.Account, error) {
	var model AccountModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) FindByBinding(provider, providerKey string) (*af.Account, error) {
	var binding BindingModel
	err := s.db.First(&binding, "provider = ? AND provider_key = ?", provider, providerKey).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	return s.FindByID(binding.AccountID)
}

func (s *AccountStore) Create(account *af.Account, password string) error {
	var count int64
	if err := s.db.Model(&AccountModel{}).Where("email = ?", account.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", af.ErrEmailTaken, account.Email)
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	model := &AccountModel{
		ID:             account.ID,
		Email:          account.Email,
		DisplayName:    account.DisplayName,
		EmailConfirmed: account.EmailConfirmed,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		model.PasswordHash = string(hash)
	}
	if err := s.db.Create(model).Error; err != nil {
		// A concurrent Create can slip past the count check and trip the
		// unique index instead.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", af.ErrEmailTaken, account.Email)
		}
		return err
	}
	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *AccountStore) Delete(account *af.Account) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", account.ID).Delete(&BindingModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&AccountModel{}, "id = ?", account.ID).Error
	})
}

func (s *AccountStore) Update(account *af.Account) error {
	return s.db.Model(&AccountModel{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"display_name":    account.DisplayName,
			"email_confirmed": account.EmailConfirmed,
		}).Error
}

func (s *AccountStore) SetEmailConfirmed(account *af.Account, confirmed bool) error {
	return s.db.Model(&AccountModel{}).
		Where("id = ?", account.ID).
		Update("email_confirmed", confirmed).Error
}

func (s *AccountStore) SetPassword(account *af.Account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.db.Model(&AccountModel{}).
		Where("id = ?", account.ID).
		Update("password_hash", string(hash)).Error
}

// CheckPassword verifies a password against the stored hash.
func (s *AccountStore) CheckPassword(account *af.Account, password string) (bool, error) {
	var model AccountModel
	if err := s.db.First(&model, "id = ?", account.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, af.ErrAccountNotFound
		}
		return false, err
	}
	if model.PasswordHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(model.PasswordHash), []byte(password)) == nil, nil
}

func (s *AccountStore) AddBinding(account *af.Account, binding af.Binding) error {
	var existing BindingModel
	err := s.db.First(&existing, "provider = ? AND provider_key = ?", binding.Provider, binding.ProviderKey).Error
	if err == nil {
		if existing.AccountID != account.ID {
			return fmt.Errorf("external login already bound to another account")
		}
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	model := &BindingModel{
		Provider:            binding.Provider,
		ProviderKey:         binding.ProviderKey,
		AccountID:           account.ID,
		ProviderDisplayName: binding.ProviderDisplayName,
	}
	return s.db.Create(model).Error
}

func (s *AccountStore) ListBindings(account *af.Account) ([]af.Binding, error) {
	var models []BindingModel
	if err := s.db.Where("account_id = ?", account.ID).Find(&models).Error; err != nil {
		return nil, err
	}
	bindings := make([]af.Binding, len(models))
	for i, m := range models {
		bindings[i] = m.ToBinding()
	}
	return bindings, nil
}

// =============================================================================
// TokenStore (for email confirmation and password reset)
// =============================================================================

// TokenStore implements af.TokenStore using GORM
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) CreateToken(accountID, email string, tokenType af.TokenType, expiryDuration time.Duration) (*af.AuthToken, error) {
	token, err := af.GenerateSecureToken()
	if err != nil {
		return nil, err
	}

	model := &AuthTokenModel{
		Token:     token,
		Type:      tokenType,
		AccountID: accountID,
		Email:     email,
		ExpiresAt: time.Now().Add(expiryDuration),
	}
	if err := s.db.Create(model).Error; err != nil {
		return nil, err
	}
	return model.ToAuthToken(), nil
}

func (s *TokenStore) GetToken(token string) (*af.AuthToken, error) {
	var model AuthTokenModel
	if err := s.db.First(&model, "token = ?", token).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, af.ErrTokenNotFound
		}
		return nil, err
	}

	authToken := model.ToAuthToken()
	if authToken.IsExpired() {
		_ = s.DeleteToken(token)
		return nil, af.ErrTokenNotFound
	}
	return authToken, nil
}

func (s *TokenStore) DeleteToken(token string) error {
	return s.db.Delete(&AuthTokenModel{}, "token = ?", token).Error
}

func (s *TokenStore) DeleteAccountTokens(accountID string, tokenType af.TokenType) error {
	return s.db.Where("account_id = ? AND type = ?", accountID, tokenType).
		Delete(&AuthTokenModel{}).Error
}

// CleanupExpiredTokens removes tokens past their expiry time.
func (s *TokenStore) CleanupExpiredTokens() error {
	return s.db.Where("expires_at < ?", time.Now()).Delete(&AuthTokenModel{}).Error
}
