//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/iterator"

	af "github.com/manualhq/authflow"
)

// Kind constants for Datastore entities
const (
	KindAccount   = "Account"
	KindBinding   = "Binding"
	KindEmail     = "Email"
	KindAuthToken = "AuthToken"
)

// ============================================================================
// AccountStore
// ============================================================================

// AccountStore implements af.AccountStore using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context
func (s *AccountStore) WithContext(ctx context.Context) *AccountStore {
	return &AccountStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) bindingKeyName(provider, providerKey string) string {
	return provider + ":" + providerKey
}

func (s *AccountStore) emailKeyName(email string) string {
	return strings.ToLower(email)
}

func (s *AccountStore) getAccount(id string) (*AccountEntity, error) {
	key := s.namespacedKey(KindAccount, id)
	var entity AccountEntity
	if err := s.client.Get(s.ctx, key, &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	return &entity, nil
}

func (s *AccountStore) FindByEmail(email string) (*af.Account, error) {
	key := s.namespacedKey(KindEmail, s.emailKeyName(email))
	var entry EmailEntity
	if err := s.client.Get(s.ctx, key, &entry); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	entity, err := s.getAccount(entry.AccountID)
	if err != nil {
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) FindByID(id string) (*af.Account, error) {
	entity, err := s.getAccount(id)
	if err != nil {
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) FindByBinding(provider, providerKey string) (*af.Account, error) {
	key := s.namespacedKey(KindBinding, s.bindingKeyName(provider, providerKey))
	var binding BindingEntity
	if err := s.client.Get(s.ctx, key, &binding); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	entity, err := s.getAccount(binding.AccountID)
	if err != nil {
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) Create(account *af.Account, password string) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	var passwordHash string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		passwordHash = string(hash)
	}

	now := time.Now()
	accountKey := s.namespacedKey(KindAccount, account.ID)
	emailKey := s.namespacedKey(KindEmail, s.emailKeyName(account.Email))

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var existing EmailEntity
		err := tx.Get(emailKey, &existing)
		if err == nil {
			return fmt.Errorf("%w: %s", af.ErrEmailTaken, account.Email)
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}

		entity := &AccountEntity{
			Key:            accountKey,
			Email:          account.Email,
			DisplayName:    account.DisplayName,
			EmailConfirmed: account.EmailConfirmed,
			PasswordHash:   passwordHash,
			CreatedAt:      now,
			UpdatedAt:      now,
			Version:        1,
		}
		if _, err := tx.Put(accountKey, entity); err != nil {
			return err
		}
		entry := &EmailEntity{
			Key:       emailKey,
			Email:     account.Email,
			AccountID: account.ID,
			CreatedAt: now,
		}
		_, err = tx.Put(emailKey, entry)
		return err
	})
	if err != nil {
		return err
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

func (s *AccountStore) Delete(account *af.Account) error {
	entity, err := s.getAccount(account.ID)
	if err != nil {
		if err == af.ErrAccountNotFound {
			return nil
		}
		return err
	}

	// Collect the account's binding keys outside the transaction; Datastore
	// queries are not transactional in this mode.
	q := datastore.NewQuery(KindBinding).
		Namespace(s.namespace).
		FilterField("account_id", "=", account.ID).
		KeysOnly()
	bindingKeys, err := s.client.GetAll(s.ctx, q, nil)
	if err != nil {
		return err
	}

	_, err = s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		for _, key := range bindingKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(s.namespacedKey(KindEmail, s.emailKeyName(entity.Email))); err != nil {
			return err
		}
		return tx.Delete(s.namespacedKey(KindAccount, account.ID))
	})
	return err
}

func (s *AccountStore) Update(account *af.Account) error {
	return s.mutate(account.ID, func(entity *AccountEntity) {
		entity.DisplayName = account.DisplayName
		entity.EmailConfirmed = account.EmailConfirmed
	})
}

func (s *AccountStore) SetEmailConfirmed(account *af.Account, confirmed bool) error {
	return s.mutate(account.ID, func(entity *AccountEntity) {
		entity.EmailConfirmed = confirmed
	})
}

func (s *AccountStore) SetPassword(account *af.Account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.mutate(account.ID, func(entity *AccountEntity) {
		entity.PasswordHash = string(hash)
	})
}

// CheckPassword verifies a password against the stored hash.
func (s *AccountStore) CheckPassword(account *af.Account, password string) (bool, error) {
	entity, err := s.getAccount(account.ID)
	if err != nil {
		return false, err
	}
	if entity.PasswordHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(entity.PasswordHash), []byte(password)) == nil, nil
}

func (s *AccountStore) AddBinding(account *af.Account, binding af.Binding) error {
	bindingKey := s.namespacedKey(KindBinding, s.bindingKeyName(binding.Provider, binding.ProviderKey))

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var existing BindingEntity
		err := tx.Get(bindingKey, &existing)
		if err == nil {
			if existing.AccountID != account.ID {
				return fmt.Errorf("external login already bound to another account")
			}
			return nil
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}

		entity := &BindingEntity{
			Key:                 bindingKey,
			Provider:            binding.Provider,
			ProviderKey:         binding.ProviderKey,
			AccountID:           account.ID,
			ProviderDisplayName: binding.ProviderDisplayName,
			CreatedAt:           time.Now(),
		}
		_, err = tx.Put(bindingKey, entity)
		return err
	})
	return err
}

func (s *AccountStore) ListBindings(account *af.Account) ([]af.Binding, error) {
	q := datastore.NewQuery(KindBinding).
		Namespace(s.namespace).
		FilterField("account_id", "=", account.ID)

	var bindings []af.Binding
	it := s.client.Run(s.ctx, q)
	for {
		var entity BindingEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, entity.ToBinding())
	}
	return bindings, nil
}

func (s *AccountStore) mutate(id string, fn func(entity *AccountEntity)) error {
	key := s.namespacedKey(KindAccount, id)
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity AccountEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return af.ErrAccountNotFound
			}
			return err
		}
		fn(&entity)
		entity.UpdatedAt = time.Now()
		entity.Version++
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

// ============================================================================
// TokenStore
// ============================================================================

// TokenStore implements af.TokenStore using Google Cloud Datastore
type TokenStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewTokenStore creates a new Datastore-backed TokenStore
func NewTokenStore(client *datastore.Client, namespace string) *TokenStore {
	return &TokenStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

func (s *TokenStore) WithContext(ctx context.Context) *TokenStore {
	return &TokenStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *TokenStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *TokenStore) CreateToken(accountID, email string, tokenType af.TokenType, expiryDuration time.Duration) (*af.AuthToken, error) {
	token, err := af.GenerateSecureToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	key := s.namespacedKey(KindAuthToken, token)
	entity := &AuthTokenEntity{
		Key:       key,
		Type:      tokenType,
		AccountID: accountID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(expiryDuration),
	}
	if _, err := s.client.Put(s.ctx, key, entity); err != nil {
		return nil, err
	}
	return entity.ToAuthToken(), nil
}

func (s *TokenStore) GetToken(token string) (*af.AuthToken, error) {
	key := s.namespacedKey(KindAuthToken, token)
	var entity AuthTokenEntity
	if err := s.client.Get(s.ctx, key, &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, af.ErrTokenNotFound
		}
		return nil, err
	}

	authToken := entity.ToAuthToken()
	if authToken.IsExpired() {
		_ = s.DeleteToken(token)
		return nil, af.ErrTokenNotFound
	}
	return authToken, nil
}

func (s *TokenStore) DeleteToken(token string) error {
	err := s.client.Delete(s.ctx, s.namespacedKey(KindAuthToken, token))
	if err == datastore.ErrNoSuchEntity {
		return nil
	}
	return err
}

func (s *TokenStore) DeleteAccountTokens(accountID string, tokenType af.TokenType) error {
	q := datastore.NewQuery(KindAuthToken).
		Namespace(s.namespace).
		FilterField("account_id", "=", accountID).
		FilterField("type", "=", string(tokenType)).
		KeysOnly()

	keys, err := s.client.GetAll(s.ctx, q, nil)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(s.ctx, keys)
}

// CleanupExpiredTokens removes tokens past their expiry time.
func (s *TokenStore) CleanupExpiredTokens() error {
	q := datastore.NewQuery(KindAuthToken).
		Namespace(s.namespace).
		FilterField("expires_at", "<", time.Now()).
		KeysOnly()

	it := s.client.Run(s.ctx, q)
	var keys []*datastore.Key
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(s.ctx, keys)
}
