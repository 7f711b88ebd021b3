package stores

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	af "github.com/manualhq/authflow"
)

// fsAccount is the on-disk shape: the account plus its password hash and
// bindings in one document.
type fsAccount struct {
	af.Account
	PasswordHash string       `json:"password_hash,omitempty"`
	Bindings     []af.Binding `json:"bindings,omitempty"`
}

// fsIndexEntry points an index file (email or binding) at an account ID.
type fsIndexEntry struct {
	AccountID string `json:"account_id"`
}

// FSAccountStore stores accounts as JSON files. Email and binding lookups go
// through small index files whose names encode the lookup key.
type FSAccountStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

func (s *FSAccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", id+".json")
}

func (s *FSAccountStore) emailPath(email string) string {
	return filepath.Join(s.StoragePath, "emails", url.PathEscape(strings.ToLower(email))+".json")
}

func (s *FSAccountStore) bindingPath(provider, providerKey string) string {
	name := url.PathEscape(provider) + "__" + url.PathEscape(providerKey)
	return filepath.Join(s.StoragePath, "bindings", name+".json")
}

func (s *FSAccountStore) readAccount(id string) (*fsAccount, error) {
	data, err := os.ReadFile(s.accountPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	var acc fsAccount
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *FSAccountStore) writeAccount(acc *fsAccount) error {
	path := s.accountPath(acc.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(acc, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *FSAccountStore) writeIndex(path, accountID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(fsIndexEntry{AccountID: accountID})
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *FSAccountStore) readIndex(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var entry fsIndexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", err
	}
	return entry.AccountID, nil
}

func (s *FSAccountStore) FindByEmail(email string) (*af.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.readIndex(s.emailPath(email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	acc, err := s.readAccount(id)
	if err != nil {
		return nil, err
	}
	return &acc.Account, nil
}

func (s *FSAccountStore) FindByID(id string) (*af.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.readAccount(id)
	if err != nil {
		return nil, err
	}
	return &acc.Account, nil
}

func (s *FSAccountStore) FindByBinding(provider, providerKey string) (*af.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.readIndex(s.bindingPath(provider, providerKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, af.ErrAccountNotFound
		}
		return nil, err
	}
	acc, err := s.readAccount(id)
	if err != nil {
		return nil, err
	}
	return &acc.Account, nil
}

func (s *FSAccountStore) Create(account *af.Account, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.emailPath(account.Email)); err == nil {
		return fmt.Errorf("%w: %s", af.ErrEmailTaken, account.Email)
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt

	acc := &fsAccount{Account: *account}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		acc.PasswordHash = string(hash)
	}

	if err := s.writeAccount(acc); err != nil {
		return err
	}
	return s.writeIndex(s.emailPath(account.Email), account.ID)
}

func (s *FSAccountStore) Delete(account *af.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.readAccount(account.ID)
	if err != nil {
		if err == af.ErrAccountNotFound {
			return nil
		}
		return err
	}

	for _, b := range acc.Bindings {
		_ = os.Remove(s.bindingPath(b.Provider, b.ProviderKey))
	}
	_ = os.Remove(s.emailPath(acc.Email))

	err = os.Remove(s.accountPath(account.ID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FSAccountStore) Update(account *af.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(account.ID, func(acc *fsAccount) {
		acc.DisplayName = account.DisplayName
		acc.EmailConfirmed = account.EmailConfirmed
	})
}

func (s *FSAccountStore) SetEmailConfirmed(account *af.Account, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(account.ID, func(acc *fsAccount) {
		acc.EmailConfirmed = confirmed
	})
}

func (s *FSAccountStore) SetPassword(account *af.Account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(account.ID, func(acc *fsAccount) {
		acc.PasswordHash = string(hash)
	})
}

// CheckPassword verifies a password against the stored hash.
func (s *FSAccountStore) CheckPassword(account *af.Account, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.readAccount(account.ID)
	if err != nil {
		return false, err
	}
	if acc.PasswordHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) == nil, nil
}

func (s *FSAccountStore) AddBinding(account *af.Account, binding af.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bindingPath := s.bindingPath(binding.Provider, binding.ProviderKey)
	if ownerID, err := s.readIndex(bindingPath); err == nil && ownerID != account.ID {
		return fmt.Errorf("external login already bound to another account")
	}

	binding.CreatedAt = time.Now()
	if err := s.update(account.ID, func(acc *fsAccount) {
		for i, b := range acc.Bindings {
			if b.Provider == binding.Provider && b.ProviderKey == binding.ProviderKey {
				acc.Bindings[i] = binding
				return
			}
		}
		acc.Bindings = append(acc.Bindings, binding)
	}); err != nil {
		return err
	}
	return s.writeIndex(bindingPath, account.ID)
}

func (s *FSAccountStore) ListBindings(account *af.Account) ([]af.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.readAccount(account.ID)
	if err != nil {
		return nil, err
	}
	return acc.Bindings, nil
}

// update applies fn to the stored document under the lock held by the caller.
func (s *FSAccountStore) update(id string, fn func(acc *fsAccount)) error {
	acc, err := s.readAccount(id)
	if err != nil {
		return err
	}
	fn(acc)
	acc.UpdatedAt = time.Now()
	return s.writeAccount(acc)
}
