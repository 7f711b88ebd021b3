package authflow_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	af "github.com/manualhq/authflow"
)

// memAccountStore is an in-memory AccountStore with fault injection knobs
// for exercising failure paths.
type memAccountStore struct {
	mu        sync.Mutex
	accounts  map[string]*af.Account // by ID
	passwords map[string]string      // by ID, plaintext for test assertions
	bindings  map[string][]af.Binding

	nextID int

	failCreate     error
	failAddBinding error
	failDelete     error
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{
		accounts:  make(map[string]*af.Account),
		passwords: make(map[string]string),
		bindings:  make(map[string][]af.Binding),
	}
}

func (s *memAccountStore) FindByEmail(email string) (*af.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			copy := *a
			return &copy, nil
		}
	}
	return nil, af.ErrAccountNotFound
}

func (s *memAccountStore) FindByID(id string) (*af.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, af.ErrAccountNotFound
}

func (s *memAccountStore) FindByBinding(provider, providerKey string) (*af.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, bs := range s.bindings {
		for _, b := range bs {
			if b.Provider == provider && b.ProviderKey == providerKey {
				copy := *s.accounts[id]
				return &copy, nil
			}
		}
	}
	return nil, af.ErrAccountNotFound
}

func (s *memAccountStore) Create(account *af.Account, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return fmt.Errorf("%w: %s", af.ErrEmailTaken, account.Email)
		}
	}
	if account.ID == "" {
		s.nextID++
		account.ID = fmt.Sprintf("acct-%d", s.nextID)
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	copy := *account
	s.accounts[account.ID] = &copy
	if password != "" {
		s.passwords[account.ID] = password
	}
	return nil
}

func (s *memAccountStore) Delete(account *af.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return s.failDelete
	}
	delete(s.accounts, account.ID)
	delete(s.passwords, account.ID)
	delete(s.bindings, account.ID)
	return nil
}

func (s *memAccountStore) Update(account *af.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[account.ID]
	if !ok {
		return af.ErrAccountNotFound
	}
	existing.DisplayName = account.DisplayName
	existing.EmailConfirmed = account.EmailConfirmed
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *memAccountStore) SetEmailConfirmed(account *af.Account, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.accounts[account.ID]
	if !ok {
		return af.ErrAccountNotFound
	}
	existing.EmailConfirmed = confirmed
	return nil
}

func (s *memAccountStore) SetPassword(account *af.Account, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; !ok {
		return af.ErrAccountNotFound
	}
	s.passwords[account.ID] = password
	return nil
}

func (s *memAccountStore) AddBinding(account *af.Account, binding af.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAddBinding != nil {
		return s.failAddBinding
	}
	for id, bs := range s.bindings {
		for _, b := range bs {
			if b.Provider == binding.Provider && b.ProviderKey == binding.ProviderKey {
				if id != account.ID {
					return fmt.Errorf("external login already bound to another account")
				}
				return nil
			}
		}
	}
	binding.CreatedAt = time.Now()
	s.bindings[account.ID] = append(s.bindings[account.ID], binding)
	return nil
}

func (s *memAccountStore) ListBindings(account *af.Account) ([]af.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]af.Binding(nil), s.bindings[account.ID]...), nil
}

// memTokenStore is an in-memory TokenStore.
type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*af.AuthToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{tokens: make(map[string]*af.AuthToken)}
}

func (s *memTokenStore) CreateToken(accountID, email string, tokenType af.TokenType, expiry time.Duration) (*af.AuthToken, error) {
	token, err := af.GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	authToken := &af.AuthToken{
		Token:     token,
		Type:      tokenType,
		AccountID: accountID,
		Email:     email,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(expiry),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = authToken
	return authToken, nil
}

func (s *memTokenStore) GetToken(token string) (*af.AuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok || t.IsExpired() {
		return nil, af.ErrTokenNotFound
	}
	copy := *t
	return &copy, nil
}

func (s *memTokenStore) DeleteToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *memTokenStore) DeleteAccountTokens(accountID string, tokenType af.TokenType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.tokens {
		if t.AccountID == accountID && t.Type == tokenType {
			delete(s.tokens, k)
		}
	}
	return nil
}

// memFlowStore is an in-memory FlowStateStore with a fault injection knob.
type memFlowStore struct {
	mu     sync.Mutex
	fields map[string]string

	failAll error
}

func newMemFlowStore() *memFlowStore {
	return &memFlowStore{fields: make(map[string]string)}
}

func (s *memFlowStore) Put(ctx context.Context, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.fields[field] = value
	return nil
}

func (s *memFlowStore) Take(ctx context.Context, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return "", false, s.failAll
	}
	v, ok := s.fields[field]
	if !ok {
		return "", false, nil
	}
	delete(s.fields, field)
	return v, true, nil
}

func (s *memFlowStore) Has(ctx context.Context, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return false, s.failAll
	}
	_, ok := s.fields[field]
	return ok, nil
}

// recordingIssuer records sign-in calls instead of setting cookies.
type recordingIssuer struct {
	signedIn  []string // account IDs in call order
	providers []string
	failWith  error
}

func (i *recordingIssuer) SignIn(w http.ResponseWriter, r *http.Request, account *af.Account, persistent bool, provider string) error {
	if i.failWith != nil {
		return i.failWith
	}
	i.signedIn = append(i.signedIn, account.ID)
	i.providers = append(i.providers, provider)
	return nil
}

func (i *recordingIssuer) SignOut(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// recordingSender records outgoing emails.
type recordingSender struct {
	confirmations []sentEmail
	resets        []sentEmail
	failWith      error
}

type sentEmail struct {
	To   string
	Name string
	Link string
}

func (s *recordingSender) SendConfirmationEmail(to, name, link string) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.confirmations = append(s.confirmations, sentEmail{to, name, link})
	return nil
}

func (s *recordingSender) SendPasswordResetEmail(to, name, link string) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.resets = append(s.resets, sentEmail{to, name, link})
	return nil
}
