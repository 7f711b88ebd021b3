package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	af "github.com/manualhq/authflow"
)

// FSTokenStore stores confirmation and reset tokens as JSON files
type FSTokenStore struct {
	StoragePath string
}

func NewFSTokenStore(storagePath string) *FSTokenStore {
	return &FSTokenStore{StoragePath: storagePath}
}

func (s *FSTokenStore) getTokenPath(token string) string {
	return filepath.Join(s.StoragePath, "tokens", token+".json")
}

func (s *FSTokenStore) CreateToken(accountID, email string, tokenType af.TokenType, expiryDuration time.Duration) (*af.AuthToken, error) {
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
		ExpiresAt: time.Now().Add(expiryDuration),
	}

	path := s.getTokenPath(token)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(authToken, "", "  ")
	if err != nil {
		return nil, err
	}

	if err := writeAtomicFile(path, data); err != nil {
		return nil, err
	}

	return authToken, nil
}

func (s *FSTokenStore) GetToken(token string) (*af.AuthToken, error) {
	path := s.getTokenPath(token)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, af.ErrTokenNotFound
		}
		return nil, err
	}

	var authToken af.AuthToken
	if err := json.Unmarshal(data, &authToken); err != nil {
		return nil, err
	}

	if authToken.IsExpired() {
		// Auto-delete expired token
		_ = s.DeleteToken(token)
		return nil, af.ErrTokenNotFound
	}

	return &authToken, nil
}

func (s *FSTokenStore) DeleteToken(token string) error {
	path := s.getTokenPath(token)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil // Already deleted
	}
	return err
}

func (s *FSTokenStore) DeleteAccountTokens(accountID string, tokenType af.TokenType) error {
	tokensDir := filepath.Join(s.StoragePath, "tokens")
	entries, err := os.ReadDir(tokensDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(tokensDir, entry.Name()))
		if err != nil {
			continue
		}

		var authToken af.AuthToken
		if err := json.Unmarshal(data, &authToken); err != nil {
			continue
		}

		if authToken.AccountID == accountID && authToken.Type == tokenType {
			_ = os.Remove(filepath.Join(tokensDir, entry.Name()))
		}
	}

	return nil
}
