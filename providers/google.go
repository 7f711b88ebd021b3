package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	af "github.com/manualhq/authflow"
)

// GoogleProvider adapts Google sign-in to the external login flow.
type GoogleProvider struct {
	*BaseProvider

	// UserInfoURL is where the identity claims come from. Defaults to
	// Google's userinfo endpoint. Can be overridden for testing.
	UserInfoURL string
}

func NewGoogleProvider(clientID, clientSecret, callbackURL string, complete CompleteFunc) *GoogleProvider {
	if clientID == "" {
		clientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackURL == "" {
		callbackURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}

	out := &GoogleProvider{
		BaseProvider: &BaseProvider{
			Provider: "google",
			Complete: complete,
			Config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  callbackURL,
				Endpoint:     google.Endpoint,
				Scopes: []string{
					"https://www.googleapis.com/auth/userinfo.email",
					"https://www.googleapis.com/auth/userinfo.profile",
				},
			},
		},
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
	out.BaseProvider.fetchIdentity = out.fetchIdentity
	return out
}

func (g *GoogleProvider) fetchIdentity(token *oauth2.Token) (*af.ExternalIdentity, error) {
	resp, err := g.httpClient().Get(g.UserInfoURL + "?access_token=" + token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()
	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}

	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(contents, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("userinfo response missing id")
	}
	return &af.ExternalIdentity{
		Provider:            "google",
		ProviderKey:         info.ID,
		ProviderDisplayName: "Google",
		Email:               info.Email,
		Name:                info.Name,
	}, nil
}
