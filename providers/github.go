package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	af "github.com/manualhq/authflow"
)

// GithubProvider adapts GitHub sign-in to the external login flow.
type GithubProvider struct {
	*BaseProvider

	// UserInfoURL is where the identity claims come from. Defaults to
	// GitHub's API. Can be overridden for testing.
	UserInfoURL string
}

func NewGithubProvider(clientID, clientSecret, callbackURL string, complete CompleteFunc) *GithubProvider {
	if clientID == "" {
		clientID = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackURL == "" {
		callbackURL = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}

	out := &GithubProvider{
		BaseProvider: &BaseProvider{
			Provider: "github",
			Complete: complete,
			Config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  callbackURL,
				Endpoint:     github.Endpoint,
				Scopes:       []string{"read:user", "user:email"},
			},
		},
		UserInfoURL: "https://api.github.com/user",
	}
	out.BaseProvider.fetchIdentity = out.fetchIdentity
	return out
}

func (g *GithubProvider) fetchIdentity(token *oauth2.Token) (*af.ExternalIdentity, error) {
	req, err := http.NewRequest("GET", g.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from github: %w", err)
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
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"` // may be empty when the email is private
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(contents, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if info.ID == 0 {
		return nil, fmt.Errorf("userinfo response missing id")
	}
	name := info.Name
	if name == "" {
		name = info.Login
	}
	return &af.ExternalIdentity{
		Provider:            "github",
		ProviderKey:         strconv.FormatInt(info.ID, 10),
		ProviderDisplayName: "GitHub",
		Email:               info.Email,
		Name:                name,
	}, nil
}
