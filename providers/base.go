// Package providers contains OAuth2 provider adapters. Each adapter runs the
// provider's authorization-code dance and hands the verified identity to a
// completion callback, typically authflow.ExternalFlow.FinishExternalLogin.
package providers

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	af "github.com/manualhq/authflow"
)

// CompleteFunc receives the verified identity from a provider callback, or
// a provider error string when the dance failed.
type CompleteFunc func(w http.ResponseWriter, r *http.Request, ident *af.ExternalIdentity, providerErr string)

const stateCookieName = "oauthstate"

// BaseProvider holds the pieces shared by every OAuth2 adapter.
type BaseProvider struct {
	Provider string
	Config   oauth2.Config
	Complete CompleteFunc

	// HTTPClient used for userinfo requests. Defaults to http.DefaultClient.
	// Injectable for testing.
	HTTPClient *http.Client

	// fetchIdentity turns an exchanged token into an identity. Set by the
	// concrete provider.
	fetchIdentity func(token *oauth2.Token) (*af.ExternalIdentity, error)
}

func (b *BaseProvider) httpClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

func generateStateCookie(w http.ResponseWriter) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		slog.Error("generating oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
	})
	return state
}

// HandleLogin starts the provider dance: set the state cookie and send the
// browser to the provider's consent page.
func (b *BaseProvider) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := generateStateCookie(w)
	http.Redirect(w, r, b.Config.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback finishes the dance: verify the state cookie, exchange the
// code, fetch the user's identity and hand it to Complete.
func (b *BaseProvider) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if remoteErr := r.FormValue("error"); remoteErr != "" {
		b.Complete(w, r, nil, remoteErr)
		return
	}

	stateCookie, _ := r.Cookie(stateCookieName)
	if stateCookie == nil || r.FormValue("state") != stateCookie.Value {
		http.SetCookie(w, &http.Cookie{Name: stateCookieName, MaxAge: -1, Path: "/"})
		b.Complete(w, r, nil, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, MaxAge: -1, Path: "/"})

	token, err := b.Config.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		slog.Info("oauth code exchange failed", "provider", b.Provider, "err", err)
		b.Complete(w, r, nil, "code exchange failed")
		return
	}

	ident, err := b.fetchIdentity(token)
	if err != nil {
		slog.Info("fetching provider identity failed", "provider", b.Provider, "err", err)
		b.Complete(w, r, nil, "could not load user information")
		return
	}
	b.Complete(w, r, ident, "")
}
