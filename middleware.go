package authflow

import (
	"context"
	"net/http"
)

type accountIDKey struct{}

// Middleware resolves the signed-in account ID from a request, checking the
// auth token cookie and the Authorization header.
type Middleware struct {
	// Name of the cookie carrying the auth token. Must match the issuer's
	// AuthTokenName.
	AuthTokenCookieName string

	// Header checked after the cookie. Defaults to "Authorization".
	AuthTokenHeaderName string

	// VerifyToken validates a token and returns the account ID it names.
	// CookieSessionIssuer.VerifyToken satisfies this.
	VerifyToken func(tokenString string) (accountID string, err error)

	// Where unauthenticated callers are redirected by RequireSignIn.
	// Defaults to "/auth/login".
	LoginURL string
}

// AccountID returns the verified account ID for the request, or "".
func (m *Middleware) AccountID(r *http.Request) string {
	if v, ok := r.Context().Value(accountIDKey{}).(string); ok && v != "" {
		return v
	}
	if m.VerifyToken == nil {
		return ""
	}

	headerName := m.AuthTokenHeaderName
	if headerName == "" {
		headerName = "Authorization"
	}
	tokens := r.Header.Values(headerName)
	for _, cookie := range r.Cookies() {
		if cookie.Name == m.AuthTokenCookieName && cookie.Name != "" && cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}
	for _, t := range tokens {
		if accountID, err := m.VerifyToken(t); err == nil && accountID != "" {
			return accountID
		}
	}
	return ""
}

// RequireSignIn redirects to the login entry point unless the request
// carries a verifiable account, which is put on the request context.
func (m *Middleware) RequireSignIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := m.AccountID(r)
		if accountID == "" {
			loginURL := m.LoginURL
			if loginURL == "" {
				loginURL = "/auth/login"
			}
			http.Redirect(w, r, loginURL, http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), accountIDKey{}, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
