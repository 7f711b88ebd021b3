package authflow_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"

	af "github.com/manualhq/authflow"
)

func newTestIssuer(t *testing.T) (*af.CookieSessionIssuer, *scs.SessionManager) {
	t.Helper()
	sm := scs.New()
	issuer := (&af.CookieSessionIssuer{
		Session:      sm,
		AppName:      "Test",
		JWTSecretKey: "test-secret-key",
	}).EnsureDefaults()
	return issuer, sm
}

func signInRequest(t *testing.T, sm *scs.SessionManager) *http.Request {
	t.Helper()
	ctx, err := sm.Load(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
}

func TestSignInIssuesVerifiableToken(t *testing.T) {
	issuer, sm := newTestIssuer(t)
	account := &af.Account{ID: "acct-1", Email: "user@example.com"}

	rr := httptest.NewRecorder()
	if err := issuer.SignIn(rr, signInRequest(t, sm), account, false, "google"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	var tokenCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == issuer.AuthTokenName {
			tokenCookie = c
		}
	}
	if tokenCookie == nil {
		t.Fatalf("no %s cookie set", issuer.AuthTokenName)
	}

	accountID, err := issuer.VerifyToken(tokenCookie.Value)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if accountID != "acct-1" {
		t.Errorf("VerifyToken = %s, want acct-1", accountID)
	}
}

func TestVerifyTokenRejectsForgedToken(t *testing.T) {
	issuer, sm := newTestIssuer(t)
	account := &af.Account{ID: "acct-1"}

	rr := httptest.NewRecorder()
	if err := issuer.SignIn(rr, signInRequest(t, sm), account, false, ""); err != nil {
		t.Fatal(err)
	}
	var token string
	for _, c := range rr.Result().Cookies() {
		if c.Name == issuer.AuthTokenName {
			token = c.Value
		}
	}

	other := (&af.CookieSessionIssuer{
		Session:      sm,
		AppName:      "Test",
		JWTSecretKey: "a-different-secret",
	}).EnsureDefaults()
	if _, err := other.VerifyToken(token); err == nil {
		t.Error("token signed with another key verified")
	}
	if _, err := issuer.VerifyToken("not-a-jwt"); err == nil {
		t.Error("garbage token verified")
	}
}

func TestMiddlewareRequireSignIn(t *testing.T) {
	issuer, sm := newTestIssuer(t)
	account := &af.Account{ID: "acct-1"}

	rr := httptest.NewRecorder()
	if err := issuer.SignIn(rr, signInRequest(t, sm), account, false, ""); err != nil {
		t.Fatal(err)
	}
	var token string
	for _, c := range rr.Result().Cookies() {
		if c.Name == issuer.AuthTokenName {
			token = c.Value
		}
	}

	mw := &af.Middleware{
		AuthTokenCookieName: issuer.AuthTokenName,
		VerifyToken:         issuer.VerifyToken,
	}
	var sawAccountID string
	handler := mw.RequireSignIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAccountID = mw.AccountID(r)
	}))

	// With the cookie: the handler runs and sees the account.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: issuer.AuthTokenName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with cookie = %d", rec.Code)
	}
	if sawAccountID != "acct-1" {
		t.Errorf("handler saw account %q, want acct-1", sawAccountID)
	}

	// Without it: a redirect to the login page.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if rec.Code != http.StatusFound {
		t.Errorf("status without cookie = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/auth/login" {
		t.Errorf("redirect = %s", loc)
	}
}

func TestSignInLeavesCookieDomainsSliceAlone(t *testing.T) {
	issuer, sm := newTestIssuer(t)
	backing := []string{"example.com", "other.example.com"}
	issuer.CookieDomains = backing[:1]

	rr := httptest.NewRecorder()
	account := &af.Account{ID: "acct-1", Email: "user@example.com"}
	if err := issuer.SignIn(rr, signInRequest(t, sm), account, false, "google"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	// The default-domain entry must be appended to a copy, never into the
	// caller's backing array.
	if backing[1] != "other.example.com" {
		t.Errorf("CookieDomains backing array overwritten: %q", backing[1])
	}
	if len(issuer.CookieDomains) != 1 || issuer.CookieDomains[0] != "example.com" {
		t.Errorf("CookieDomains changed: %v", issuer.CookieDomains)
	}
}
