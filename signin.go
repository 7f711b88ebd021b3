package authflow

import (
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
)

// CookieSessionIssuer signs accounts in and out by putting the account ID in
// the scs session and issuing a signed JWT cookie alongside it.
type CookieSessionIssuer struct {
	Session *scs.SessionManager

	// Optional name used as a prefix for defaults
	AppName string

	// Name of the session variable and cookie where the auth token is stored
	AuthTokenName string

	// All the domains the auth cookies are set on at sign-in and sign-out
	CookieDomains []string

	JwtIssuer    string
	JWTSecretKey string

	// How long a session cookie is valid for. Defaults to 1 day.
	SessionTimeoutInSeconds int
}

// EnsureDefaults fills in reasonable defaults for unset fields.
func (c *CookieSessionIssuer) EnsureDefaults() *CookieSessionIssuer {
	if c.AppName == "" {
		c.AppName = "Authflow"
	}
	if c.SessionTimeoutInSeconds <= 0 {
		c.SessionTimeoutInSeconds = 86400
	}
	if c.JwtIssuer == "" {
		c.JwtIssuer = fmt.Sprintf("%s-Issuer", c.AppName)
	}
	if c.AuthTokenName == "" {
		c.AuthTokenName = fmt.Sprintf("%sAuthToken", c.AppName)
	}
	if c.JWTSecretKey == "" {
		c.JWTSecretKey = strings.TrimSpace(os.Getenv("AUTHFLOW_JWT_SECRET_KEY"))
	}
	return c
}

// SignIn establishes a session for the account on every configured cookie
// domain.
func (c *CookieSessionIssuer) SignIn(w http.ResponseWriter, r *http.Request, account *Account, persistent bool, provider string) error {
	c.EnsureDefaults()

	claims := jwt.MapClaims{
		"sub": account.ID,
		"iss": c.JwtIssuer,
		"exp": time.Now().Add(time.Second * time.Duration(c.SessionTimeoutInSeconds)).Unix(),
		"iat": time.Now().Unix(),
	}
	if provider != "" {
		claims["idp"] = provider
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(c.JWTSecretKey))
	if err != nil {
		return fmt.Errorf("error signing token: %w", err)
	}

	c.Session.Put(r.Context(), "loggedInAccountId", account.ID)
	c.Session.Put(r.Context(), c.AuthTokenName, tokenString)

	maxAge := 0
	var expires time.Time
	if persistent {
		maxAge = c.SessionTimeoutInSeconds
		expires = time.Now().Add(time.Second * time.Duration(c.SessionTimeoutInSeconds))
	}
	for _, cookieDomain := range c.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:     c.AuthTokenName,
			Value:    tokenString,
			Domain:   cookieDomain,
			Path:     "/",
			Expires:  expires,
			MaxAge:   maxAge,
			HttpOnly: true,
		})
	}
	return nil
}

// SignOut clears the session and auth cookies.
func (c *CookieSessionIssuer) SignOut(w http.ResponseWriter, r *http.Request) error {
	c.EnsureDefaults()
	if err := c.Session.Clear(r.Context()); err != nil {
		return fmt.Errorf("error clearing session: %w", err)
	}
	for _, cookieDomain := range c.cookieDomains() {
		http.SetCookie(w, &http.Cookie{
			Name:    c.AuthTokenName,
			Domain:  cookieDomain,
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Now(),
		})
	}
	return nil
}

// VerifyToken parses and verifies a JWT issued by SignIn, returning the
// account ID it names. Suitable as a Middleware verifier.
func (c *CookieSessionIssuer) VerifyToken(tokenString string) (string, error) {
	c.EnsureDefaults()
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(c.JWTSecretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("subject not found")
	}
	return sub, nil
}

func (c *CookieSessionIssuer) cookieDomains() []string {
	if slices.Contains(c.CookieDomains, "") {
		return c.CookieDomains
	}
	// Clone so the caller's slice is never grown in place.
	return append(slices.Clone(c.CookieDomains), "") // default domain
}
