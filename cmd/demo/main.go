// Command demo runs a small host app exercising the full authentication
// surface: external login with Google and GitHub, deferred registration with
// email confirmation, and password reset. State lives in JSON files under
// -storage; emails go to the console unless SMTP is configured.
package main

import (
	"fmt"
	"html"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/caarlos0/env/v11"
	"github.com/gorilla/mux"

	af "github.com/manualhq/authflow"
	"github.com/manualhq/authflow/email"
	"github.com/manualhq/authflow/providers"
	"github.com/manualhq/authflow/stores"
)

type Config struct {
	Addr        string `env:"DEMO_ADDR" envDefault:":8080"`
	BaseURL     string `env:"DEMO_BASE_URL" envDefault:"http://localhost:8080"`
	StoragePath string `env:"DEMO_STORAGE_PATH" envDefault:"./demo-data"`

	GoogleClientID     string `env:"OAUTH2_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"OAUTH2_GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"OAUTH2_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"OAUTH2_GITHUB_CLIENT_SECRET"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parsing config: %v", err)
	}

	accountStore := stores.NewFSAccountStore(cfg.StoragePath)
	tokenStore := stores.NewFSTokenStore(cfg.StoragePath)

	var sender af.SendEmail = &af.ConsoleSender{}
	if cfg.SMTPHost != "" {
		smtp, err := email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			AppName:  "Authflow Demo",
		})
		if err != nil {
			log.Fatalf("creating smtp sender: %v", err)
		}
		sender = smtp
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = 24 * time.Hour

	issuer := (&af.CookieSessionIssuer{
		Session: sessionManager,
		AppName: "AuthflowDemo",
	}).EnsureDefaults()

	flowState := &af.SessionFlowStore{Session: sessionManager}

	externalFlow := &af.ExternalFlow{
		Accounts:  accountStore,
		FlowState: flowState,
		Sessions:  issuer,
	}
	confirmFlow := &af.ConfirmFlow{
		Accounts: accountStore,
		Tokens:   tokenStore,
		Sessions: issuer,
	}
	registerFlow := &af.RegisterFlow{
		Accounts: accountStore,
		Sender:   sender,
		BaseURL:  cfg.BaseURL,
	}
	resetFlow := &af.ResetFlow{
		Accounts: accountStore,
		Tokens:   tokenStore,
		Sender:   sender,
		BaseURL:  cfg.BaseURL,
	}
	for _, v := range []interface{ Validate() error }{externalFlow, confirmFlow, registerFlow, resetFlow} {
		if err := v.Validate(); err != nil {
			log.Fatal(err)
		}
	}

	google := providers.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret,
		cfg.BaseURL+"/auth/google/callback", externalFlow.FinishExternalLogin)
	github := providers.NewGithubProvider(cfg.GithubClientID, cfg.GithubClientSecret,
		cfg.BaseURL+"/auth/github/callback", externalFlow.FinishExternalLogin)

	mw := &af.Middleware{
		AuthTokenCookieName: issuer.AuthTokenName,
		VerifyToken:         issuer.VerifyToken,
	}

	r := mux.NewRouter()

	r.HandleFunc("/auth/login", handleLoginPage).Methods("GET")
	r.HandleFunc("/auth/logout", func(w http.ResponseWriter, req *http.Request) {
		if err := issuer.SignOut(w, req); err != nil {
			slog.Error("sign out", "err", err)
		}
		http.Redirect(w, req, "/auth/login", http.StatusFound)
	})

	r.HandleFunc("/auth/google/login", google.HandleLogin)
	r.HandleFunc("/auth/google/callback", google.HandleCallback)
	r.HandleFunc("/auth/github/login", github.HandleLogin)
	r.HandleFunc("/auth/github/callback", github.HandleCallback)

	r.HandleFunc("/auth/external/displayname", externalFlow.HandleDisplayNameForm).Methods("GET")
	r.HandleFunc("/auth/external/displayname", externalFlow.HandleDisplayName).Methods("POST")

	r.HandleFunc("/auth/register", handleRegisterPage).Methods("GET")
	r.HandleFunc("/auth/register", registerFlow.HandleRegister).Methods("POST")
	r.HandleFunc("/auth/register/confirmation", registerFlow.HandleRegisterConfirmation).Methods("GET")
	r.HandleFunc("/auth/confirm", confirmFlow.HandleConfirm).Methods("GET")

	r.HandleFunc("/auth/forgotpassword", handleForgotPasswordPage).Methods("GET")
	r.HandleFunc("/auth/forgotpassword", resetFlow.HandleForgotPassword).Methods("POST")
	r.HandleFunc("/auth/forgotpassword/confirmation", resetFlow.HandleForgotPasswordConfirmation).Methods("GET")
	r.HandleFunc("/auth/resetpassword", resetFlow.HandleResetPasswordForm).Methods("GET")
	r.HandleFunc("/auth/resetpassword", resetFlow.HandleResetPassword).Methods("POST")

	r.Handle("/", mw.RequireSignIn(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		accountID := mw.AccountID(req)
		account, err := accountStore.FindByID(accountID)
		if err != nil {
			http.Error(w, "account not found", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<h1>Welcome, %s</h1>
<p>Signed in as %s (confirmed: %v)</p>
<p><a href="/auth/logout">Sign out</a></p>`, html.EscapeString(account.DisplayName), html.EscapeString(account.Email), account.EmailConfirmed)
	})))

	handler := sessionManager.LoadAndSave(r)

	slog.Info("demo listening", "addr", cfg.Addr, "storage", cfg.StoragePath)
	log.Fatal(http.ListenAndServe(cfg.Addr, handler))
}

func handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Sign In</title></head>
<body>
<h1>Sign In</h1>
<p class="status">%s</p>
<ul>
	<li><a href="/auth/google/login">Sign in with Google</a></li>
	<li><a href="/auth/github/login">Sign in with GitHub</a></li>
</ul>
<p><a href="/auth/register">Create an account</a> | <a href="/auth/forgotpassword">Forgot password?</a></p>
</body>
</html>`, html.EscapeString(r.URL.Query().Get("status")))
}

func handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Register</title></head>
<body>
<h1>Create an Account</h1>
<p class="status">%s</p>
<form method="POST" action="/auth/register">
	<label>Email: <input type="email" name="email" required></label><br>
	<label>Display name: <input type="text" name="display_name" required></label><br>
	<label>Password: <input type="password" name="password" required></label><br>
	<button type="submit">Register</button>
</form>
</body>
</html>`, html.EscapeString(r.URL.Query().Get("status")))
}

func handleForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Forgot Password</title></head>
<body>
<h1>Forgot Password</h1>
<p class="status">%s</p>
<form method="POST" action="/auth/forgotpassword">
	<label>Email: <input type="email" name="email" required></label><br>
	<button type="submit">Send reset link</button>
</form>
</body>
</html>`, html.EscapeString(r.URL.Query().Get("status")))
}
