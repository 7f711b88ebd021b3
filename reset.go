package authflow

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ResetFlow handles forgotten passwords: a reset link is mailed to confirmed
// accounts, and the reset form rotates the password against a stored token.
// Every outcome of the request step looks identical to the caller so the
// endpoint cannot be used to probe which emails have accounts.
type ResetFlow struct {
	Accounts AccountStore
	Tokens   TokenStore
	Sender   SendEmail

	// Optional validation policy; defaults to DefaultPolicy.
	Policy *Policy

	// BaseURL is the external origin links are built against. Required.
	BaseURL string

	// ResetPath is appended to BaseURL for reset links.
	// Defaults to "/auth/resetpassword".
	ResetPath string

	// Where a reset request lands regardless of outcome.
	// Defaults to "/auth/forgotpassword/confirmation".
	ConfirmationPageURL string

	// Entry point users are sent to after a successful reset.
	// Defaults to "/auth/login".
	LoginURL string
}

// Validate reports missing collaborators.
func (f *ResetFlow) Validate() error {
	if f.Accounts == nil {
		return fmt.Errorf("reset flow: AccountStore is required")
	}
	if f.Tokens == nil {
		return fmt.Errorf("reset flow: TokenStore is required")
	}
	if f.Sender == nil {
		return fmt.Errorf("reset flow: SendEmail is required")
	}
	if f.BaseURL == "" {
		return fmt.Errorf("reset flow: BaseURL is required")
	}
	return nil
}

func (f *ResetFlow) policy() Policy {
	if f.Policy != nil {
		return *f.Policy
	}
	return DefaultPolicy()
}

func (f *ResetFlow) resetPath() string {
	if f.ResetPath != "" {
		return f.ResetPath
	}
	return "/auth/resetpassword"
}

func (f *ResetFlow) confirmationPageURL() string {
	if f.ConfirmationPageURL != "" {
		return f.ConfirmationPageURL
	}
	return "/auth/forgotpassword/confirmation"
}

func (f *ResetFlow) loginURL() string {
	if f.LoginURL != "" {
		return f.LoginURL
	}
	return "/auth/login"
}

// RequestReset issues a reset token and mails the link when the email
// belongs to a confirmed account. Unknown and unconfirmed emails return nil
// without sending anything.
func (f *ResetFlow) RequestReset(email string) error {
	account, err := f.Accounts.FindByEmail(email)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil
		}
		return fmt.Errorf("looking up reset email: %w", err)
	}
	if !account.EmailConfirmed {
		return nil
	}

	token, err := f.Tokens.CreateToken(account.ID, account.Email, TokenTypePasswordReset, TokenExpiryPasswordReset)
	if err != nil {
		return fmt.Errorf("creating reset token: %w", err)
	}
	link := fmt.Sprintf("%s%s?id=%s&code=%s",
		strings.TrimSuffix(f.BaseURL, "/"), f.resetPath(),
		url.QueryEscape(account.ID), url.QueryEscape(EncodeToken([]byte(token.Token))))
	if err := f.Sender.SendPasswordResetEmail(account.Email, account.DisplayName, link); err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}
	slog.Info("password reset sent", "account", account.ID)
	return nil
}

// ResetPassword verifies an id+code pair and rotates the password. An
// unknown account ID succeeds silently for the same reason RequestReset
// does; a bad or expired code fails, since that only reveals the code.
func (f *ResetFlow) ResetPassword(accountID, code, password string) error {
	if aerr := f.policy().ValidatePassword(password); aerr != nil {
		return aerr
	}

	account, err := f.Accounts.FindByID(accountID)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil
		}
		return fmt.Errorf("loading account for reset: %w", err)
	}

	raw, err := DecodeToken(code)
	if err != nil {
		return NewAuthError(ErrCodeResetFailed, "Error resetting your password.", "")
	}
	token, err := f.Tokens.GetToken(string(raw))
	if err != nil {
		if err == ErrTokenNotFound {
			return NewAuthError(ErrCodeResetFailed, "Error resetting your password.", "")
		}
		return fmt.Errorf("loading reset token: %w", err)
	}
	if token.AccountID != account.ID || !token.IsValid(TokenTypePasswordReset) {
		return NewAuthError(ErrCodeResetFailed, "Error resetting your password.", "")
	}

	if err := f.Accounts.SetPassword(account, password); err != nil {
		return fmt.Errorf("setting new password: %w", err)
	}
	if err := f.Tokens.DeleteToken(token.Token); err != nil {
		slog.Warn("deleting used reset token", "err", err)
	}
	slog.Info("password reset completed", "account", account.ID)
	return nil
}

// HandleForgotPassword processes the forgot-password form (POST). All
// outcomes redirect to the same confirmation page.
func (f *ResetFlow) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithStatus(w, r, f.confirmationPageURL(), "")
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	if email != "" {
		if err := f.RequestReset(email); err != nil {
			// Logged, not surfaced. Surfacing it would distinguish known
			// emails from unknown ones.
			slog.Error("password reset request", "err", err)
		}
	}
	http.Redirect(w, r, f.confirmationPageURL(), http.StatusFound)
}

// HandleForgotPasswordConfirmation renders the request-received page (GET).
func (f *ResetFlow) HandleForgotPasswordConfirmation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Reset Your Password</title></head>
<body>
<h1>Check your inbox</h1>
<p>If that email belongs to an account, a reset link is on its way.</p>
</body>
</html>`)
}

// HandleResetPasswordForm renders the new-password form (GET) for a link's
// id+code pair.
func (f *ResetFlow) HandleResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID := q.Get("id")
	code := q.Get("code")
	if accountID == "" || code == "" {
		redirectWithStatus(w, r, f.loginURL(), "Error resetting your password.")
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Reset Your Password</title></head>
<body>
<h1>Choose a new password</h1>
<form method="POST" action="%s">
	<input type="hidden" name="id" value="%s">
	<input type="hidden" name="code" value="%s">
	<label>New password: <input type="password" name="password" required minlength="%d"></label>
	<button type="submit">Reset Password</button>
</form>
</body>
</html>`, html.EscapeString(f.resetPath()), html.EscapeString(accountID), html.EscapeString(code), f.policy().minPasswordLength())
}

// HandleResetPassword processes the new-password submission (POST).
func (f *ResetFlow) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithStatus(w, r, f.loginURL(), "Invalid form data")
		return
	}
	accountID := r.FormValue("id")
	code := r.FormValue("code")
	password := r.FormValue("password")

	if err := f.ResetPassword(accountID, code, password); err != nil {
		if aerr, ok := AsAuthError(err); ok {
			if aerr.Code == ErrCodeMissingField || aerr.Code == ErrCodeWeakPassword {
				target := fmt.Sprintf("%s?id=%s&code=%s", f.resetPath(),
					url.QueryEscape(accountID), url.QueryEscape(code))
				redirectWithStatus(w, r, target, aerr.Message)
				return
			}
			redirectWithStatus(w, r, f.loginURL(), aerr.Message)
			return
		}
		slog.Error("password reset", "err", err)
		http.Error(w, "Temporarily unavailable, please retry", http.StatusInternalServerError)
		return
	}
	redirectWithStatus(w, r, f.loginURL(), "Your password has been reset. Please sign in.")
}
