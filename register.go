package authflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// RegisterFlow handles deferred registration: the submitted form is encoded
// into a confirmation link and mailed, and no account exists until the link
// is followed. See ConfirmFlow for the other half.
type RegisterFlow struct {
	Accounts AccountStore
	Sender   SendEmail

	// Optional validation policy; defaults to DefaultPolicy.
	Policy *Policy

	// BaseURL is the external origin links are built against, e.g.
	// "https://example.com". Required.
	BaseURL string

	// ConfirmPath is appended to BaseURL for confirmation links.
	// Defaults to "/auth/confirm".
	ConfirmPath string

	// Where a successful submission lands, informing the user to check
	// their inbox. Defaults to "/auth/register/confirmation".
	ConfirmationPageURL string

	// Where the registration form lives, for validation bounces.
	// Defaults to "/auth/register".
	RegisterURL string
}

// Validate reports missing collaborators.
func (f *RegisterFlow) Validate() error {
	if f.Accounts == nil {
		return fmt.Errorf("register flow: AccountStore is required")
	}
	if f.Sender == nil {
		return fmt.Errorf("register flow: SendEmail is required")
	}
	if f.BaseURL == "" {
		return fmt.Errorf("register flow: BaseURL is required")
	}
	return nil
}

func (f *RegisterFlow) policy() Policy {
	if f.Policy != nil {
		return *f.Policy
	}
	return DefaultPolicy()
}

func (f *RegisterFlow) confirmPath() string {
	if f.ConfirmPath != "" {
		return f.ConfirmPath
	}
	return "/auth/confirm"
}

func (f *RegisterFlow) confirmationPageURL() string {
	if f.ConfirmationPageURL != "" {
		return f.ConfirmationPageURL
	}
	return "/auth/register/confirmation"
}

func (f *RegisterFlow) registerURL() string {
	if f.RegisterURL != "" {
		return f.RegisterURL
	}
	return "/auth/register"
}

// ConfirmationLink builds the payload-carrying confirmation link for a
// pending registration.
func (f *RegisterFlow) ConfirmationLink(pending PendingRegistration) (string, error) {
	raw, err := json.Marshal(pending)
	if err != nil {
		return "", fmt.Errorf("encoding registration payload: %w", err)
	}
	return fmt.Sprintf("%s%s?payload=%s",
		strings.TrimSuffix(f.BaseURL, "/"), f.confirmPath(), url.QueryEscape(EncodeToken(raw))), nil
}

// StartRegistration validates the submitted details and mails the
// confirmation link. When the email already has an account the flow fails
// fast at submit time; the duplicate is checked again at confirmation, where
// it is the real guard.
func (f *RegisterFlow) StartRegistration(email, displayName, password string) error {
	policy := f.policy()
	if aerr := policy.ValidateEmail(email); aerr != nil {
		return aerr
	}
	if aerr := policy.ValidateDisplayName(displayName); aerr != nil {
		return aerr
	}
	if aerr := policy.ValidatePassword(password); aerr != nil {
		return aerr
	}

	if existing, err := f.Accounts.FindByEmail(email); err == nil && existing != nil {
		return NewAuthError(ErrCodeAlreadyRegistered,
			"This email is already registered. Please sign in instead.", "email")
	} else if err != nil && err != ErrAccountNotFound {
		return fmt.Errorf("checking registration email: %w", err)
	}

	link, err := f.ConfirmationLink(PendingRegistration{
		Email:       email,
		DisplayName: displayName,
		Password:    password,
	})
	if err != nil {
		return err
	}
	if err := f.Sender.SendConfirmationEmail(email, displayName, link); err != nil {
		// Terminal: there is nothing stored to retry against, the user must
		// submit the form again.
		return fmt.Errorf("sending confirmation email: %w", err)
	}
	slog.Info("registration confirmation sent", "email", email)
	return nil
}

// HandleRegister processes the registration form submission (POST).
func (f *RegisterFlow) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithStatus(w, r, f.registerURL(), "Invalid form data")
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	password := r.FormValue("password")

	if err := f.StartRegistration(email, displayName, password); err != nil {
		if aerr, ok := AsAuthError(err); ok {
			redirectWithStatus(w, r, f.registerURL(), aerr.Message)
			return
		}
		slog.Error("registration", "err", err)
		http.Error(w, "Could not send the confirmation email, please retry", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, f.confirmationPageURL(), http.StatusFound)
}

// HandleRegisterConfirmation renders the check-your-inbox page (GET).
func (f *RegisterFlow) HandleRegisterConfirmation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Confirm Your Email</title></head>
<body>
<h1>Check your inbox</h1>
<p>We sent you a confirmation link. Your account will be created when you follow it.</p>
</body>
</html>`)
}
