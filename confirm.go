package authflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// PendingRegistration is a self-contained registration awaiting email
// confirmation. The whole struct is serialized into the confirmation link,
// so no server-side state exists until the link is followed.
type PendingRegistration struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// ConfirmFlow turns confirmation links back into account state. It serves
// two link shapes on one endpoint: payload links carrying a full
// PendingRegistration (deferred registration) and id+code links referencing
// a stored token (classic confirm-my-email for accounts that already exist).
type ConfirmFlow struct {
	Accounts AccountStore
	Tokens   TokenStore
	Sessions SessionIssuer

	// Where confirmed users land. Defaults to "/".
	SuccessRedirect string

	// Entry point users are sent to on failures. Defaults to "/auth/login".
	LoginURL string
}

// Validate reports missing collaborators.
func (f *ConfirmFlow) Validate() error {
	if f.Accounts == nil {
		return fmt.Errorf("confirm flow: AccountStore is required")
	}
	if f.Tokens == nil {
		return fmt.Errorf("confirm flow: TokenStore is required")
	}
	if f.Sessions == nil {
		return fmt.Errorf("confirm flow: SessionIssuer is required")
	}
	return nil
}

func (f *ConfirmFlow) successRedirect() string {
	if f.SuccessRedirect != "" {
		return f.SuccessRedirect
	}
	return "/"
}

func (f *ConfirmFlow) loginURL() string {
	if f.LoginURL != "" {
		return f.LoginURL
	}
	return "/auth/login"
}

// ConfirmRegistration materializes an account from a payload-carrying
// confirmation link. The link is its own single-use guard: the first visit
// creates the account, every later visit finds the email taken and reports
// it as already registered, so a replayed link can never create a second
// account or reset the first one.
func (f *ConfirmFlow) ConfirmRegistration(payload string) (*Account, error) {
	raw, err := DecodeToken(payload)
	if err != nil {
		return nil, NewAuthError(ErrCodeInvalidPayload, "Error confirming your email.", "")
	}
	var pending PendingRegistration
	if err := json.Unmarshal(raw, &pending); err != nil || pending.Email == "" {
		return nil, NewAuthError(ErrCodeInvalidPayload, "Error confirming your email.", "")
	}

	if existing, err := f.Accounts.FindByEmail(pending.Email); err == nil && existing != nil {
		return nil, NewAuthError(ErrCodeAlreadyRegistered,
			"This email is already registered. Please sign in instead.", "email")
	} else if err != nil && err != ErrAccountNotFound {
		return nil, fmt.Errorf("checking registration email: %w", err)
	}

	account := &Account{
		Email:          pending.Email,
		DisplayName:    pending.DisplayName,
		EmailConfirmed: true,
	}
	if err := f.Accounts.Create(account, pending.Password); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, NewAuthError(ErrCodeAlreadyRegistered,
				"This email is already registered. Please sign in instead.", "email")
		}
		return nil, fmt.Errorf("creating account from confirmation: %w", err)
	}
	slog.Info("account created from confirmation link", "account", account.ID)
	return account, nil
}

// ConfirmEmail verifies an id+code confirmation link against the token
// store and marks the account's email confirmed. The token is single-use.
func (f *ConfirmFlow) ConfirmEmail(accountID, code string) (*Account, error) {
	account, err := f.Accounts.FindByID(accountID)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, NewAuthError(ErrCodeConfirmationFailed, "Error confirming your email.", "")
		}
		return nil, fmt.Errorf("loading account for confirmation: %w", err)
	}

	raw, err := DecodeToken(code)
	if err != nil {
		return nil, NewAuthError(ErrCodeConfirmationFailed, "Error confirming your email.", "")
	}

	token, err := f.Tokens.GetToken(string(raw))
	if err != nil {
		if err == ErrTokenNotFound {
			return nil, NewAuthError(ErrCodeConfirmationFailed, "Error confirming your email.", "")
		}
		return nil, fmt.Errorf("loading confirmation token: %w", err)
	}
	if token.AccountID != account.ID || !token.IsValid(TokenTypeEmailConfirm) {
		return nil, NewAuthError(ErrCodeConfirmationFailed, "Error confirming your email.", "")
	}

	if !account.EmailConfirmed {
		if err := f.Accounts.SetEmailConfirmed(account, true); err != nil {
			return nil, fmt.Errorf("confirming email: %w", err)
		}
		account.EmailConfirmed = true
	}
	if err := f.Tokens.DeleteToken(token.Token); err != nil {
		slog.Warn("deleting used confirmation token", "err", err)
	}
	slog.Info("email confirmed", "account", account.ID)
	return account, nil
}

// HandleConfirm serves the confirmation endpoint for both link shapes.
// When both a payload and an id+code pair are present the payload wins; a
// link generated by the deferred path is complete in itself.
func (f *ConfirmFlow) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payload := q.Get("payload")
	accountID := q.Get("id")
	code := q.Get("code")

	var account *Account
	var err error
	switch {
	case payload != "":
		account, err = f.ConfirmRegistration(payload)
	case accountID != "" && code != "":
		account, err = f.ConfirmEmail(accountID, code)
	default:
		redirectWithStatus(w, r, f.loginURL(), "Error confirming your email.")
		return
	}
	if err != nil {
		if aerr, ok := AsAuthError(err); ok {
			redirectWithStatus(w, r, f.loginURL(), aerr.Message)
			return
		}
		slog.Error("email confirmation", "err", err)
		http.Error(w, "Temporarily unavailable, please retry", http.StatusInternalServerError)
		return
	}

	if err := f.Sessions.SignIn(w, r, account, false, ""); err != nil {
		slog.Error("sign-in after confirmation", "err", err)
		redirectWithStatus(w, r, f.loginURL(), "Your email is confirmed. Please sign in.")
		return
	}
	http.Redirect(w, r, localRedirectTarget(r, f.successRedirect()), http.StatusFound)
}
