package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Session field carrying the pending external identity between the callback
// and the display-name step.
const pendingExternalField = "pendingExternalLogin"

// PendingExternalIdentity is the hand-off between a provider callback that
// matched no account and the display-name collection step. It is written to
// the workflow state store at callback time and consumed, exactly once, when
// the display name is submitted.
type PendingExternalIdentity struct {
	Email               string `json:"email"`
	Provider            string `json:"provider"`
	ProviderKey         string `json:"provider_key"`
	ProviderDisplayName string `json:"provider_display_name,omitempty"`
}

// CallbackStatus is the outcome of resolving a provider callback.
type CallbackStatus int

const (
	// CallbackSignedIn: an account was found (or linked) and should be
	// signed in.
	CallbackSignedIn CallbackStatus = iota

	// CallbackAwaitingDisplayName: no account exists yet; the caller must
	// collect a display name before one can be created.
	CallbackAwaitingDisplayName
)

// CallbackResult carries the outcome of CompleteCallback. Account is set
// only for CallbackSignedIn.
type CallbackResult struct {
	Status  CallbackStatus
	Account *Account
}

// ExternalFlow orchestrates the multi-step external-login flow: provider
// callback resolution, idempotent linking against existing accounts, and the
// deferred account creation behind the display-name collection step.
type ExternalFlow struct {
	Accounts  AccountStore
	FlowState FlowStateStore
	Sessions  SessionIssuer

	// Optional resolver; defaults to one over Accounts.
	Resolver *Resolver

	// Optional validation policy; defaults to DefaultPolicy.
	Policy *Policy

	// Entry point users are sent back to on terminal failures.
	// Defaults to "/auth/login".
	LoginURL string

	// Where the display-name collection step lives.
	// Defaults to "/auth/external/displayname".
	DisplayNameURL string

	// Where successful sign-ins land when no return URL was requested.
	// Defaults to "/".
	DefaultRedirect string
}

// Validate reports missing collaborators. Call once at startup; a
// misconfigured flow is a configuration error, not a runtime condition.
func (f *ExternalFlow) Validate() error {
	if f.Accounts == nil {
		return fmt.Errorf("external flow: AccountStore is required")
	}
	if f.FlowState == nil {
		return fmt.Errorf("external flow: FlowStateStore is required")
	}
	if f.Sessions == nil {
		return fmt.Errorf("external flow: SessionIssuer is required")
	}
	return nil
}

func (f *ExternalFlow) resolver() *Resolver {
	if f.Resolver != nil {
		return f.Resolver
	}
	return NewResolver(f.Accounts)
}

func (f *ExternalFlow) policy() Policy {
	if f.Policy != nil {
		return *f.Policy
	}
	return DefaultPolicy()
}

func (f *ExternalFlow) loginURL() string {
	if f.LoginURL != "" {
		return f.LoginURL
	}
	return "/auth/login"
}

func (f *ExternalFlow) displayNameURL() string {
	if f.DisplayNameURL != "" {
		return f.DisplayNameURL
	}
	return "/auth/external/displayname"
}

func (f *ExternalFlow) defaultRedirect() string {
	if f.DefaultRedirect != "" {
		return f.DefaultRedirect
	}
	return "/"
}

// CompleteCallback resolves a verified external identity against the
// account store. Binding resolution takes precedence over email resolution.
// An unlinked existing account has its email marked confirmed (the provider
// already verified it) and the binding added; both writes are idempotent, so
// repeating the callback after a successful link signs in again without
// error. When nothing matches, the identity is parked in the workflow state
// store and nothing is written to durable storage.
func (f *ExternalFlow) CompleteCallback(ctx context.Context, ident ExternalIdentity) (*CallbackResult, error) {
	linked, err := f.resolver().ResolveBinding(ident.Provider, ident.ProviderKey)
	if err != nil {
		return nil, fmt.Errorf("resolving external binding: %w", err)
	}
	if linked != nil {
		slog.Info("external login for linked account", "provider", ident.Provider, "account", linked.ID)
		return &CallbackResult{Status: CallbackSignedIn, Account: linked}, nil
	}

	if ident.Email == "" {
		return nil, NewAuthError(ErrCodeMissingEmailClaim,
			"Could not obtain an email address from the external provider.", "")
	}

	existing, err := f.resolver().ResolveEmail(ident.Email)
	if err != nil {
		return nil, fmt.Errorf("resolving email claim: %w", err)
	}
	if existing != nil {
		if err := f.linkExisting(existing, ident); err != nil {
			return nil, err
		}
		return &CallbackResult{Status: CallbackSignedIn, Account: existing}, nil
	}

	pending := PendingExternalIdentity{
		Email:               ident.Email,
		Provider:            ident.Provider,
		ProviderKey:         ident.ProviderKey,
		ProviderDisplayName: ident.ProviderDisplayName,
	}
	if pending.ProviderDisplayName == "" {
		pending.ProviderDisplayName = ident.Provider
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("encoding pending identity: %w", err)
	}
	if err := f.FlowState.Put(ctx, pendingExternalField, string(raw)); err != nil {
		return nil, fmt.Errorf("storing pending identity: %w", err)
	}
	slog.Info("external login needs display name", "provider", ident.Provider, "email", ident.Email)
	return &CallbackResult{Status: CallbackAwaitingDisplayName}, nil
}

// linkExisting brings an existing, never-linked account up to date with the
// external identity: confirm the email if the provider vouched for it, then
// add the binding unless it is already there.
func (f *ExternalFlow) linkExisting(account *Account, ident ExternalIdentity) error {
	if !account.EmailConfirmed {
		if err := f.Accounts.SetEmailConfirmed(account, true); err != nil {
			return fmt.Errorf("confirming email for linked account: %w", err)
		}
		account.EmailConfirmed = true
	}

	bindings, err := f.Accounts.ListBindings(account)
	if err != nil {
		return fmt.Errorf("listing bindings: %w", err)
	}
	for _, b := range bindings {
		if b.Provider == ident.Provider && b.ProviderKey == ident.ProviderKey {
			return nil // already linked
		}
	}
	binding := Binding{
		Provider:            ident.Provider,
		ProviderKey:         ident.ProviderKey,
		ProviderDisplayName: ident.ProviderDisplayName,
	}
	if err := f.Accounts.AddBinding(account, binding); err != nil {
		slog.Error("adding binding to existing account", "account", account.ID, "provider", ident.Provider, "err", err)
		return NewAuthError(ErrCodeBindingAddition, "Failed to add the external login information.", "")
	}
	slog.Info("linked external identity to existing account", "account", account.ID, "provider", ident.Provider)
	return nil
}

// CompleteDisplayName consumes the pending external identity and creates the
// account as a single logical unit: create with the email pre-confirmed,
// then add the binding, deleting the account again if the binding cannot be
// added. No password is ever collected on this path, so an account without
// its binding would have no way to sign in.
func (f *ExternalFlow) CompleteDisplayName(ctx context.Context, displayName string) (*Account, error) {
	if aerr := f.policy().ValidateDisplayName(displayName); aerr != nil {
		return nil, aerr
	}

	raw, ok, err := f.FlowState.Take(ctx, pendingExternalField)
	if err != nil {
		return nil, fmt.Errorf("reading pending identity: %w", err)
	}
	if !ok {
		return nil, NewAuthError(ErrCodeMissingWorkflowState,
			"The external login information is no longer available. Please sign in again.", "")
	}
	var pending PendingExternalIdentity
	if err := json.Unmarshal([]byte(raw), &pending); err != nil || pending.Email == "" {
		return nil, NewAuthError(ErrCodeMissingWorkflowState,
			"The external login information is invalid. Please sign in again.", "")
	}

	account := &Account{
		Email:          pending.Email,
		DisplayName:    displayName,
		EmailConfirmed: true,
	}
	if err := f.Accounts.Create(account, ""); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			// Raced by another registration path between callback and submit.
			// The pending identity stays consumed: replaying it would carry
			// stale data.
			return nil, NewAuthError(ErrCodeAccountCreation, err.Error(), "email")
		}
		// Retryable infrastructure failure. Put the hand-off back so the
		// user's resubmission can still complete.
		if perr := f.FlowState.Put(ctx, pendingExternalField, raw); perr != nil {
			slog.Error("restoring pending identity", "err", perr)
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	binding := Binding{
		Provider:            pending.Provider,
		ProviderKey:         pending.ProviderKey,
		ProviderDisplayName: pending.ProviderDisplayName,
	}
	if err := f.Accounts.AddBinding(account, binding); err != nil {
		slog.Error("adding binding to new account", "account", account.ID, "provider", pending.Provider, "err", err)
		if derr := f.Accounts.Delete(account); derr != nil {
			slog.Error("compensating delete failed", "account", account.ID, "err", derr)
		}
		return nil, NewAuthError(ErrCodeBindingAddition, "Failed to add the external login information.", "")
	}

	slog.Info("created account from external identity", "account", account.ID, "provider", pending.Provider)
	return account, nil
}

// FinishExternalLogin is the HTTP tail of a provider callback. Provider
// adapters call it with the verified identity, or with providerErr set when
// the provider reported an error (in which case no state is created).
func (f *ExternalFlow) FinishExternalLogin(w http.ResponseWriter, r *http.Request, ident *ExternalIdentity, providerErr string) {
	returnTarget := localRedirectTarget(r, f.defaultRedirect())

	if providerErr != "" {
		redirectWithStatus(w, r, f.loginURL(), fmt.Sprintf("Error from external provider: %s", providerErr))
		return
	}
	if ident == nil {
		redirectWithStatus(w, r, f.loginURL(), "Error loading external login information.")
		return
	}

	result, err := f.CompleteCallback(r.Context(), *ident)
	if err != nil {
		f.handleFlowError(w, r, err)
		return
	}

	switch result.Status {
	case CallbackSignedIn:
		if err := f.Sessions.SignIn(w, r, result.Account, false, ident.Provider); err != nil {
			slog.Error("sign-in after external login", "err", err)
			http.Error(w, "Sign-in failed", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, returnTarget, http.StatusFound)
	case CallbackAwaitingDisplayName:
		target := f.displayNameURL()
		if returnTarget != f.defaultRedirect() {
			target += "?returnUrl=" + url.QueryEscape(returnTarget)
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// HandleDisplayNameForm shows the display-name form (GET). A peek, not a
// take: rendering the form must not consume the pending identity.
func (f *ExternalFlow) HandleDisplayNameForm(w http.ResponseWriter, r *http.Request) {
	ok, err := f.FlowState.Has(r.Context(), pendingExternalField)
	if err != nil {
		http.Error(w, "Temporarily unavailable, please retry", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		redirectWithStatus(w, r, f.loginURL(), "The external login information is no longer available. Please sign in again.")
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Choose a Display Name</title></head>
<body>
<h1>Choose a Display Name</h1>
<form method="POST" action="%s">
	<input type="hidden" name="returnUrl" value="%s">
	<label>Display name: <input type="text" name="display_name" required maxlength="%d"></label>
	<button type="submit">Create Account</button>
</form>
</body>
</html>`, html.EscapeString(f.displayNameURL()), html.EscapeString(localRedirectTarget(r, "")), f.policy().maxDisplayNameLength())
}

// HandleDisplayName processes the display-name submission (POST), creating
// the account and signing it in.
func (f *ExternalFlow) HandleDisplayName(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithStatus(w, r, f.displayNameURL(), "Invalid form data")
		return
	}
	displayName := strings.TrimSpace(r.FormValue("display_name"))

	account, err := f.CompleteDisplayName(r.Context(), displayName)
	if err != nil {
		if aerr, ok := AsAuthError(err); ok {
			switch aerr.Code {
			case ErrCodeMissingField, ErrCodeInvalidDisplayName:
				// Input problem; the pending identity was not consumed, so
				// send the user back to the form.
				redirectWithStatus(w, r, f.displayNameURL(), aerr.Message)
			default:
				redirectWithStatus(w, r, f.loginURL(), aerr.Message)
			}
			return
		}
		f.handleFlowError(w, r, err)
		return
	}

	provider := "" // idp recorded from the pending identity's provider
	if bindings, berr := f.Accounts.ListBindings(account); berr == nil && len(bindings) > 0 {
		provider = bindings[0].Provider
	}
	if err := f.Sessions.SignIn(w, r, account, false, provider); err != nil {
		slog.Error("sign-in after account creation", "err", err)
		http.Error(w, "Sign-in failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, localRedirectTarget(r, f.defaultRedirect()), http.StatusFound)
}

func (f *ExternalFlow) handleFlowError(w http.ResponseWriter, r *http.Request, err error) {
	if aerr, ok := AsAuthError(err); ok {
		redirectWithStatus(w, r, f.loginURL(), aerr.Message)
		return
	}
	slog.Error("external login flow", "err", err)
	http.Error(w, "Temporarily unavailable, please retry", http.StatusInternalServerError)
}
