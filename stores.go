package authflow

import (
	"net/http"
	"time"
)

// Account is the user record held by the external account store. Email is
// unique across the store; the flows check uniqueness before every creation
// path because the flow, not the store, decides whether a create, a link or
// a reject is appropriate.
type Account struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Binding is the durable association between an account and one external
// identity.
type Binding struct {
	Provider            string    `json:"provider"`
	ProviderKey         string    `json:"provider_key"` // provider-scoped unique id
	ProviderDisplayName string    `json:"provider_display_name,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// ExternalIdentity is a verified identity yielded by a provider adapter
// after its own protocol has completed.
type ExternalIdentity struct {
	Provider            string
	ProviderKey         string
	ProviderDisplayName string
	Email               string // email claim; required by the flows
	Name                string // display name claim, optional
}

// AccountStore manages account records and their external-login bindings.
type AccountStore interface {
	// FindByEmail retrieves an account by email. Returns ErrAccountNotFound
	// when no account matches.
	FindByEmail(email string) (*Account, error)

	// FindByID retrieves an account by ID. Returns ErrAccountNotFound when
	// no account matches.
	FindByID(id string) (*Account, error)

	// FindByBinding retrieves the account bound to the given external
	// identity. Returns ErrAccountNotFound when none is.
	FindByBinding(provider, providerKey string) (*Account, error)

	// Create persists a new account, assigning an ID if unset. password is
	// optional; when non-empty it is hashed and stored. Returns an error
	// matching ErrEmailTaken when the email is already registered.
	Create(account *Account, password string) error

	// Delete removes an account and all of its bindings.
	Delete(account *Account) error

	// Update persists changes to an existing account.
	Update(account *Account) error

	// SetEmailConfirmed marks the account's email as confirmed (or not).
	SetEmailConfirmed(account *Account, confirmed bool) error

	// SetPassword replaces the account's password.
	SetPassword(account *Account, password string) error

	// AddBinding records an external-login binding for the account. Fails
	// when the (provider, providerKey) pair is already bound elsewhere.
	AddBinding(account *Account, binding Binding) error

	// ListBindings returns all external-login bindings for the account.
	ListBindings(account *Account) ([]Binding, error)
}

// SessionIssuer signs a resolved account in or out of the caller's browser
// session. Implementations own cookies and session state; the flows only
// hand them explicit account values.
type SessionIssuer interface {
	// SignIn establishes a session for the account. provider names the
	// external provider used to authenticate, or is empty for email-based
	// sign-in. persistent asks for a session outliving the browser.
	SignIn(w http.ResponseWriter, r *http.Request, account *Account, persistent bool, provider string) error

	// SignOut clears the caller's session.
	SignOut(w http.ResponseWriter, r *http.Request) error
}
