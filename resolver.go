package authflow

import "errors"

// Resolution describes the relationship between an incoming external
// identity and any existing account.
type Resolution int

const (
	// NoMatch: no account exists for the binding or the email claim.
	NoMatch Resolution = iota

	// ExistingUnlinked: an account exists for the email but has never been
	// linked to this external identity.
	ExistingUnlinked

	// ExistingLinked: an account is already bound to this external identity.
	ExistingLinked
)

func (r Resolution) String() string {
	switch r {
	case ExistingLinked:
		return "ExistingLinked"
	case ExistingUnlinked:
		return "ExistingUnlinked"
	default:
		return "NoMatch"
	}
}

// Resolver answers existence questions against the account store. Pure
// reads, no caching: data can change between requests, so every step
// re-resolves rather than trusting stale transient state.
type Resolver struct {
	Accounts AccountStore
}

// NewResolver creates a Resolver over the given store.
func NewResolver(accounts AccountStore) *Resolver {
	return &Resolver{Accounts: accounts}
}

// ResolveBinding finds the account bound to (provider, providerKey), or nil
// when none is.
func (r *Resolver) ResolveBinding(provider, providerKey string) (*Account, error) {
	account, err := r.Accounts.FindByBinding(provider, providerKey)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	return account, err
}

// ResolveEmail finds the account owning the email address, or nil when none
// does.
func (r *Resolver) ResolveEmail(email string) (*Account, error) {
	account, err := r.Accounts.FindByEmail(email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	return account, err
}

// Resolve classifies an external identity against the store. A binding
// match always takes precedence over an email match: a binding is a
// previously established fact, while an email match could coincide with an
// unrelated registration using the same address.
func (r *Resolver) Resolve(ident ExternalIdentity) (Resolution, *Account, error) {
	account, err := r.ResolveBinding(ident.Provider, ident.ProviderKey)
	if err != nil {
		return NoMatch, nil, err
	}
	if account != nil {
		return ExistingLinked, account, nil
	}

	account, err = r.ResolveEmail(ident.Email)
	if err != nil {
		return NoMatch, nil, err
	}
	if account != nil {
		return ExistingUnlinked, account, nil
	}
	return NoMatch, nil, nil
}
