// Package authflow implements the account-creation and external-identity
// linking workflows of a web application: callback handling for external
// identity providers, deferred self-registration carried inside a
// confirmation link, email confirmation, and password reset.
//
// # Architecture
//
// Account: a user record in the external account store, identified by ID and
// a unique email address.
//
// Binding: the durable association between an account and one external
// identity, represented as a (provider, providerKey) pair.
//
// Flows: small per-concern state machines. ExternalFlow resolves an incoming
// external identity against the account store and either signs in, links, or
// defers to a display-name collection step. ConfirmFlow completes either a
// classic email confirmation or a deferred registration self-encoded into
// the link. RegisterFlow and ResetFlow initiate those links.
//
// # Basic Usage
//
// Set up collaborators and flows:
//
//	sessionManager := scs.New()
//	accounts := stores.NewFSAccountStore(storagePath)
//	tokens := stores.NewFSTokenStore(storagePath)
//	issuer := &authflow.CookieSessionIssuer{Session: sessionManager}
//
//	external := &authflow.ExternalFlow{
//	    Accounts:  accounts,
//	    FlowState: &authflow.SessionFlowStore{Session: sessionManager},
//	    Sessions:  issuer,
//	}
//	confirm := &authflow.ConfirmFlow{Accounts: accounts, Tokens: tokens, Sessions: issuer}
//
// Mount HTTP handlers (all handlers must run under the session manager's
// LoadAndSave middleware):
//
//	mux.HandleFunc("/auth/external/displayname", external.HandleDisplayName)
//	mux.HandleFunc("/auth/confirm", confirm.HandleConfirm)
//
// Provider adapters in the providers package run the OAuth2 handshake and
// hand a verified identity to ExternalFlow.FinishExternalLogin; the flows
// themselves never speak a provider wire protocol.
//
// # Store Implementations
//
// The file-based stores in the stores package suit development and small
// applications.
// stores/gorm and stores/gae back the same interfaces with a relational
// database and Google Cloud Datastore.
//
// # Consistency
//
// The flows guarantee that a half-created account is never left behind: the
// display-name step creates the account and its binding as one logical unit,
// deleting the account again if the binding cannot be added, and the
// deferred-registration link creates at most one account no matter how often
// it is replayed. Transient hand-off data (the pending external identity)
// lives in a single-read-then-clear workflow state store and is consumed on
// first read.
package authflow
