package authflow

import (
	"context"

	"github.com/alexedwards/scs/v2"
)

// FlowStateStore holds data that must survive exactly one redirect hop for
// one browser session. Take reads and atomically clears a field; a second
// Take for the same field returns absent. Has is a peek without consuming.
//
// Storage failures surface as errors wrapping ErrStateUnavailable, never as
// "no pending state".
type FlowStateStore interface {
	Put(ctx context.Context, field, value string) error
	Take(ctx context.Context, field string) (value string, ok bool, err error)
	Has(ctx context.Context, field string) (bool, error)
}

// SessionFlowStore keeps workflow state in the caller's scs session. Session
// scoping comes from the request context, so all callers must run under the
// session manager's LoadAndSave middleware.
type SessionFlowStore struct {
	Session *scs.SessionManager

	// Prefix namespaces the session keys. Defaults to "flow:".
	Prefix string
}

func (s *SessionFlowStore) key(field string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "flow:"
	}
	return prefix + field
}

// Put stores a field for the current session.
func (s *SessionFlowStore) Put(ctx context.Context, field, value string) (err error) {
	defer recoverStateUnavailable(&err)
	s.Session.Put(ctx, s.key(field), value)
	return nil
}

// Take reads and clears a field in one operation. scs removes the key from
// the session data before the deferred save commits, so there is no window
// in which a retry could read the value twice.
func (s *SessionFlowStore) Take(ctx context.Context, field string) (value string, ok bool, err error) {
	defer recoverStateUnavailable(&err)
	key := s.key(field)
	if !s.Session.Exists(ctx, key) {
		return "", false, nil
	}
	return s.Session.PopString(ctx, key), true, nil
}

// Has peeks at a field without consuming it.
func (s *SessionFlowStore) Has(ctx context.Context, field string) (ok bool, err error) {
	defer recoverStateUnavailable(&err)
	return s.Session.Exists(ctx, s.key(field)), nil
}

// scs panics when the context carries no loaded session data (middleware
// missing or backing store unreachable at load time). Report that as the
// state store being unavailable so callers surface a retryable failure.
func recoverStateUnavailable(err *error) {
	if recover() != nil {
		*err = ErrStateUnavailable
	}
}
