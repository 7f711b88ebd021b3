// Package redis provides a Redis-backed workflow state store for deployments
// where browser flows can land on different instances between redirect hops.
package redis

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	af "github.com/manualhq/authflow"
)

// Default TTL for pending workflow state. An abandoned callback should not
// linger much longer than a user plausibly takes to pick a display name.
const DefaultStateTTL = 10 * time.Minute

// FlowStateStore implements af.FlowStateStore on Redis. Fields are scoped
// to a browser session via SessionID, which typically reads a session
// cookie or token from the request context.
type FlowStateStore struct {
	Client *goredis.Client

	// SessionID extracts the owning session's identifier from the request
	// context. Required; the store cannot scope fields without it.
	SessionID func(ctx context.Context) (string, error)

	// TTL bounds how long unconsumed state lives. Defaults to
	// DefaultStateTTL.
	TTL time.Duration
}

// NewFlowStateStore builds a store whose fields are scoped by the given
// session manager style ID function.
func NewFlowStateStore(client *goredis.Client, sessionID func(ctx context.Context) (string, error)) *FlowStateStore {
	return &FlowStateStore{Client: client, SessionID: sessionID}
}

func (s *FlowStateStore) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultStateTTL
}

func (s *FlowStateStore) redisKey(ctx context.Context, field string) (string, error) {
	if s.SessionID == nil {
		return "", fmt.Errorf("flow state: SessionID func is required: %w", af.ErrStateUnavailable)
	}
	sid, err := s.SessionID(ctx)
	if err != nil || sid == "" {
		return "", fmt.Errorf("flow state: no session id: %w", af.ErrStateUnavailable)
	}
	return "authflow:state:" + sid + ":" + field, nil
}

// Put stores a field for the caller's session with the configured TTL.
func (s *FlowStateStore) Put(ctx context.Context, field, value string) error {
	key, err := s.redisKey(ctx, field)
	if err != nil {
		return err
	}
	if err := s.Client.Set(ctx, key, value, s.ttl()).Err(); err != nil {
		return fmt.Errorf("flow state put: %v: %w", err, af.ErrStateUnavailable)
	}
	return nil
}

// Take reads and clears a field atomically via GETDEL, so two racing
// consumers can never both observe the value.
func (s *FlowStateStore) Take(ctx context.Context, field string) (string, bool, error) {
	key, err := s.redisKey(ctx, field)
	if err != nil {
		return "", false, err
	}
	value, err := s.Client.GetDel(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("flow state take: %v: %w", err, af.ErrStateUnavailable)
	}
	return value, true, nil
}

// Has peeks at a field without consuming it.
func (s *FlowStateStore) Has(ctx context.Context, field string) (bool, error) {
	key, err := s.redisKey(ctx, field)
	if err != nil {
		return false, err
	}
	n, err := s.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("flow state has: %v: %w", err, af.ErrStateUnavailable)
	}
	return n > 0, nil
}

// CookieSessionID returns a SessionID func reading the named cookie from
// the request stashed in the context by WithRequest. It suits deployments
// that scope flow state by an existing session cookie.
func CookieSessionID(cookieName string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		r, ok := ctx.Value(requestKey{}).(*http.Request)
		if !ok {
			return "", fmt.Errorf("no request in context")
		}
		c, err := r.Cookie(cookieName)
		if err != nil {
			return "", err
		}
		return c.Value, nil
	}
}

type requestKey struct{}

// WithRequest stashes the request for CookieSessionID.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}
