package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultValidity is how long an acquired session is trusted before the
// manager re-authenticates on the next Acquire.
const DefaultValidity = 30 * time.Minute

// Credential is a secret obtained from a CredentialSource.
type Credential struct {
	Username string
	Secret   string
}

// CredentialSource yields registry credentials non-interactively.
// Implementations must return ErrMissingCredential when no credential is
// available for the (endpoint, principal) pair; the manager never prompts.
type CredentialSource interface {
	Credential(ctx context.Context, endpoint, principal string) (Credential, error)
}

// Authenticator performs the actual login against a registry endpoint.
// The docker registry client implements this; tests supply mocks.
type Authenticator interface {
	Login(ctx context.Context, endpoint string, cred Credential) (token string, err error)
}

// Session is a time-bounded authenticated context for one registry endpoint.
// Sessions are created and invalidated only by the Manager.
type Session struct {
	Endpoint  string
	Principal string
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the session is still inside its validity window.
func (s *Session) Valid() bool {
	return s != nil && time.Now().Before(s.ExpiresAt)
}

// Manager caches authenticated sessions process-wide, keyed by
// (endpoint, principal). A single mutex guards acquisition and invalidation
// so concurrent publish calls sharing an expired session trigger exactly one
// re-authentication.
type Manager struct {
	mu       sync.Mutex
	source   CredentialSource
	auth     Authenticator
	validity time.Duration
	sessions map[sessionKey]*Session
}

type sessionKey struct {
	endpoint  string
	principal string
}

// NewManager creates a session manager backed by the given credential source
// and authenticator.
func NewManager(source CredentialSource, auth Authenticator, validity time.Duration) *Manager {
	if validity <= 0 {
		validity = DefaultValidity
	}

	return &Manager{
		source:   source,
		auth:     auth,
		validity: validity,
		sessions: make(map[sessionKey]*Session),
	}
}

// Acquire returns a valid session for (endpoint, principal), reusing the
// cached one when it is still inside its validity window. Authentication is
// non-interactive: a missing credential surfaces as ErrMissingCredential.
func (m *Manager) Acquire(ctx context.Context, endpoint, principal string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey{endpoint: endpoint, principal: principal}
	if cached, ok := m.sessions[key]; ok && cached.Valid() {
		return cached, nil
	}

	cred, err := m.source.Credential(ctx, endpoint, principal)
	if err != nil {
		return nil, err
	}

	token, err := m.auth.Login(ctx, endpoint, cred)
	if err != nil {
		return nil, ErrAuthRejected{Endpoint: endpoint, Principal: principal, Err: err}
	}

	sess := &Session{
		Endpoint:  endpoint,
		Principal: principal,
		Token:     token,
		ExpiresAt: time.Now().Add(m.validity),
	}
	m.sessions[key] = sess

	log.Info().
		Str("endpoint", endpoint).
		Str("principal", principal).
		Time("expires_at", sess.ExpiresAt).
		Msg("Registry session acquired")

	return sess, nil
}

// Invalidate drops the cache entry for the given session. Called by the
// publish executor when a push fails with an auth-class error; the next
// Acquire re-authenticates.
func (m *Manager) Invalidate(sess *Session) {
	if sess == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey{endpoint: sess.Endpoint, principal: sess.Principal}
	if cached, ok := m.sessions[key]; ok && cached == sess {
		delete(m.sessions, key)

		log.Warn().
			Str("endpoint", sess.Endpoint).
			Str("principal", sess.Principal).
			Msg("Registry session invalidated")
	}
}

// ErrMissingCredential is returned when a credential source has nothing for
// the requested endpoint and principal.
type ErrMissingCredential struct {
	Endpoint  string
	Principal string
}

func (e ErrMissingCredential) Error() string {
	return fmt.Sprintf("no credential available for %s@%s", e.Principal, e.Endpoint)
}

// ErrAuthRejected is returned when the registry rejects an authentication
// attempt.
type ErrAuthRejected struct {
	Endpoint  string
	Principal string
	Err       error
}

func (e ErrAuthRejected) Error() string {
	return fmt.Sprintf("authentication rejected for %s@%s: %v", e.Principal, e.Endpoint, e.Err)
}

func (e ErrAuthRejected) Unwrap() error {
	return e.Err
}
