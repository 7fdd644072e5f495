package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingAuthenticator counts logins and can hold them open so tests can
// provoke concurrent acquisition.
type blockingAuthenticator struct {
	mu     sync.Mutex
	logins int
	delay  time.Duration
	err    error
}

func (a *blockingAuthenticator) Login(_ context.Context, _ string, _ Credential) (string, error) {
	a.mu.Lock()
	a.logins++
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return "", a.err
	}
	return "token", nil
}

func (a *blockingAuthenticator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

func TestAcquire_CachesSession(t *testing.T) {
	auth := &blockingAuthenticator{}
	mgr := NewManager(StaticSource{Username: "ci-bot", Secret: "s3cret"}, auth, time.Hour)

	first, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	second, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	assert.Same(t, first, second, "second acquire must return the cached session")
	assert.Equal(t, 1, auth.count())
}

func TestAcquire_SeparateCacheEntries(t *testing.T) {
	auth := &blockingAuthenticator{}
	mgr := NewManager(StaticSource{Username: "ci-bot", Secret: "s3cret"}, auth, time.Hour)

	_, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	_, err = mgr.Acquire(context.Background(), "other.example.com", "ci-bot")
	require.NoError(t, err)

	assert.Equal(t, 2, auth.count(), "different endpoints need separate sessions")
}

func TestAcquire_MissingCredential(t *testing.T) {
	auth := &blockingAuthenticator{}
	mgr := NewManager(StaticSource{}, auth, time.Hour)

	_, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.Error(t, err)

	var missing ErrMissingCredential
	assert.True(t, errors.As(err, &missing), "expected ErrMissingCredential, got %T", err)
	assert.Equal(t, 0, auth.count(), "no login attempt without a credential")
}

func TestAcquire_AuthRejected(t *testing.T) {
	auth := &blockingAuthenticator{err: errors.New("invalid token")}
	mgr := NewManager(StaticSource{Username: "ci-bot", Secret: "bad"}, auth, time.Hour)

	_, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.Error(t, err)

	var rejected ErrAuthRejected
	assert.True(t, errors.As(err, &rejected), "expected ErrAuthRejected, got %T", err)
}

func TestInvalidate_ForcesReauthentication(t *testing.T) {
	auth := &blockingAuthenticator{}
	mgr := NewManager(StaticSource{Username: "ci-bot", Secret: "s3cret"}, auth, time.Hour)

	sess, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	mgr.Invalidate(sess)

	replacement, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	assert.NotSame(t, sess, replacement)
	assert.Equal(t, 2, auth.count())
}

func TestInvalidate_StaleSessionIsNoOp(t *testing.T) {
	auth := &blockingAuthenticator{}
	mgr := NewManager(StaticSource{Username: "ci-bot", Secret: "s3cret"}, auth, time.Hour)

	sess, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	mgr.Invalidate(sess)
	replacement, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	// Invalidating the already-replaced session must not evict the
	// replacement.
	mgr.Invalidate(sess)

	cached, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)
	assert.Same(t, replacement, cached)
	assert.Equal(t, 2, auth.count())
}

func TestAcquire_ConcurrentSingleAuthentication(t *testing.T) {
	auth := &blockingAuthenticator{delay: 50 * time.Millisecond}
	mgr := NewManager(StaticSource{Username: "ci-bot", Secret: "s3cret"}, auth, time.Hour)

	const goroutines = 8

	var wg sync.WaitGroup
	sessions := make([]*Session, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sessions[idx], errs[idx] = mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i], "all goroutines must share one session")
	}

	assert.Equal(t, 1, auth.count(), "one acquisition wins, the rest reuse its result")
}

func TestAcquire_ExpiredSessionReacquired(t *testing.T) {
	auth := &blockingAuthenticator{}
	mgr := NewManager(StaticSource{Username: "ci-bot", Secret: "s3cret"}, auth, 10*time.Millisecond)

	_, err := mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = mgr.Acquire(context.Background(), "registry.example.com", "ci-bot")
	require.NoError(t, err)

	assert.Equal(t, 2, auth.count())
}
