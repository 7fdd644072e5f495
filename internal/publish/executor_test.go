package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvesdmateus/image-publisher/internal/registry/session"
)

// countingAuthenticator counts logins so tests can assert the auth retry
// bound.
type countingAuthenticator struct {
	mu     sync.Mutex
	logins int
	err    error
}

func (a *countingAuthenticator) Login(_ context.Context, _ string, _ session.Credential) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins++
	if a.err != nil {
		return "", a.err
	}
	return "token", nil
}

func (a *countingAuthenticator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

// scriptedPusher returns errors per destination in call order, then succeeds.
type scriptedPusher struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   map[string]int
}

func newScriptedPusher() *scriptedPusher {
	return &scriptedPusher{
		scripts: make(map[string][]error),
		calls:   make(map[string]int),
	}
}

func (p *scriptedPusher) script(dest DestinationRef, errs ...error) {
	p.scripts[dest.String()] = errs
}

func (p *scriptedPusher) Push(_ context.Context, _ *session.Session, _ ArtifactRef, dest DestinationRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := dest.String()
	call := p.calls[key]
	p.calls[key]++

	script := p.scripts[key]
	if call < len(script) {
		return script[call]
	}
	return nil
}

func (p *scriptedPusher) callCount(dest DestinationRef) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[dest.String()]
}

func newTestExecutor(t *testing.T, pusher Pusher, auth *countingAuthenticator) *Executor {
	t.Helper()

	sessions := session.NewManager(
		session.StaticSource{Username: "ci-bot", Secret: "s3cret"},
		auth,
		time.Hour,
	)

	return NewExecutor(pusher, sessions, ExecutorConfig{
		Principal:   "ci-bot",
		MaxAttempts: 3,
		PushTimeout: time.Second,
	}, zerolog.Nop())
}

func dest(tag string) DestinationRef {
	return DestinationRef{
		Registry:  "registry.example.com",
		Namespace: "database-team",
		Name:      "catsdb",
		Tag:       tag,
	}
}

func TestPublish_AllPushed(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	destinations := []DestinationRef{dest("2.0"), dest("latest")}

	report, err := executor.Publish(context.Background(), artifact, destinations)
	require.NoError(t, err)

	assert.True(t, report.Success)
	require.Len(t, report.Outcomes, 2)
	for _, outcome := range report.Outcomes {
		assert.Equal(t, StatusPushed, outcome.Status)
		assert.Equal(t, 1, outcome.Attempts)
	}

	// Both pushes reuse one cached session.
	assert.Equal(t, 1, auth.count())
}

func TestPublish_IdempotentRepush(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	destinations := []DestinationRef{dest("2.0")}

	first, err := executor.Publish(context.Background(), artifact, destinations)
	require.NoError(t, err)
	assert.Equal(t, StatusPushed, first.Outcomes[0].Status)

	// Second run: the registry already holds identical content.
	pusher.script(dest("2.0"), ErrAlreadyExists)
	pusher.calls = map[string]int{}

	second, err := executor.Publish(context.Background(), artifact, destinations)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyExists, second.Outcomes[0].Status)
	assert.True(t, second.Success, "idempotent re-push must never fail the report")
}

func TestPublish_PartialFailureIsolation(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	a, b, c := dest("a"), dest("b"), dest("c")
	pusher.script(b,
		PermanentError{Err: errors.New("quota exceeded")},
	)

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	report, err := executor.Publish(context.Background(), artifact, []DestinationRef{a, b, c})
	require.NoError(t, err)

	assert.False(t, report.Success)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, StatusPushed, report.Outcomes[0].Status)
	assert.Equal(t, StatusFailed, report.Outcomes[1].Status)
	assert.Contains(t, report.Outcomes[1].Reason, "quota exceeded")
	assert.Equal(t, StatusPushed, report.Outcomes[2].Status)

	// Permanent failures are not retried.
	assert.Equal(t, 1, pusher.callCount(b))
}

func TestPublish_AuthRetryBound(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	d := dest("2.0")
	pusher.script(d, AuthError{Err: errors.New("401 unauthorized")})

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	report, err := executor.Publish(context.Background(), artifact, []DestinationRef{d})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, StatusPushed, report.Outcomes[0].Status)
	assert.Equal(t, 2, report.Outcomes[0].Attempts)

	// Exactly one re-acquisition: initial login plus one after invalidation.
	assert.Equal(t, 2, auth.count())
}

func TestPublish_AuthFailsTwice(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	d := dest("2.0")
	pusher.script(d,
		AuthError{Err: errors.New("401 unauthorized")},
		AuthError{Err: errors.New("401 unauthorized")},
	)

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	report, err := executor.Publish(context.Background(), artifact, []DestinationRef{d})
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)

	// Re-authentication happens once, not in a loop.
	assert.Equal(t, 2, auth.count())
	assert.Equal(t, 2, pusher.callCount(d))
}

func TestPublish_TransientRetries(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	d := dest("2.0")
	pusher.script(d,
		TransientError{Err: errors.New("503 service unavailable")},
		TransientError{Err: errors.New("connection reset")},
	)

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	report, err := executor.Publish(context.Background(), artifact, []DestinationRef{d})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, StatusPushed, report.Outcomes[0].Status)
	assert.Equal(t, 3, pusher.callCount(d))
}

func TestPublish_TransientRetriesExhausted(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	d := dest("2.0")
	pusher.script(d,
		TransientError{Err: errors.New("timeout")},
		TransientError{Err: errors.New("timeout")},
		TransientError{Err: errors.New("timeout")},
	)

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	report, err := executor.Publish(context.Background(), artifact, []DestinationRef{d})
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Reason, "retries exhausted")
	assert.Equal(t, 3, pusher.callCount(d))
}

func TestPublish_MissingCredential(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}

	sessions := session.NewManager(
		session.StaticSource{}, // no secret available
		auth,
		time.Hour,
	)
	executor := NewExecutor(pusher, sessions, ExecutorConfig{Principal: "ci-bot"}, zerolog.Nop())

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	report, err := executor.Publish(context.Background(), artifact, []DestinationRef{dest("2.0")})
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.Contains(t, report.Outcomes[0].Reason, "no credential available")
	assert.Equal(t, 0, auth.count())
}

func TestPublish_CancellationStopsDispatch(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	destinations := []DestinationRef{dest("a"), dest("b"), dest("c")}

	report, err := executor.Publish(ctx, artifact, destinations)
	require.NoError(t, err)

	assert.False(t, report.Success)
	require.Len(t, report.Outcomes, 3, "every destination yields exactly one outcome")
	for _, outcome := range report.Outcomes {
		assert.Equal(t, StatusFailed, outcome.Status)
		assert.Contains(t, outcome.Reason, "cancelled")
	}
}

// blockingPusher parks inside Push until released or its context expires, so
// tests can cancel the caller while a push is in flight. ctxErr records what
// the push context reported when Push returned.
type blockingPusher struct {
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func newBlockingPusher() *blockingPusher {
	return &blockingPusher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *blockingPusher) Push(ctx context.Context, _ *session.Session, _ ArtifactRef, _ DestinationRef) error {
	close(p.entered)
	select {
	case <-p.release:
		p.ctxErr = ctx.Err()
		return nil
	case <-ctx.Done():
		p.ctxErr = ctx.Err()
		return TransientError{Err: ctx.Err()}
	}
}

type publishResult struct {
	report *Report
	err    error
}

func TestPublish_CancellationLeavesInFlightPushRunning(t *testing.T) {
	pusher := newBlockingPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	done := make(chan publishResult, 1)
	go func() {
		report, err := executor.Publish(ctx, artifact, []DestinationRef{dest("2.0")})
		done <- publishResult{report, err}
	}()

	<-pusher.entered
	cancel()
	close(pusher.release)

	res := <-done
	require.NoError(t, res.err)

	assert.True(t, res.report.Success)
	assert.Equal(t, StatusPushed, res.report.Outcomes[0].Status)
	assert.NoError(t, pusher.ctxErr, "a dispatched push must not observe caller cancellation")
}

func TestPublish_InFlightPushHonorsOwnTimeout(t *testing.T) {
	pusher := newBlockingPusher()
	auth := &countingAuthenticator{}

	sessions := session.NewManager(
		session.StaticSource{Username: "ci-bot", Secret: "s3cret"},
		auth,
		time.Hour,
	)
	executor := NewExecutor(pusher, sessions, ExecutorConfig{
		Principal:   "ci-bot",
		MaxAttempts: 1,
		PushTimeout: 50 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	done := make(chan publishResult, 1)
	go func() {
		report, err := executor.Publish(ctx, artifact, []DestinationRef{dest("2.0")})
		done <- publishResult{report, err}
	}()

	// Cancel while the push is blocked; it keeps running until its own
	// deadline, not the caller's cancellation.
	<-pusher.entered
	cancel()

	res := <-done
	require.NoError(t, res.err)

	assert.False(t, res.report.Success)
	assert.Equal(t, StatusFailed, res.report.Outcomes[0].Status)
	assert.ErrorIs(t, pusher.ctxErr, context.DeadlineExceeded)
	assert.NotErrorIs(t, pusher.ctxErr, context.Canceled)
}

func TestPublish_RequiresDestinations(t *testing.T) {
	pusher := newScriptedPusher()
	auth := &countingAuthenticator{}
	executor := newTestExecutor(t, pusher, auth)

	artifact := ArtifactRef{Name: "catsdb", Version: "2.0"}
	_, err := executor.Publish(context.Background(), artifact, nil)
	assert.Error(t, err)
}
