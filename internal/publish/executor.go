package publish

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alvesdmateus/image-publisher/internal/registry/session"
)

// Pusher uploads one artifact to one destination. Implementations classify
// failures with the error types in errors.go; ErrAlreadyExists signals an
// idempotent no-op.
type Pusher interface {
	Push(ctx context.Context, sess *session.Session, artifact ArtifactRef, dest DestinationRef) error
}

// Executor defaults.
const (
	// DefaultMaxAttempts bounds transient retries per destination.
	DefaultMaxAttempts = 3

	// DefaultConcurrencyCap bounds the worker pool regardless of how many
	// destinations one publish call carries.
	DefaultConcurrencyCap = 4

	// DefaultPushTimeout bounds a single push attempt.
	DefaultPushTimeout = 5 * time.Minute
)

// Backoff parameters for transient retries.
const (
	baseBackoffDelay     = 500 * time.Millisecond
	maxBackoffDelay      = 15 * time.Second
	backoffMultiplier    = 2.0
	backoffJitterPercent = 0.1
)

// Executor pushes an artifact to a set of destinations with bounded
// concurrency, partial-failure isolation and the retry policy described on
// the Outcome statuses: transient failures back off and retry, auth failures
// re-acquire the session exactly once, everything else fails immediately.
type Executor struct {
	pusher      Pusher
	sessions    *session.Manager
	principal   string
	maxAttempts int
	concurrency int
	pushTimeout time.Duration
	logger      zerolog.Logger
}

// ExecutorConfig contains optional executor tuning; zero values fall back to
// the package defaults.
type ExecutorConfig struct {
	Principal      string
	MaxAttempts    int
	ConcurrencyCap int
	PushTimeout    time.Duration
}

// NewExecutor creates a publish executor.
func NewExecutor(pusher Pusher, sessions *session.Manager, cfg ExecutorConfig, logger zerolog.Logger) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ConcurrencyCap < 1 {
		cfg.ConcurrencyCap = DefaultConcurrencyCap
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}

	return &Executor{
		pusher:      pusher,
		sessions:    sessions,
		principal:   cfg.Principal,
		maxAttempts: cfg.MaxAttempts,
		concurrency: cfg.ConcurrencyCap,
		pushTimeout: cfg.PushTimeout,
		logger:      logger.With().Str("component", "publish-executor").Logger(),
	}
}

// Publish pushes the artifact to every destination and aggregates the
// per-destination outcomes into a report. Destinations are processed
// independently: one failure never prevents attempts on the others. The
// report lists outcomes in destination order even though pushes may complete
// in any order.
//
// Cancellation stops new dispatches; destinations not yet dispatched are
// reported as Failed with a cancellation reason so every destination yields
// exactly one outcome. Pushes already in flight are not aborted: each runs
// to completion or its own push timeout.
func (e *Executor) Publish(ctx context.Context, artifact ArtifactRef, destinations []DestinationRef) (*Report, error) {
	if len(destinations) == 0 {
		return nil, fmt.Errorf("publish requires at least one destination")
	}

	report := &Report{
		Artifact:  artifact,
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, len(destinations)),
	}

	workers := len(destinations)
	if workers > e.concurrency {
		workers = e.concurrency
	}

	e.logger.Info().
		Str("artifact", artifact.String()).
		Int("destinations", len(destinations)).
		Int("workers", workers).
		Msg("Starting publish")

	jobs := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					report.Outcomes[idx] = Outcome{
						Destination: destinations[idx],
						Status:      StatusFailed,
						Reason:      "cancelled before dispatch",
					}
					continue
				}
				report.Outcomes[idx] = e.pushOne(ctx, artifact, destinations[idx])
			}
		}()
	}

	for idx := range destinations {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = time.Now()
	report.Success = len(report.Failed()) == 0

	e.logger.Info().
		Str("artifact", artifact.String()).
		Bool("success", report.Success).
		Int("failed", len(report.Failed())).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Publish finished")

	return report, nil
}

// pushOne drives a single destination through the retry policy and returns
// its terminal outcome.
func (e *Executor) pushOne(ctx context.Context, artifact ArtifactRef, dest DestinationRef) Outcome {
	logger := e.logger.With().Str("destination", dest.String()).Logger()

	outcome := Outcome{Destination: dest}
	started := time.Now()
	defer func() {
		outcome.Duration = time.Since(started)
	}()

	transientAttempts := 0
	authRetried := false

	// A dispatched destination runs to completion or its own push timeout.
	// Caller cancellation only gates dispatch and retry waiting, never an
	// attempt already in flight.
	attemptCtx := context.WithoutCancel(ctx)

	for {
		outcome.Attempts++

		sess, err := e.sessions.Acquire(attemptCtx, dest.Registry, e.principal)
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Reason = err.Error()
			logger.Error().Err(err).Msg("Session acquisition failed")
			return outcome
		}

		pushCtx, cancel := context.WithTimeout(attemptCtx, e.pushTimeout)
		err = e.pusher.Push(pushCtx, sess, artifact, dest)
		cancel()

		switch {
		case err == nil:
			outcome.Status = StatusPushed
			logger.Info().Int("attempts", outcome.Attempts).Msg("Destination pushed")
			return outcome

		case IsAlreadyExists(err):
			outcome.Status = StatusAlreadyExists
			logger.Info().Msg("Destination already up to date")
			return outcome

		case IsAuth(err):
			// One re-acquisition, one retry. Not a loop.
			if authRetried {
				outcome.Status = StatusFailed
				outcome.Reason = fmt.Sprintf("auth rejected after re-authentication: %v", err)
				logger.Error().Err(err).Msg("Push rejected twice by registry auth")
				return outcome
			}
			authRetried = true
			e.sessions.Invalidate(sess)
			logger.Warn().Err(err).Msg("Push rejected by registry auth, re-acquiring session")

		case IsTransient(err) && ctx.Err() == nil:
			transientAttempts++
			if transientAttempts >= e.maxAttempts {
				outcome.Status = StatusFailed
				outcome.Reason = fmt.Sprintf("retries exhausted after %d attempts: %v", transientAttempts, err)
				logger.Error().Err(err).Int("attempts", transientAttempts).Msg("Transient retries exhausted")
				return outcome
			}

			delay := calculateBackoff(transientAttempts)
			logger.Warn().
				Err(err).
				Int("attempt", transientAttempts).
				Int("max_attempts", e.maxAttempts).
				Dur("backoff_delay", delay).
				Msg("Transient push failure, retrying with backoff")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				outcome.Status = StatusFailed
				outcome.Reason = fmt.Sprintf("cancelled while waiting to retry: %v", err)
				return outcome
			}

		default:
			outcome.Status = StatusFailed
			outcome.Reason = err.Error()
			logger.Error().Err(err).Msg("Push failed permanently")
			return outcome
		}
	}
}

// calculateBackoff computes the retry delay with exponential growth and
// jitter.
func calculateBackoff(attempt int) time.Duration {
	delay := float64(baseBackoffDelay) * math.Pow(backoffMultiplier, float64(attempt-1))

	if delay > float64(maxBackoffDelay) {
		delay = float64(maxBackoffDelay)
	}

	// Add jitter (±10%)
	jitter := delay * backoffJitterPercent * (2*rand.Float64() - 1)
	delay += jitter

	return time.Duration(delay)
}
