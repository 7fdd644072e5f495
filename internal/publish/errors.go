package publish

import (
	"context"
	"errors"
	"fmt"
)

// ErrAlreadyExists signals that the destination already holds identical
// content. It is a success-class sentinel, never reported as Failed.
var ErrAlreadyExists = errors.New("destination already up to date")

// InvalidTagError is returned by the resolver when a requested tag violates
// the reference grammar. Raised before any network call.
type InvalidTagError struct {
	Tag    string
	Reason string
}

func (e InvalidTagError) Error() string {
	return fmt.Sprintf("invalid tag %q: %s", e.Tag, e.Reason)
}

// TransientError marks a failure worth retrying: network faults, 5xx-class
// registry responses, push timeouts.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient push failure: %v", e.Err)
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// AuthError marks a 401/403-class rejection. The executor invalidates the
// session and retries exactly once after re-acquisition.
type AuthError struct {
	Err error
}

func (e AuthError) Error() string {
	return fmt.Sprintf("push rejected by registry auth: %v", e.Err)
}

func (e AuthError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that must not be retried: quota, policy
// rejection, malformed manifest.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	return fmt.Sprintf("permanent push failure: %v", e.Err)
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable under the backoff policy.
// Context deadline expiry on a single push counts as transient; the caller's
// own cancellation does not.
func IsTransient(err error) bool {
	var te TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsAuth reports whether err is an auth-class rejection.
func IsAuth(err error) bool {
	var ae AuthError
	return errors.As(err, &ae)
}

// IsAlreadyExists reports whether err is the idempotent re-push sentinel.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
