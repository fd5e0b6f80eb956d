package txn

import (
	"context"
	"time"

	"github.com/nikmy/mongounit/pkg/errors"
)

const (
	// TransientErrorLabel marks operations the store considers
	// worth running again, typically after a write conflict.
	TransientErrorLabel = "TransientTransactionError"

	// UnknownCommitErrorLabel marks a commit whose outcome is
	// unknown to the client; re-committing is safe.
	UnknownCommitErrorLabel = "UnknownTransactionCommitResult"
)

const (
	// Unbounded disables the attempt bound: the body is retried
	// for as long as the retry timeout allows.
	Unbounded uint = 0

	DefaultRetryTimeout = 2 * time.Minute
)

type labeled interface {
	HasErrorLabel(label string) bool
}

// IsTransient reports whether the store classified err as retryable.
// Classification goes by error label, not by error type.
func IsTransient(err error) bool {
	var l labeled
	if !errors.As(err, &l) {
		return false
	}
	return l.HasErrorLabel(TransientErrorLabel) || l.HasErrorLabel(UnknownCommitErrorLabel)
}

// Retry runs body and re-runs it from the beginning while the store
// reports a transient conflict. Non-transient errors propagate at once.
//
// The stopping rule is conjunctive: retrying stops only once maxRetries
// attempts have been spent AND timeout has elapsed. A body that burns
// through its attempts before the timeout keeps retrying until the
// timeout elapses too, and vice versa. With maxRetries == Unbounded the
// attempt bound is spent after the first failure, leaving the timeout
// as the only limit. This matches the behavior the layer has always
// had; see the dual-bound note in DESIGN.md before changing it.
//
// On give-up the original transient error is returned unchanged, so
// callers matching on the store's error labels keep working.
func Retry(ctx context.Context, maxRetries uint, timeout time.Duration, body Body) error {
	start := time.Now()

	var attempts uint
	for {
		err := body(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}

		attempts++
		if attempts > maxRetries && time.Since(start) >= timeout {
			return err
		}

		if ctx.Err() != nil {
			return err
		}
	}
}
