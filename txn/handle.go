package txn

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nikmy/mongounit/pkg/errors"
)

// Handle is an explicit, caller-owned transaction over one session.
// Lifecycle: open, then exactly one of Commit or Abort, then Close.
// Closing an open handle counts as an abort: ending the driver session
// is enough to discard the transaction, no extra abort command is sent.
type Handle struct {
	session    Session
	maxRetries uint
	timeout    time.Duration

	done   atomic.Bool
	onDone func(committed bool)
}

func (h *Handle) Session() Session {
	return h.session
}

// Commit commits the server-side transaction, retrying transient
// conflicts within the handle's retry budget. Whatever the result, the
// flow's session binding is cleared: a cancelled commit must not leave
// a stale current session behind.
func (h *Handle) Commit(ctx context.Context) error {
	err := Retry(ctx, h.maxRetries, h.timeout, func(ctx context.Context) error {
		return h.session.Commit(ctx)
	})
	h.finish(err == nil)

	if IsTransient(err) {
		// the store's conflict signal reaches the caller as-is
		return err
	}
	return errors.WrapFail(err, "commit transaction")
}

func (h *Handle) Abort(ctx context.Context) error {
	err := h.session.Abort(ctx)
	h.finish(false)
	return errors.WrapFail(err, "abort transaction")
}

// Close releases the session. Safe to defer right after start: closing
// an already finished handle only ends the session.
func (h *Handle) Close(ctx context.Context) {
	h.finish(false)
	h.session.End(ctx)
}

// finish fires the completion callback exactly once.
func (h *Handle) finish(committed bool) {
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	if h.onDone != nil {
		h.onDone(committed)
	}
}
