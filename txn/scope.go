package txn

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nikmy/mongounit/pkg/errors"
)

// Scope is an ambient unit of work: code below the opener joins it
// through the context without any transaction parameter being passed.
// Resources enlist as participants; completion runs prepare on all of
// them, then commit, or rolls everyone back.
type Scope struct {
	id string

	mu    sync.Mutex
	parts []Participant
	hooks []func(ctx context.Context, o Outcome)
	done  bool
}

// Participant is a resource enlisted in a scope.
type Participant interface {
	Prepare(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Outcome int

const (
	Committed Outcome = iota
	Aborted
)

type scopeKey struct{}

// Begin opens a scope and attaches it to the returned context.
func Begin(parent context.Context) (context.Context, *Scope) {
	s := &Scope{id: uuid.NewString()}
	return context.WithValue(parent, scopeKey{}, s), s
}

// Ambient returns the scope the calling flow is inside, if any.
func Ambient(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}

func (s *Scope) ID() string {
	return s.id
}

func (s *Scope) Enlist(p Participant) {
	s.mu.Lock()
	s.parts = append(s.parts, p)
	s.mu.Unlock()
}

// OnDone registers a hook that runs after completion, whatever the
// outcome. Hooks are for cleanup and must not fail.
func (s *Scope) OnDone(hook func(ctx context.Context, o Outcome)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// Complete finishes the scope: all participants prepare, then all
// commit; any prepare failure rolls everyone back instead. Hooks run
// regardless of the outcome.
func (s *Scope) Complete(ctx context.Context) error {
	parts, hooks, err := s.finish()
	if err != nil {
		return err
	}

	outcome := Committed

	var errs []error
	for _, p := range parts {
		if err := p.Prepare(ctx); err != nil {
			errs = append(errs, errors.WrapFail(err, "prepare participant"))
			outcome = Aborted
			break
		}
	}

	switch outcome {
	case Committed:
		for _, p := range parts {
			if err := p.Commit(ctx); err != nil {
				errs = append(errs, errors.WrapFail(err, "commit participant"))
			}
		}
	case Aborted:
		for _, p := range parts {
			if err := p.Rollback(ctx); err != nil {
				errs = append(errs, errors.WrapFail(err, "rollback participant"))
			}
		}
	}

	runHooks(ctx, hooks, outcome)
	return errors.Collapse(errs)
}

// Abort finishes the scope rolling every participant back.
func (s *Scope) Abort(ctx context.Context) error {
	parts, hooks, err := s.finish()
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range parts {
		if err := p.Rollback(ctx); err != nil {
			errs = append(errs, errors.WrapFail(err, "rollback participant"))
		}
	}

	runHooks(ctx, hooks, Aborted)
	return errors.Collapse(errs)
}

// finish flips the scope to done exactly once and snapshots its
// participants and hooks.
func (s *Scope) finish() ([]Participant, []func(context.Context, Outcome), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil, nil, errors.Error("scope is already completed")
	}
	s.done = true

	return s.parts, s.hooks, nil
}

func runHooks(ctx context.Context, hooks []func(context.Context, Outcome), o Outcome) {
	for _, h := range hooks {
		h(ctx, o)
	}
}
