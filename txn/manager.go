package txn

import (
	"context"
	"time"

	"github.com/nikmy/mongounit/pkg/errors"
	"github.com/nikmy/mongounit/pkg/logger"
)

// ErrNoScope is returned by Enlist when the calling flow is not inside
// an ambient scope. Enlist must only be called once the caller has
// established that a scope exists.
var ErrNoScope = errors.Error("no ambient scope present")

type ManagerOption func(*Manager)

// WithProvisioner makes the manager provision collections before any
// transaction starts.
func WithProvisioner(p Provisioner) ManagerOption {
	return func(m *Manager) { m.prov = p }
}

// WithRetryBudget sets the default retry budget for commits.
func WithRetryBudget(maxRetries uint, timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.maxRetries = maxRetries
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

func NewManager(log logger.Logger, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:     log.With("txn"),
		store:   store,
		reg:     NewRegistry(),
		timeout: DefaultRetryTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Manager coordinates sessions for logical flows: it owns the registry,
// opens explicit handles, and bridges flows into ambient scopes.
type Manager struct {
	log   logger.Logger
	store Store
	reg   *Registry
	prov  Provisioner

	maxRetries uint
	timeout    time.Duration
}

func (m *Manager) Registry() *Registry {
	return m.reg
}

// Start opens an explicit transaction: a fresh session with a started
// server-side transaction, bound as the current session of the returned
// context. The handle's completion clears the binding again.
func (m *Manager) Start(ctx context.Context, opts Options) (context.Context, *Handle, error) {
	err := m.provision(ctx)
	if err != nil {
		return ctx, nil, err
	}

	s, err := m.store.StartSession(ctx)
	if err != nil {
		return ctx, nil, errors.WrapFail(err, "start session")
	}

	err = s.StartTransaction(opts)
	if err != nil {
		s.End(ctx)
		return ctx, nil, errors.WrapFail(err, "start transaction")
	}

	ctx, cell := m.reg.bind(ctx, s)
	h := &Handle{
		session:    s,
		maxRetries: m.maxRetries,
		timeout:    m.timeout,
		onDone: func(bool) {
			cell.set(nil)
		},
	}

	return ctx, h, nil
}

// Enlist joins the calling flow to its ambient scope's transaction,
// starting one on first use. Subsequent calls on any continuation of
// the same scope reuse the session: either through the inherited slot,
// or through the registry's scope map when the slot was not inherited.
// Fails with ErrNoScope outside any scope.
func (m *Manager) Enlist(ctx context.Context, maxRetries uint) (context.Context, error) {
	if _, ok := m.reg.Current(ctx); ok {
		return ctx, nil
	}

	sc, ok := Ambient(ctx)
	if !ok {
		return ctx, ErrNoScope
	}

	if cell, ok := m.reg.lookupSlot(sc.ID()); ok {
		// a sibling continuation of this scope already started the session
		return m.reg.adopt(ctx, cell), nil
	}

	err := m.provision(ctx)
	if err != nil {
		return ctx, err
	}

	s, err := m.store.StartSession(ctx)
	if err != nil {
		return ctx, errors.WrapFail(err, "start session")
	}

	err = s.StartTransaction(Options{})
	if err != nil {
		s.End(ctx)
		return ctx, errors.WrapFail(err, "start transaction")
	}

	ctx, cell := m.reg.bind(ctx, s)
	m.reg.register(sc.ID(), cell)

	sc.Enlist(enlistment{
		session:    s,
		maxRetries: maxRetries,
		timeout:    m.timeout,
	})
	sc.OnDone(func(ctx context.Context, _ Outcome) {
		m.reg.Remove(sc.ID())
		cell.set(nil)
		s.End(ctx)
	})

	m.log.Debugf("enlisted with scope %s", sc.ID())
	return ctx, nil
}

type Kind int

const (
	// KindSession runs the body through the driver's own transaction
	// helper on a dedicated session.
	KindSession Kind = iota

	// KindScope runs the body inside a fresh ambient scope, so nested
	// repository calls auto-enlist into one shared transaction.
	KindScope
)

// WithTxn runs body transactionally, re-running it from the beginning
// on transient conflicts within the retry budget.
func (m *Manager) WithTxn(ctx context.Context, kind Kind, maxRetries uint, body Body) error {
	switch kind {
	case KindSession:
		return m.withSession(ctx, maxRetries, body)
	case KindScope:
		return m.withScope(ctx, maxRetries, body)
	default:
		return errors.Errorf("unknown transaction kind %d", kind)
	}
}

func (m *Manager) withSession(ctx context.Context, maxRetries uint, body Body) error {
	err := m.provision(ctx)
	if err != nil {
		return err
	}

	s, err := m.store.StartSession(ctx)
	if err != nil {
		return errors.WrapFail(err, "start session")
	}
	defer s.End(ctx)

	ctx, cell := m.reg.bind(ctx, s)
	defer cell.set(nil)

	return Retry(ctx, maxRetries, m.timeout, func(ctx context.Context) error {
		return s.WithTransaction(ctx, body)
	})
}

func (m *Manager) withScope(ctx context.Context, maxRetries uint, body Body) error {
	return Retry(ctx, maxRetries, m.timeout, func(ctx context.Context) error {
		ctx, sc := Begin(ctx)

		ctx, err := m.Enlist(ctx, maxRetries)
		if err != nil {
			return err
		}

		err = body(ctx)
		if err != nil {
			m.log.Info(errors.Wrap(err, "aborting scope"))
			m.log.Error(errors.WrapFail(sc.Abort(ctx), "abort scope"))
			return err
		}

		return sc.Complete(ctx)
	})
}

func (m *Manager) provision(ctx context.Context) error {
	if m.prov == nil {
		return nil
	}
	return errors.WrapFail(m.prov.Provision(ctx), "provision collections")
}

// enlistment ties one session to an ambient scope: commit goes through
// the retry policy, rollback maps to abort, prepare just acknowledges.
type enlistment struct {
	session    Session
	maxRetries uint
	timeout    time.Duration
}

func (e enlistment) Prepare(context.Context) error {
	return nil
}

func (e enlistment) Commit(ctx context.Context) error {
	return Retry(ctx, e.maxRetries, e.timeout, e.session.Commit)
}

func (e enlistment) Rollback(ctx context.Context) error {
	return e.session.Abort(ctx)
}
