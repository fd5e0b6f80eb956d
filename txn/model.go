package txn

import "context"

// Store hands out sessions. It is the only thing the coordinator needs
// from a database client, so tests can substitute a fake.
type Store interface {
	StartSession(ctx context.Context) (Session, error)
}

// Session is a server-side transactional context. A session belongs to
// exactly one logical flow (or one ambient scope's set of enlisted flows)
// at a time; it is never shared between unrelated concurrent flows.
type Session interface {
	StartTransaction(opts Options) error

	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
	End(ctx context.Context)

	// WithTransaction is the driver-provided run-a-body helper.
	WithTransaction(ctx context.Context, body Body) error

	// Context binds the session into ctx so that collection operations
	// issued with the returned context participate in the transaction.
	Context(ctx context.Context) context.Context
}

type Body func(ctx context.Context) error

type Options struct {
	Consistency ConsistencyModel
	Isolation   IsolationLevel
}

// Provisioner creates not-yet-existing collections up front. Some stores
// disallow implicit collection creation inside a transaction, so the
// coordinator provisions before starting one.
type Provisioner interface {
	Provision(ctx context.Context) error
}

type ConsistencyModel int

const (
	// CausalConsistency means that all logically
	// depending operations are sequential consistent
	CausalConsistency ConsistencyModel = iota

	// SequentialConsistency means that any concurrent
	// operations execution result is equivalent to some
	// sequential execution of those operations
	SequentialConsistency

	// Linearizable means that operations order
	// is consistent with real time order
	Linearizable
)

type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	SnapshotIsolation
	Serializable
)
