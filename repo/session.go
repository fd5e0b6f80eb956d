package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/nikmy/mongounit/txn"
)

func (c *Client) StartSession(context.Context) (txn.Session, error) {
	s, err := c.mc.StartSession(options.Session().SetCausalConsistency(true))
	if err != nil {
		return nil, err
	}

	return &session{s: s}, nil
}

type session struct {
	s mongo.Session
}

func (s *session) StartTransaction(opts txn.Options) error {
	return s.s.StartTransaction(transactionOptions(opts))
}

func (s *session) Commit(ctx context.Context) error {
	return s.s.CommitTransaction(ctx)
}

func (s *session) Abort(ctx context.Context) error {
	return s.s.AbortTransaction(ctx)
}

func (s *session) End(ctx context.Context) {
	s.s.EndSession(ctx)
}

func (s *session) WithTransaction(ctx context.Context, body txn.Body) error {
	_, err := s.s.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, body(sc)
	})
	return err
}

func (s *session) Context(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, s.s)
}

func transactionOptions(o txn.Options) *options.TransactionOptions {
	w, r := writeconcern.Majority(), readconcern.Available()

	// linearizable reads are not allowed inside transactions,
	// snapshot is the strongest concern the server accepts here
	switch {
	case o.Isolation >= txn.SnapshotIsolation:
		r = readconcern.Snapshot()
	case o.Isolation >= txn.ReadCommitted:
		r = readconcern.Majority()
	}

	return options.Transaction().
		SetReadConcern(r).
		SetWriteConcern(w)
}
