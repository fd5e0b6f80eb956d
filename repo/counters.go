package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongounit/pkg/errors"
	mng "github.com/nikmy/mongounit/pkg/mongotools"
)

// Counters hands out increasing sequence numbers, one sequence per key.
func (c *Client) Counters() *Counters {
	name := c.namer.Collection("counters")
	c.register(collectionSpec{name: name})

	return &Counters{coll: c.db.Collection(name)}
}

type Counters struct {
	coll collection
}

// Next reserves the next number of the named sequence. The increment
// deliberately runs outside any ambient transaction: an aborted
// transaction must not hand the number out again, so gaps are fine
// and sequence contention never causes write conflicts.
func (cs *Counters) Next(ctx context.Context, sequence string) (int64, error) {
	ctx = detachedContext{ctx}

	upsert := true
	after := options.After

	result := cs.coll.FindOneAndUpdate(
		ctx,
		mng.ID(sequence),
		mng.Inc("seq", 1),
		&options.FindOneAndUpdateOptions{
			Upsert:         &upsert,
			ReturnDocument: &after,
		},
	)
	if result.Err() != nil {
		return 0, errors.WrapFailf(result.Err(), "increment sequence %q", sequence)
	}

	var doc struct {
		Seq int64 `bson:"seq"`
	}

	err := result.Decode(&doc)
	if err != nil {
		return 0, errors.WrapFail(err, "decode sequence document")
	}

	return doc.Seq, nil
}

// detachedContext keeps the caller's deadline and cancellation but hides
// every context value, so neither the registry slot nor a driver session
// bound by a transaction helper can reach the operation.
type detachedContext struct {
	context.Context
}

func (detachedContext) Value(any) any { return nil }
