package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongounit/pkg/errors"
	"github.com/nikmy/mongounit/pkg/logger"
	mng "github.com/nikmy/mongounit/pkg/mongotools"
	"github.com/nikmy/mongounit/txn"
)

var (
	ErrNotFound        = errors.Error("no matching document")
	ErrNotFoundInTrash = errors.Error("no matching document in trash")
)

// collection is the slice of *mongo.Collection the repositories use.
type collection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	UpdateMany(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// For builds a repository for one entity type. The collection name is
// washed and tenant-scoped; indexes and capped options are registered
// for provisioning.
func For[T any](c *Client, entity string, opts ...CollectionOption) *Repo[T] {
	name := c.namer.Collection(entity)

	spec := collectionSpec{name: name}
	for _, o := range opts {
		o(&spec)
	}
	c.register(spec)

	return &Repo[T]{
		coll:       c.db.Collection(name),
		log:        c.log.With(name),
		mgr:        c.mgr,
		autoEnlist: c.cfg.Txn.AutoEnlist,
		now:        time.Now,
	}
}

// Repo forwards CRUD calls to one collection. Deletes are soft: the
// document gets a deleted_at stamp and disappears from reads until
// restored or erased.
type Repo[T any] struct {
	coll       collection
	log        logger.Logger
	mgr        *txn.Manager
	autoEnlist bool
	now        func() time.Time
}

// sessionContext joins the flow's transaction, if there is one: the
// ambient scope first (when auto-enlist is on), then whatever session
// the registry holds for this flow.
func (r *Repo[T]) sessionContext(ctx context.Context) (context.Context, error) {
	if r.autoEnlist {
		if _, ok := txn.Ambient(ctx); ok {
			var err error
			ctx, err = r.mgr.Enlist(ctx, txn.Unbounded)
			if err != nil {
				return ctx, errors.WrapFail(err, "enlist with ambient scope")
			}
		}
	}

	if s, ok := r.mgr.Registry().Current(ctx); ok {
		ctx = s.Context(ctx)
	}

	return ctx, nil
}

func (r *Repo[T]) Insert(ctx context.Context, doc T) (string, error) {
	ctx, err := r.sessionContext(ctx)
	if err != nil {
		return "", err
	}

	result, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", errors.WrapFail(err, "insert document")
	}

	return insertedID(result.InsertedID), nil
}

func (r *Repo[T]) Get(ctx context.Context, id string) (*T, error) {
	ctx, err := r.sessionContext(ctx)
	if err != nil {
		return nil, err
	}

	result := r.coll.FindOne(ctx, buildFilter(alive, ByID(id)))

	err = result.Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WrapFail(err, "find document by id")
	}

	var doc T
	err = result.Decode(&doc)
	if err != nil {
		return nil, errors.WrapFail(err, "decode document")
	}

	return &doc, nil
}

func (r *Repo[T]) Select(ctx context.Context, filters ...Filter) ([]T, error) {
	return r.selectWhere(ctx, alive, filters...)
}

// Trash lists soft-deleted documents only.
func (r *Repo[T]) Trash(ctx context.Context, filters ...Filter) ([]T, error) {
	return r.selectWhere(ctx, trashed, filters...)
}

func (r *Repo[T]) selectWhere(ctx context.Context, v visibility, filters ...Filter) ([]T, error) {
	ctx, err := r.sessionContext(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := r.coll.Find(ctx, buildFilter(v, filters...))
	if err != nil {
		return nil, errors.WrapFail(err, "find documents")
	}

	selected, err := mng.FilterFunc[T](ctx, cur, nil)
	if err != nil {
		return nil, errors.WrapFail(err, "decode documents")
	}

	return selected, nil
}

func (r *Repo[T]) Update(ctx context.Context, fields bson.M, filters ...Filter) (int64, error) {
	ctx, err := r.sessionContext(ctx)
	if err != nil {
		return 0, err
	}

	result, err := r.coll.UpdateMany(ctx, buildFilter(alive, filters...), mng.SetAll(fields))
	if err != nil {
		return 0, errors.WrapFail(err, "update documents")
	}

	return result.ModifiedCount, nil
}

// Delete soft-deletes matching documents.
func (r *Repo[T]) Delete(ctx context.Context, filters ...Filter) (int64, error) {
	ctx, err := r.sessionContext(ctx)
	if err != nil {
		return 0, err
	}

	stamp := r.now().UTC()
	result, err := r.coll.UpdateMany(
		ctx,
		buildFilter(alive, filters...),
		mng.SetAll(bson.M{fieldDeletedAt: stamp}),
	)
	if err != nil {
		return 0, errors.WrapFail(err, "soft-delete documents")
	}

	return result.ModifiedCount, nil
}

// Restore brings soft-deleted documents back. Fails with
// ErrNotFoundInTrash when nothing in the trash matches.
func (r *Repo[T]) Restore(ctx context.Context, filters ...Filter) error {
	ctx, err := r.sessionContext(ctx)
	if err != nil {
		return err
	}

	result, err := r.coll.UpdateMany(
		ctx,
		buildFilter(trashed, filters...),
		mng.Unset(fieldDeletedAt),
	)
	if err != nil {
		return errors.WrapFail(err, "restore documents")
	}

	if result.ModifiedCount == 0 {
		return ErrNotFoundInTrash
	}

	return nil
}

// Erase permanently removes soft-deleted documents.
func (r *Repo[T]) Erase(ctx context.Context, filters ...Filter) (int64, error) {
	ctx, err := r.sessionContext(ctx)
	if err != nil {
		return 0, err
	}

	result, err := r.coll.DeleteMany(ctx, buildFilter(trashed, filters...))
	if err != nil {
		return 0, errors.WrapFail(err, "erase documents")
	}

	return result.DeletedCount, nil
}

func insertedID(v any) string {
	if oid, ok := v.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(v)
}
