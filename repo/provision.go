package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongounit/pkg/errors"
)

type collectionSpec struct {
	name      string
	indexes   []mongo.IndexModel
	capped    bool
	sizeBytes int64
	maxDocs   int64
}

type CollectionOption func(*collectionSpec)

func WithIndex(name string, keys bson.D) CollectionOption {
	return func(s *collectionSpec) {
		s.indexes = append(s.indexes, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(name),
		})
	}
}

func WithUniqueIndex(name string, keys bson.D) CollectionOption {
	return func(s *collectionSpec) {
		s.indexes = append(s.indexes, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(name).SetUnique(true),
		})
	}
}

func Capped(sizeBytes, maxDocs int64) CollectionOption {
	return func(s *collectionSpec) {
		s.capped = true
		s.sizeBytes = sizeBytes
		s.maxDocs = maxDocs
	}
}

func (c *Client) register(spec collectionSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[spec.name] = spec
}

// Provision creates every registered collection that does not exist yet,
// with its indexes and capped options. The transaction manager calls it
// before starting a transaction, because collections cannot be created
// implicitly inside one. Idempotent.
func (c *Client) Provision(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, spec := range c.specs {
		if c.provisioned[name] {
			continue
		}

		err := c.provisionOne(ctx, spec)
		if err != nil {
			return errors.WrapFailf(err, "provision collection %q", name)
		}

		c.provisioned[name] = true
	}

	return nil
}

func (c *Client) provisionOne(ctx context.Context, spec collectionSpec) error {
	names, err := c.db.ListCollectionNames(ctx, bson.M{"name": spec.name})
	if err != nil {
		return errors.WrapFail(err, "list collections")
	}

	if len(names) == 0 {
		opts := options.CreateCollection()
		if spec.capped {
			opts = opts.SetCapped(true).SetSizeInBytes(spec.sizeBytes)
			if spec.maxDocs > 0 {
				opts = opts.SetMaxDocuments(spec.maxDocs)
			}
		}

		err = c.db.CreateCollection(ctx, spec.name, opts)
		if err != nil {
			return errors.WrapFail(err, "create collection")
		}
	}

	if len(spec.indexes) > 0 {
		_, err = c.db.Collection(spec.name).Indexes().CreateMany(ctx, spec.indexes)
		if err != nil {
			return errors.WrapFail(err, "create indexes")
		}
	}

	return nil
}
