package repo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongounit/pkg/errors"
	"github.com/nikmy/mongounit/pkg/logger"
	"github.com/nikmy/mongounit/txn"
)

// Connect opens the mongo connection and builds the client everything
// else hangs off: tenant-scoped naming, collection provisioning and the
// transaction manager.
func Connect(ctx context.Context, log logger.Logger, cfg Config) (*Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetTimeout(time.Duration(cfg.Timeout))

	if cfg.Auth.Username != "" {
		opts = opts.SetAuth(options.Credential{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		})
	}

	if cfg.Pool.MaxSize > 0 {
		opts = opts.
			SetMinPoolSize(cfg.Pool.MinSize).
			SetMaxPoolSize(cfg.Pool.MaxSize)
	}

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.WrapFail(err, "connect to mongo db")
	}

	c := &Client{
		mc:          mc,
		db:          mc.Database(cfg.Database),
		log:         log.With("repo"),
		namer:       NewNamer(cfg.Tenant),
		cfg:         cfg,
		specs:       map[string]collectionSpec{},
		provisioned: map[string]bool{},
	}

	c.mgr = txn.NewManager(log, c,
		txn.WithProvisioner(c),
		txn.WithRetryBudget(cfg.Txn.MaxRetries, time.Duration(cfg.Txn.Timeout)),
	)

	return c, nil
}

type Client struct {
	mc    *mongo.Client
	db    *mongo.Database
	log   logger.Logger
	namer Namer
	cfg   Config
	mgr   *txn.Manager

	mu          sync.Mutex
	specs       map[string]collectionSpec
	provisioned map[string]bool
}

func (c *Client) Txn() *txn.Manager {
	return c.mgr
}

func (c *Client) Namer() Namer {
	return c.namer
}

func (c *Client) Close(ctx context.Context) error {
	return errors.WrapFail(c.mc.Disconnect(ctx), "close mongo db connection")
}
