package genflow

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/petrijr/genflow/internal/persistence"
	"github.com/petrijr/genflow/internal/taskqueue"
	"github.com/petrijr/genflow/pkg/config"
	workerpkg "github.com/petrijr/genflow/pkg/worker"
)

// Runner is a config-assembled dispatcher, queue, and worker. It is the
// deployable counterpart of LocalRunner: the same wiring, with the backends
// chosen by configuration instead of code.
type Runner struct {
	Dispatcher Dispatcher
	Worker     *workerpkg.Worker
	Logger     *zap.Logger

	closers []func(context.Context) error
}

// NewRunner assembles a Runner from configuration. The caller owns the
// returned runner and must Close it to release backend connections.
func NewRunner(ctx context.Context, cfg config.Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	r.Logger = logger

	store, err := r.buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := r.buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d := NewDispatcher(store, WithObserver(NewLoggingObserver(logger)))
	r.Dispatcher = d
	r.Worker = workerpkg.New(d, queue,
		workerpkg.WithLogger(logger),
		workerpkg.WithRetryPolicy(workerpkg.RetryPolicy{
			MaxAttempts:       cfg.Worker.MaxAttempts,
			InitialBackoff:    cfg.Worker.Backoff,
			BackoffMultiplier: 2.0,
			MaxBackoff:        cfg.Worker.MaxBackoff,
		}),
	)
	return r, nil
}

// Close releases backend connections opened by NewRunner.
func (r *Runner) Close(ctx context.Context) error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runner) buildStore(ctx context.Context, cfg config.Config) (FlowStateStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return persistence.NewInMemoryStore(), nil

	case config.DriverSQLite:
		db, err := persistence.OpenSQLite(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func(context.Context) error { return db.Close() })
		return persistence.NewSQLiteStore(db)

	case config.DriverPostgres:
		db, err := persistence.OpenPostgres(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func(context.Context) error { return db.Close() })
		return persistence.NewPostgresStore(db)

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.Addr})
		r.closers = append(r.closers, func(context.Context) error { return client.Close() })
		return persistence.NewRedisStore(client, cfg.Store.Prefix), nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Store.DSN))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, client.Disconnect)
		return persistence.NewMongoStore(client, cfg.Store.Database, ""), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (r *Runner) buildQueue(ctx context.Context, cfg config.Config) (taskqueue.Queue, error) {
	switch cfg.QueueDriver() {
	case config.DriverMemory:
		q := taskqueue.NewInMemoryQueue(cfg.Queue.Capacity)
		r.closers = append(r.closers, func(context.Context) error {
			q.Close()
			return nil
		})
		return q, nil

	case config.DriverSQLite:
		db, err := persistence.OpenSQLite(cfg.QueueDSN())
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func(context.Context) error { return db.Close() })
		return taskqueue.NewSQLiteQueue(db)

	case config.DriverPostgres:
		db, err := persistence.OpenPostgres(cfg.QueueDSN())
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func(context.Context) error { return db.Close() })
		return taskqueue.NewPostgresQueue(db)

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.QueueAddr()})
		r.closers = append(r.closers, func(context.Context) error { return client.Close() })
		return taskqueue.NewRedisQueue(client, cfg.Queue.Prefix), nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.QueueDSN()))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, client.Disconnect)
		return taskqueue.NewMongoQueue(client, cfg.Store.Database, ""), nil

	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver())
	}
}

func buildLogger(cfg config.Logging) (*zap.Logger, error) {
	level := zap.InfoLevel
	switch cfg.Level {
	case "", "info":
	case "debug":
		level = zap.DebugLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown logging level %q", cfg.Level)
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
