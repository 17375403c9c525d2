package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/engine"
	"github.com/mnbuhl/atomizer/lock/redislock"
	"github.com/mnbuhl/atomizer/middleware"
	"github.com/mnbuhl/atomizer/store"
	"github.com/mnbuhl/atomizer/store/memory"
	"github.com/mnbuhl/atomizer/store/postgres"
)

// message is the payload of the built-in log job.
type message struct {
	Text string `json:"text"`
}

// app holds what every command needs.
type app struct {
	cfg    config
	logger *slog.Logger
	store  store.Store
	engine *engine.Engine
	closer []func() error
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: cfg.logger()}

	if cfg.PostgresDSN != "" {
		pg, err := postgres.New(ctx, cfg.PostgresDSN,
			postgres.WithLogger(a.logger),
			postgres.WithMaxConns(cfg.PostgresConns),
			postgres.WithApplicationName("atomizer-cli"),
		)
		if err != nil {
			return nil, err
		}
		a.store = pg
	} else {
		a.logger.Warn("ATOMIZER_POSTGRES_DSN not set, using in-memory store")
		a.store = memory.New()
	}
	a.closer = append(a.closer, a.store.Close)

	queues, err := cfg.queueOptions()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithQueues(queues...),
		engine.WithHostOptions(
			atomizer.WithInstanceID(cfg.InstanceID),
			atomizer.WithGracePeriod(cfg.GracePeriod),
			atomizer.WithReleaseTimeout(cfg.ReleaseTimeout),
			atomizer.WithSchedulerEnabled(cfg.Scheduler),
		),
	}
	if cfg.JobTimeout > 0 {
		opts = append(opts, engine.WithMiddleware(middleware.Timeout(cfg.JobTimeout)))
	}
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		a.closer = append(a.closer, client.Close)
		opts = append(opts, engine.WithLocker(redislock.New(client, redislock.WithLogger(a.logger))))
	}

	eng, err := engine.Build(a.store, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = eng

	engine.Register(eng, func(ctx context.Context, m message) error {
		a.logger.InfoContext(ctx, "message", slog.String("text", m.Text))
		return nil
	})
	return a, nil
}

// Close releases the store and Redis client in reverse order.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
