package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mnbuhl/atomizer/queue"
)

// config is read from ATOMIZER_* environment variables.
type config struct {
	PostgresDSN    string        `env:"POSTGRES_DSN"`
	PostgresConns  int32         `env:"POSTGRES_MAX_CONNS" envDefault:"0"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	InstanceID     string        `env:"INSTANCE_ID"`
	Queues         []string      `env:"QUEUES" envDefault:"default" envSeparator:","`
	Workers        int           `env:"WORKERS" envDefault:"4"`
	BatchSize      int           `env:"BATCH_SIZE" envDefault:"10"`
	Visibility     time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"5m"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	GracePeriod    time.Duration `env:"GRACE_PERIOD" envDefault:"30s"`
	ReleaseTimeout time.Duration `env:"RELEASE_TIMEOUT" envDefault:"5s"`
	JobTimeout     time.Duration `env:"JOB_TIMEOUT" envDefault:"0s"`
	Scheduler      bool          `env:"SCHEDULER" envDefault:"true"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"text"`
}

func loadConfig() (config, error) {
	var c config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: "ATOMIZER_"}); err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

// queueOptions builds the served queues. Every queue shares the worker
// settings from the environment.
func (c config) queueOptions() ([]queue.Options, error) {
	result := make([]queue.Options, 0, len(c.Queues))
	for _, name := range c.Queues {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		opts, err := queue.NewOptions(name,
			queue.WithDegreeOfParallelism(c.Workers),
			queue.WithBatchSize(c.BatchSize),
			queue.WithVisibilityTimeout(c.Visibility),
			queue.WithStorageCheckInterval(c.PollInterval),
		)
		if err != nil {
			return nil, fmt.Errorf("queue %q: %w", name, err)
		}
		result = append(result, opts)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no queues configured")
	}
	return result, nil
}

func (c config) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
