// Package store names the full persistence contract an engine needs: job
// rows, schedule rows and the scheduler's lock, plus schema and connection
// lifecycle. store/memory and store/postgres both implement it; a
// deployment that wants the scheduler lock in Redis can pair either with
// lock/redislock through engine.WithLocker.
package store

import (
	"context"

	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/job"
)

type Store interface {
	job.Store
	cron.Store
	cron.Locker

	// Migrate brings the schema up to date. It is idempotent.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
