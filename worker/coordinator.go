package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// Coordinator runs one pump per configured queue.
type Coordinator struct {
	queues []queue.Options
	deps   Deps

	mu    sync.Mutex
	pumps []*Pump
}

// NewCoordinator creates a Coordinator for queues.
func NewCoordinator(queues []queue.Options, deps Deps) *Coordinator {
	return &Coordinator{queues: queues, deps: deps.withDefaults()}
}

// Pumps returns the running pumps.
func (c *Coordinator) Pumps() []*Pump {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Pump, len(c.pumps))
	copy(out, c.pumps)
	return out
}

// Start builds and starts a pump per queue, each with its own lease
// token. If a pump fails to start, the pumps already started are stopped.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pumps != nil {
		return atomizer.ErrAlreadyStarted
	}

	pumps := make([]*Pump, 0, len(c.queues))
	for _, opts := range c.queues {
		token, err := lease.NewToken(c.deps.InstanceID, opts.Key)
		if err == nil {
			p := NewPump(opts, token, c.deps)
			if err = p.Start(ctx); err == nil {
				pumps = append(pumps, p)
				continue
			}
		}
		for _, started := range pumps {
			_ = started.Stop(ctx, 0)
		}
		return fmt.Errorf("start queue %s: %w", opts.Key, err)
	}
	c.pumps = pumps

	c.deps.Logger.Info("queue coordinator started", slog.Int("queues", len(pumps)))
	return nil
}

// Stop stops every pump concurrently and waits for all of them, even when
// some fail. Pump errors are joined.
func (c *Coordinator) Stop(ctx context.Context, grace time.Duration) error {
	c.mu.Lock()
	pumps := c.pumps
	c.pumps = nil
	c.mu.Unlock()

	var g errgroup.Group
	errs := make([]error, len(pumps))
	for i, p := range pumps {
		g.Go(func() error {
			errs[i] = p.Stop(ctx, grace)
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		c.deps.Logger.Warn("queue coordinator stopped with errors", slog.String("error", err.Error()))
	}

	c.deps.Logger.Info("queue coordinator stopped", slog.Int("queues", len(pumps)))
	return errors.Join(errs...)
}
