package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process jobs and recurring schedules until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := a.engine.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			a.logger.Info("atomizer running", slog.Int("queues", len(a.engine.Queues())))

			<-ctx.Done()
			a.logger.Info("shutting down", slog.Duration("grace_period", a.cfg.GracePeriod))

			// Stop's own grace period and release timeout bound the
			// shutdown; this context only guards against a wedged store.
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()),
				2*(a.cfg.GracePeriod+a.cfg.ReleaseTimeout))
			defer cancel()
			return a.engine.Stop(stopCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.logger.Info("migrations applied")
			return nil
		},
	}
}
