package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnbuhl/atomizer/engine"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/queue"
)

func newEnqueueCmd() *cobra.Command {
	var (
		queueName      string
		delay          time.Duration
		maxAttempts    int
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <text>",
		Short: "Enqueue a message job that logs its text when processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := queue.NewKey(queueName)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			opts := []job.Option{job.WithQueue(q)}
			if maxAttempts > 0 {
				opts = append(opts, job.WithMaxAttempts(maxAttempts))
			}
			if idempotencyKey != "" {
				opts = append(opts, job.WithIdempotencyKey(idempotencyKey))
			}

			j, err := engine.Schedule(ctx, a.engine, message{Text: args[0]}, time.Now().Add(delay), opts...)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), j.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&queueName, "queue", "q", queue.Default.String(), "queue to enqueue to")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before the job becomes due")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "total attempts (0 uses the queue's retry strategy)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "reject the job while another live job holds this key")
	return cmd
}
