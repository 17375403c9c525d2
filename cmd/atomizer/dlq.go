package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/queue"
)

func newDLQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay failed jobs",
	}
	cmd.AddCommand(newDLQListCmd(), newDLQReplayCmd())
	return cmd
}

func newDLQListCmd() *cobra.Command {
	var (
		queueName string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failed jobs with their last error",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var q queue.Key
			if queueName != "" {
				k, err := queue.NewKey(queueName)
				if err != nil {
					return err
				}
				q = k
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			failed, err := a.engine.DeadLetters().List(ctx, q, limit, 0)
			if err != nil {
				return fmt.Errorf("list failed jobs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tQUEUE\tTYPE\tATTEMPTS\tFAILED\tLAST ERROR")
			for _, j := range failed {
				failedAt, lastErr := "", ""
				if j.FailedAt != nil {
					failedAt = j.FailedAt.Format(time.RFC3339)
				}
				if n := len(j.Errors); n > 0 {
					lastErr = j.Errors[n-1].Message
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", j.ID, j.Queue, j.Type, j.Attempts, failedAt, lastErr)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "only failed jobs of this queue")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")
	return cmd
}

func newDLQReplayCmd() *cobra.Command {
	var (
		all       bool
		queueName string
	)

	cmd := &cobra.Command{
		Use:   "replay [job-id]",
		Short: "Enqueue failed jobs again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if all == (len(args) == 1) {
				return fmt.Errorf("give either a job ID or --all")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			svc := a.engine.DeadLetters()

			if !all {
				jobID, err := id.ParseJobID(args[0])
				if err != nil {
					return err
				}
				j, err := svc.Replay(ctx, jobID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), j.ID)
				return nil
			}

			var q queue.Key
			if queueName != "" {
				if q, err = queue.NewKey(queueName); err != nil {
					return err
				}
			}
			n, err := svc.ReplayAll(ctx, q)
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d job(s)\n", n)
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "replay every failed job")
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "with --all, only failed jobs of this queue")
	return cmd
}
