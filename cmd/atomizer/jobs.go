package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/queue"
)

func newJobsCmd() *cobra.Command {
	var (
		queueName string
		status    string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List stored jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := job.ListOpts{Status: job.Status(status), Limit: limit, Offset: offset}
			if queueName != "" {
				q, err := queue.NewKey(queueName)
				if err != nil {
					return err
				}
				opts.Queue = q
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			jobs, err := a.store.ListJobs(ctx, opts)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tQUEUE\tTYPE\tSTATUS\tATTEMPTS\tSCHEDULED")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					j.ID, j.Queue, j.Type, j.Status, j.Attempts, j.MaxAttempts,
					j.ScheduledAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "only jobs of this queue")
	cmd.Flags().StringVar(&status, "status", "", "only jobs in this status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "jobs to skip")
	return cmd
}
