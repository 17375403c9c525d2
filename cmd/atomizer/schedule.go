package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/engine"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/queue"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring schedules",
	}
	cmd.AddCommand(newScheduleSetCmd(), newScheduleListCmd(), newScheduleRemoveCmd())
	return cmd
}

func newScheduleSetCmd() *cobra.Command {
	var (
		queueName  string
		timeZone   string
		misfire    string
		maxCatchUp int
		disabled   bool
	)

	cmd := &cobra.Command{
		Use:   "set <job-key> <expression> <text>",
		Short: "Create or redefine a recurring message job",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key, err := job.NewKey(args[0])
			if err != nil {
				return err
			}
			q, err := queue.NewKey(queueName)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sched, err := engine.ScheduleRecurring(ctx, a.engine, message{Text: args[2]}, key, args[1],
				cron.WithQueue(q),
				cron.WithTimeZone(timeZone),
				cron.WithMisfirePolicy(cron.MisfirePolicy(misfire)),
				cron.WithMaxCatchUp(maxCatchUp),
				cron.WithEnabled(!disabled),
			)
			if err != nil {
				return fmt.Errorf("schedule %s: %w", key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s next run %s\n", sched.JobKey, sched.NextRunAt.Format(time.RFC3339))
			return nil
		},
	}

	defaults := cron.DefaultOptions()
	cmd.Flags().StringVarP(&queueName, "queue", "q", queue.Default.String(), "queue the spawned jobs go to")
	cmd.Flags().StringVar(&timeZone, "tz", defaults.TimeZone, "IANA time zone the expression is evaluated in")
	cmd.Flags().StringVar(&misfire, "misfire", string(defaults.MisfirePolicy), "misfire policy: ignore, execute_now or catch_up")
	cmd.Flags().IntVar(&maxCatchUp, "max-catch-up", defaults.MaxCatchUp, "occurrences materialized per run under catch_up")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the schedule disabled")
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			schedules, err := a.store.ListSchedules(ctx)
			if err != nil {
				return fmt.Errorf("list schedules: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tEXPRESSION\tTZ\tMISFIRE\tENABLED\tNEXT RUN")
			for _, s := range schedules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					s.JobKey, s.Expression, s.TimeZone, s.MisfirePolicy, s.Enabled,
					s.NextRunAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newScheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-key>",
		Short: "Delete a recurring schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := job.NewKey(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return a.engine.Unschedule(cmd.Context(), key)
		},
	}
}
