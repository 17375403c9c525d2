// Command atomizer hosts an Atomizer engine and administers its store.
//
// Configuration comes from ATOMIZER_* environment variables. Without
// ATOMIZER_POSTGRES_DSN the in-memory store is used, which only makes
// sense for `run`: every other command would talk to an empty store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "atomizer",
		Short:         "Durable background job engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newMigrateCmd(),
		newEnqueueCmd(),
		newJobsCmd(),
		newScheduleCmd(),
		newDLQCmd(),
	)
	return root
}
