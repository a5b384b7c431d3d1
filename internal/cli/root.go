package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/suredone/qdone/internal/ui"
)

// NewRootCmd creates the root command and wires every subcommand through a
// single shared set of global flags.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:     "qdone",
		Short:   "qdone - a command-line job queue built on a hosted message queue",
		Long:    "qdone submits shell commands to named queues and runs worker processes that execute them as supervised subprocesses.",
		Version: version,

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&g.prefix, "prefix", "", "queue name prefix (default \"qdone_\")")
	cmd.PersistentFlags().StringVar(&g.failSuffix, "fail-suffix", "", "fail-queue name suffix (default \"_failed\")")
	cmd.PersistentFlags().StringVarP(&g.region, "region", "r", "", "AWS region")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "suppress non-error output")

	cmd.AddCommand(
		NewEnqueueCmd(g),
		NewEnqueueBatchCmd(g),
		NewWorkerCmd(g),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command and exits the process with the documented
// exit codes: 0 on clean completion, 1 on usage or unrecovered runtime
// error.
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		ui.NewOutput(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}
