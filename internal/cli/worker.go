package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/suredone/qdone/internal/config"
	"github.com/suredone/qdone/internal/qerrors"
	"github.com/suredone/qdone/internal/worker"
)

// NewWorkerCmd builds the "worker" subcommand: a listener over one or more
// queues/wildcards.
func NewWorkerCmd(g *globalFlags) *cobra.Command {
	var (
		killAfter     int
		waitTime      int
		includeFailed bool
		activeOnly    bool
		drain         bool
		fifo          bool
	)

	cmd := &cobra.Command{
		Use:   "worker <queue...>",
		Short: "Poll queues and execute received jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := g.options()
			o.FIFO = fifo
			o.KillAfter = time.Duration(killAfter) * time.Second
			o.WaitTime = time.Duration(waitTime) * time.Second
			o.IncludeFailed = includeFailed
			o.ActiveOnly = activeOnly
			o.Drain = drain

			if err := config.Validate(o); err != nil {
				return qerrors.Usagef("%v", err)
			}

			a := newApp()
			client, err := sqsConnect(cmd, o.Region)
			if err != nil {
				return err
			}

			sd := worker.NewShutdown()
			installSignalHandler(sd)
			loop := a.loop(client, sd)

			tally, err := loop.Run(cmd.Context(), args, o)
			if err != nil && !errors.Is(err, worker.ErrNoQueues) {
				return err
			}
			if !o.Quiet {
				a.out.Info("processed %d jobs (%d succeeded, %d failed)",
					tally.JobsSucceeded+tally.JobsFailed, tally.JobsSucceeded, tally.JobsFailed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&killAfter, "kill-after", int(config.DefaultKillAfter.Seconds()), "seconds before a running job is killed")
	cmd.Flags().IntVar(&waitTime, "wait-time", int(config.DefaultWaitTime.Seconds()), "long-poll wait time in seconds (0-20)")
	cmd.Flags().BoolVar(&includeFailed, "include-failed", false, "also poll fail-tier queues")
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "skip queues with nothing in flight")
	cmd.Flags().BoolVar(&drain, "drain", false, "stop once a round finds no jobs, instead of listening forever")
	cmd.Flags().BoolVar(&fifo, "fifo", false, "treat queues as FIFO")

	return cmd
}
