package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewEnqueueCmd builds the "enqueue" subcommand: a single send.
func NewEnqueueCmd(g *globalFlags) *cobra.Command {
	var (
		fifo         bool
		groupID      string
		delaySeconds int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <queue> <command>...",
		Short: "Send a single job to a queue",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := g.options()
			o.FIFO = fifo
			o.GroupID = groupID
			if delaySeconds > 0 {
				o.Delay = time.Duration(delaySeconds) * time.Second
			}

			queue := args[0]
			command := strings.Join(args[1:], " ")

			a := newApp()
			client, err := sqsConnect(cmd, o.Region)
			if err != nil {
				return err
			}
			pipeline := a.pipeline(client, o)

			out, err := pipeline.EnqueueOne(cmd.Context(), queue, command, o)
			if err != nil {
				return err
			}
			if !o.Quiet {
				a.out.Success("enqueued %s to %s", out.MessageID, queue)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fifo, "fifo", false, "treat the queue as FIFO")
	cmd.Flags().StringVar(&groupID, "group-id", "", "FIFO message group id")
	cmd.Flags().IntVar(&delaySeconds, "delay", 0, "delivery delay in seconds")

	return cmd
}
