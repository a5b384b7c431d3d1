package cli

import (
	"bufio"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/suredone/qdone/internal/enqueue"
	"github.com/suredone/qdone/internal/qerrors"
)

// NewEnqueueBatchCmd builds the "enqueue-batch" subcommand: each line of
// each file (or stdin, named "-") is "<queueName> <command...>",
// whitespace-split once.
func NewEnqueueBatchCmd(g *globalFlags) *cobra.Command {
	var (
		fifo              bool
		groupID           string
		groupIDPerMessage bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue-batch <file...>",
		Short: "Send a batch of jobs read from one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := g.options()
			o.FIFO = fifo
			o.GroupID = groupID
			o.GroupIDPerMessage = groupIDPerMessage

			var pairs []enqueue.Pair
			for _, path := range args {
				filePairs, err := readPairs(path)
				if err != nil {
					return err
				}
				pairs = append(pairs, filePairs...)
			}

			a := newApp()
			client, err := sqsConnect(cmd, o.Region)
			if err != nil {
				return err
			}
			pipeline := a.pipeline(client, o)

			sent, err := pipeline.EnqueueBatch(cmd.Context(), pairs, o)
			if err != nil {
				return err
			}
			if !o.Quiet {
				a.out.Success("enqueued %d jobs", sent)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fifo, "fifo", false, "treat queues as FIFO")
	cmd.Flags().StringVar(&groupID, "group-id", "", "FIFO message group id")
	cmd.Flags().BoolVar(&groupIDPerMessage, "group-id-per-message", false, "assign a fresh group id to every message")

	return cmd
}

func readPairs(path string) ([]enqueue.Pair, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var pairs []enqueue.Pair
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		queue, command, ok := splitOnce(line)
		if !ok {
			return nil, qerrors.Usagef("malformed line in %s (expected \"<queue> <command>\"): %q", path, line)
		}
		pairs = append(pairs, enqueue.Pair{Queue: queue, Command: command})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// splitOnce splits line into its queue name and command at the first run of
// whitespace, the way the documented line format requires.
func splitOnce(line string) (queue, command string, ok bool) {
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return "", "", false
	}
	queue = line[:idx]
	command = strings.TrimLeftFunc(line[idx:], unicode.IsSpace)
	if queue == "" || command == "" {
		return "", "", false
	}
	return queue, command, true
}
