package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// NewVersionCmd creates the "version" subcommand, kept alongside the root
// command's --version flag for scripts that invoke it directly.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qdone version %s\n", version)
		},
	}
}
