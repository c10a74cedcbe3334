package main // Entry point package

import (
	"log" // Logging library
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Printf("tablegrid: %v", err)
		os.Exit(1)
	}
}

// newRootCommand builds the tablegrid CLI.  Running it without a
// subcommand starts the server.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tablegrid",
		Short:         "Table grid reservation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newPromoteCommand())
	return cmd
}
