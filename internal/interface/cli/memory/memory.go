package memory

import "github.com/spf13/cobra"

// NewMemoryCommand creates the memory command with its subcommands
func NewMemoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Agent memory commands",
		Long:  "Store, search and link the lessons agents keep between tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	// Add subcommands
	cmd.AddCommand(NewMemoryStoreCommand())
	cmd.AddCommand(NewMemoryShowCommand())
	cmd.AddCommand(NewMemorySearchCommand())
	cmd.AddCommand(NewMemoryLinkCommand())
	cmd.AddCommand(NewMemoryRelatedCommand())
	cmd.AddCommand(NewMemoryStrengthenCommand())
	cmd.AddCommand(NewMemoryUseCommand())
	cmd.AddCommand(NewMemoryDecayCommand())
	cmd.AddCommand(NewMemoryCleanupCommand())
	cmd.AddCommand(NewMemoryStatsCommand())

	return cmd
}
