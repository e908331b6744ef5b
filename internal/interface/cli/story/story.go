package story

import "github.com/spf13/cobra"

// NewStoryCommand creates the story command with its subcommands
func NewStoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "story",
		Short: "Story file management commands",
		Long:  "Create, inspect and hand over story files, the persistent record of delegated work",
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	// Add subcommands
	cmd.AddCommand(NewStoryCreateCommand())
	cmd.AddCommand(NewStoryShowCommand())
	cmd.AddCommand(NewStoryListCommand())
	cmd.AddCommand(NewStoryUpdateCommand())
	cmd.AddCommand(NewStoryHandoverCommand())
	cmd.AddCommand(NewStoryPhaseCommand())
	cmd.AddCommand(NewStoryDecideCommand())
	cmd.AddCommand(NewStoryValidateCommand())
	cmd.AddCommand(NewStoryCleanupCommand())
	cmd.AddCommand(NewStoryArchiveCommand())

	return cmd
}
