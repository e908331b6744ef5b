package session

import "github.com/spf13/cobra"

// NewSessionCommand creates the session command with its subcommands
func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Agent session commands",
		Long: `Manage short-lived, agent-scoped working state. Sessions expire on their own;
child sessions expire with their parent. Expired sessions are removed by
"session cleanup" or by the process that created them while it runs.`,
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	// Add subcommands
	cmd.AddCommand(NewSessionCreateCommand())
	cmd.AddCommand(NewSessionShowCommand())
	cmd.AddCommand(NewSessionUpdateCommand())
	cmd.AddCommand(NewSessionChildCommand())
	cmd.AddCommand(NewSessionStatsCommand())
	cmd.AddCommand(NewSessionEndCommand())
	cmd.AddCommand(NewSessionCleanupCommand())

	return cmd
}
