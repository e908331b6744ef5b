package session

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewSessionShowCommand creates the session show command
func NewSessionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				s, err := c.GetSessionManager().GetSession(ctx, args[0])
				if err != nil {
					return "", nil, err
				}
				return "Session loaded", s, nil
			})
		},
	}
}

// sessionUpdateFlags holds the flags for session update command
type sessionUpdateFlags struct {
	state   []string
	context []string
	op      string
	opData  []string
}

// NewSessionUpdateCommand creates the session update command
func NewSessionUpdateCommand() *cobra.Command {
	flags := &sessionUpdateFlags{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a session",
		Long: `Shallow-merge state and context entries and append one entry to the
operations log. Expired sessions reject updates.

Example:
  storyrelay session update 01J... --op test-run --state passed=9 --op-data suite=parser`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				in := service.UpdateSessionInput{SessionID: args[0], OperationType: flags.op}
				var err error
				if in.StateUpdates, err = common.ParseAssignments(flags.state); err != nil {
					return "", nil, err
				}
				if in.ContextUpdates, err = common.ParseAssignments(flags.context); err != nil {
					return "", nil, err
				}
				if in.OperationData, err = common.ParseAssignments(flags.opData); err != nil {
					return "", nil, err
				}

				if _, err := c.GetSessionManager().UpdateSession(ctx, in); err != nil {
					return "", nil, err
				}
				return "Session updated", map[string]string{"id": args[0], "operationType": flags.op}, nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&flags.state, "state", nil, "State entry key=value (repeatable)")
	cmd.Flags().StringArrayVar(&flags.context, "context", nil, "Context entry key=value (repeatable)")
	cmd.Flags().StringVar(&flags.op, "op", "", "Operation type recorded in the log (required)")
	cmd.Flags().StringArrayVar(&flags.opData, "op-data", nil, "Operation data entry key=value (repeatable)")
	_ = cmd.MarkFlagRequired("op")

	return cmd
}

// NewSessionStatsCommand creates the session stats command
func NewSessionStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Summarise a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				analytics, err := c.GetSessionManager().GetSessionAnalytics(ctx, args[0])
				if err != nil {
					return "", nil, err
				}
				return "Session analytics for " + args[0], analytics, nil
			})
		},
	}
}

// NewSessionEndCommand creates the session end command
func NewSessionEndCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "end <id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				if err := c.GetSessionManager().EndSession(ctx, args[0]); err != nil {
					return "", nil, err
				}
				return "Session ended", nil, nil
			})
		},
	}
}

// NewSessionCleanupCommand creates the session cleanup command
func NewSessionCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				n, err := c.GetSessionManager().CleanupExpired(ctx)
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Removed %d expired sessions", n), map[string]int{"removed": n}, nil
			})
		},
	}
}
