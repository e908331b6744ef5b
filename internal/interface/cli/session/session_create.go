package session

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// sessionCreateFlags holds the flags for session create command
type sessionCreateFlags struct {
	agent       string
	sessionType string
	hours       int
	expiresIn   string
	state       []string
	context     []string
}

// NewSessionCreateCommand creates the session create command
func NewSessionCreateCommand() *cobra.Command {
	flags := &sessionCreateFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Long: `Create a session for an agent. Without --hours or --expires-in the
default_session_hours setting applies; --expires-in wins over --hours.

Example:
  storyrelay session create --agent implementer --type coding --state branch=feature/csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				expiresIn, err := common.ParseDuration(flags.expiresIn)
				if err != nil {
					return "", nil, err
				}
				state, err := common.ParseAssignments(flags.state)
				if err != nil {
					return "", nil, err
				}
				sctx, err := common.ParseAssignments(flags.context)
				if err != nil {
					return "", nil, err
				}

				id, err := c.GetSessionManager().CreateSession(ctx, service.CreateSessionInput{
					AgentName:       flags.agent,
					SessionType:     flags.sessionType,
					ExpirationHours: flags.hours,
					ExpiresIn:       expiresIn,
					InitialState:    state,
					InitialContext:  sctx,
				})
				if err != nil {
					return "", nil, err
				}
				return "Session created", map[string]string{"id": id}, nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.agent, "agent", "", "Owning agent (required)")
	cmd.Flags().StringVar(&flags.sessionType, "type", "general", "Session type")
	cmd.Flags().IntVar(&flags.hours, "hours", 0, "Lifetime in hours (0 for the configured default)")
	cmd.Flags().StringVar(&flags.expiresIn, "expires-in", "", "Lifetime as a duration, e.g. 90m")
	cmd.Flags().StringArrayVar(&flags.state, "state", nil, "Initial state entry key=value (repeatable)")
	cmd.Flags().StringArrayVar(&flags.context, "context", nil, "Initial context entry key=value (repeatable)")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}

// NewSessionChildCommand creates the session child command
func NewSessionChildCommand() *cobra.Command {
	var (
		agent       string
		sessionType string
		inherited   []string
	)

	cmd := &cobra.Command{
		Use:   "child <parent-id>",
		Short: "Create a child session",
		Long:  "Create a session under a parent. The child starts with the given context and expires when the parent does.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				sctx, err := common.ParseAssignments(inherited)
				if err != nil {
					return "", nil, err
				}
				id, err := c.GetSessionManager().CreateChildSession(ctx, args[0], agent, sessionType, sctx)
				if err != nil {
					return "", nil, err
				}
				return "Child session created", map[string]string{"id": id, "parentSessionId": args[0]}, nil
			})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Owning agent (required)")
	cmd.Flags().StringVar(&sessionType, "type", "general", "Session type")
	cmd.Flags().StringArrayVar(&inherited, "context", nil, "Inherited context entry key=value (repeatable)")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}
