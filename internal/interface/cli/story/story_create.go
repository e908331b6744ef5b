package story

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// storyCreateFlags holds the flags for story create command
type storyCreateFlags struct {
	agent       string
	pending     []string
	priority    int
	tags        []string
	rollback    string
	ttl         string
	contextFile string   // YAML/JSON story context
	original    []string // key=value pairs merged into the original context
}

// NewStoryCreateCommand creates the story create command
func NewStoryCreateCommand() *cobra.Command {
	flags := &storyCreateFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a story file",
		Long: `Create a story file owned by an agent. New story files start in PLANNING / DRAFT at version 1.

Examples:
  # Minimal story file
  storyrelay story create --agent implementer --pending "write parser"

  # With original request metadata and a technical context document
  storyrelay story create --agent implementer --set tool=csv-parser --context-file ctx.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				return runStoryCreate(ctx, cmd, c, flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.agent, "agent", "", "Owning agent (required)")
	cmd.Flags().StringSliceVar(&flags.pending, "pending", nil, "Pending work item (repeatable)")
	cmd.Flags().IntVar(&flags.priority, "priority", service.DefaultStoryPriority, "Priority from 0 to 10")
	cmd.Flags().StringSliceVar(&flags.tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&flags.rollback, "rollback", "", "Rollback plan")
	cmd.Flags().StringVar(&flags.ttl, "ttl", "", "Time to live, e.g. 72h (empty for no expiry)")
	cmd.Flags().StringVar(&flags.contextFile, "context-file", "", "YAML or JSON story context ('-' for stdin)")
	cmd.Flags().StringArrayVar(&flags.original, "set", nil, "Original context entry key=value (repeatable)")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}

func runStoryCreate(ctx context.Context, cmd *cobra.Command, c *di.Container, flags *storyCreateFlags) (string, any, error) {
	var sctx story.Context
	if flags.contextFile != "" {
		if err := common.ReadDocument(cmd, flags.contextFile, &sctx); err != nil {
			return "", nil, err
		}
	}
	original, err := common.ParseAssignments(flags.original)
	if err != nil {
		return "", nil, err
	}
	if len(original) > 0 && sctx.Original == nil {
		sctx.Original = map[string]any{}
	}
	for k, v := range original {
		sctx.Original[k] = v
	}

	ttl, err := common.ParseDuration(flags.ttl)
	if err != nil {
		return "", nil, err
	}

	priority := flags.priority
	sf, err := c.GetStoryFileManager().Create(ctx, service.CreateStoryFileInput{
		AgentName:    flags.agent,
		Context:      sctx,
		PendingWork:  flags.pending,
		Priority:     &priority,
		Tags:         flags.tags,
		RollbackPlan: flags.rollback,
		TTL:          ttl,
	})
	if err != nil {
		return "", nil, err
	}
	return "Story file created", sf, nil
}
