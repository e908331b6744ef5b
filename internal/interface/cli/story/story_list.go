package story

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// storyListFlags holds the flags for story list command
type storyListFlags struct {
	agent     string
	statuses  []string
	phases    []string
	olderThan string
	limit     int
}

// NewStoryListCommand creates the story list command
func NewStoryListCommand() *cobra.Command {
	flags := &storyListFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List story files",
		Long: `List story files with optional filtering, oldest first.

Examples:
  # Everything owned by the reviewer
  storyrelay story list --agent reviewer

  # Handed-over work older than two days
  storyrelay story list --status handed_over --older-than 2d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				filter, err := flags.filter(time.Now().UTC())
				if err != nil {
					return "", nil, err
				}
				list, err := c.GetStoryFileManager().List(ctx, filter)
				if err != nil {
					return "", nil, err
				}
				return "Story files listed", list, nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.agent, "agent", "", "Filter by current agent")
	cmd.Flags().StringSliceVar(&flags.statuses, "status", nil, "Filter by status (draft, active, handed_over, completed, abandoned)")
	cmd.Flags().StringSliceVar(&flags.phases, "phase", nil, "Filter by phase (planning, implementation, validation, completed)")
	cmd.Flags().StringVar(&flags.olderThan, "older-than", "", "Only story files created before now minus this duration")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Maximum number of results (0 for all)")

	return cmd
}

func (f *storyListFlags) filter(now time.Time) (repository.StoryFileFilter, error) {
	filter := repository.StoryFileFilter{CurrentAgent: f.agent, Limit: f.limit}
	for _, s := range f.statuses {
		status, ok := model.ParseStatus(s)
		if !ok {
			return filter, model.InvalidArgument("unknown status", goerr.V("status", s))
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, p := range f.phases {
		phase, ok := model.ParsePhase(p)
		if !ok {
			return filter, model.InvalidArgument("unknown phase", goerr.V("phase", p))
		}
		filter.Phases = append(filter.Phases, phase)
	}
	if f.olderThan != "" {
		age, err := common.ParseDuration(f.olderThan)
		if err != nil {
			return filter, err
		}
		cutoff := now.Add(-age)
		filter.CreatedBefore = &cutoff
	}
	if f.limit < 0 {
		return filter, model.InvalidArgument("limit cannot be negative")
	}
	return filter, nil
}
