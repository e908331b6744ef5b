package story

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// storyUpdateFlags holds the flags for story update command
type storyUpdateFlags struct {
	status          string
	current         []string
	technicalFile   string
	completed       []string
	pending         []string
	notes           string
	priority        int
	tags            []string
	rollback        string
	ttl             string
	appendLists     bool
	expectedVersion int
}

// NewStoryUpdateCommand creates the story update command
func NewStoryUpdateCommand() *cobra.Command {
	flags := &storyUpdateFlags{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a story file",
		Long: `Merge fields into a story file and bump its version. Only flags given on
the command line are applied. Work lists replace the stored ones unless --append is set.

Examples:
  # Record progress
  storyrelay story update 01J... --completed "parser" --pending "tests" --append

  # Optimistic concurrency
  storyrelay story update 01J... --status active --expected-version 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				update, err := flags.update(cmd)
				if err != nil {
					return "", nil, err
				}
				sf, err := c.GetCommunicationManager().UpdateStoryFile(ctx, args[0], update)
				if err != nil {
					return "", nil, err
				}
				return "Story file updated", sf, nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.status, "status", "", "New status")
	cmd.Flags().StringArrayVar(&flags.current, "set", nil, "Current context entry key=value (repeatable)")
	cmd.Flags().StringVar(&flags.technicalFile, "technical-file", "", "YAML or JSON technical context replacing the stored one")
	cmd.Flags().StringSliceVar(&flags.completed, "completed", nil, "Completed work item (repeatable)")
	cmd.Flags().StringSliceVar(&flags.pending, "pending", nil, "Pending work item (repeatable)")
	cmd.Flags().StringVar(&flags.notes, "notes", "", "Handover notes")
	cmd.Flags().IntVar(&flags.priority, "priority", 0, "Priority from 0 to 10")
	cmd.Flags().StringSliceVar(&flags.tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&flags.rollback, "rollback", "", "Rollback plan")
	cmd.Flags().StringVar(&flags.ttl, "ttl", "", "Time to live, e.g. 72h")
	cmd.Flags().BoolVar(&flags.appendLists, "append", false, "Append work lists instead of replacing them")
	cmd.Flags().IntVar(&flags.expectedVersion, "expected-version", 0, "Fail unless the stored version matches")

	return cmd
}

func (f *storyUpdateFlags) update(cmd *cobra.Command) (service.StoryFileUpdate, error) {
	var update service.StoryFileUpdate
	changed := cmd.Flags().Changed

	if changed("status") {
		status, ok := model.ParseStatus(f.status)
		if !ok {
			return update, model.InvalidArgument("unknown status", goerr.V("status", f.status))
		}
		update.Status = &status
	}

	current, err := common.ParseAssignments(f.current)
	if err != nil {
		return update, err
	}
	update.CurrentContext = current

	if f.technicalFile != "" {
		var tc story.TechnicalContext
		if err := common.ReadDocument(cmd, f.technicalFile, &tc); err != nil {
			return update, err
		}
		update.TechnicalContext = &tc
	}

	if changed("completed") {
		update.CompletedWork = f.completed
	}
	if changed("pending") {
		update.PendingWork = f.pending
	}
	if changed("tag") {
		update.Tags = f.tags
	}
	if changed("notes") {
		update.HandoverNotes = &f.notes
	}
	if changed("priority") {
		update.Priority = &f.priority
	}
	if changed("rollback") {
		update.RollbackPlan = &f.rollback
	}
	if changed("ttl") {
		ttl, err := common.ParseDuration(f.ttl)
		if err != nil {
			return update, err
		}
		update.TTL = &ttl
	}
	if changed("expected-version") {
		update.ExpectedVersion = &f.expectedVersion
	}
	if f.appendLists {
		update.ListStrategy = service.ListAppend
	}
	return update, nil
}
