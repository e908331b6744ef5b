package story

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewStoryHandoverCommand creates the story handover command
func NewStoryHandoverCommand() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "handover <id> <target-agent>",
		Short: "Hand a story file over to another agent",
		Long: `Validate a story file and reassign it. The handover is refused when the
validator reports errors, for example notes shorter than ten characters.

Example:
  storyrelay story handover 01J... reviewer --notes "API layer finished, please write tests"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				sf, err := c.GetCommunicationManager().HandoverStoryFile(ctx, args[0], args[1], notes)
				if err != nil {
					return "", nil, err
				}
				return "Story file handed over to " + sf.CurrentAgent, sf, nil
			})
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Handover notes for the next agent")

	return cmd
}
