package story

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewStoryShowCommand creates the story show command
func NewStoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a story file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				sf, err := c.GetCommunicationManager().GetStoryFile(ctx, args[0])
				if err != nil {
					return "", nil, err
				}
				return "Story file loaded", sf, nil
			})
		},
	}
}
