package story

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewStoryValidateCommand creates the story validate command
func NewStoryValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <id>",
		Short: "Check whether a story file is ready for handover",
		Long:  "Run the handover validator and report errors, warnings and the completeness score without changing the story file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				result, err := c.GetStoryFileManager().Validate(ctx, args[0])
				if err != nil {
					return "", nil, err
				}
				return "Story file validated", result, nil
			})
		},
	}
}
