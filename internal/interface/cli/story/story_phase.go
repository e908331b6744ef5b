package story

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewStoryPhaseCommand creates the story phase command
func NewStoryPhaseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "phase <id> <phase>",
		Short: "Move a story file to another phase",
		Long: `Transition a story file along the phase graph:
PLANNING → IMPLEMENTATION → VALIDATION → COMPLETED, with VALIDATION able to
return to IMPLEMENTATION. COMPLETED is terminal.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				phase, ok := model.ParsePhase(args[1])
				if !ok {
					return "", nil, model.InvalidArgument("unknown phase", goerr.V("phase", args[1]))
				}
				sf, err := c.GetCommunicationManager().TransitionStoryPhase(ctx, args[0], phase)
				if err != nil {
					return "", nil, err
				}
				return "Story file moved to " + sf.Phase.String(), sf, nil
			})
		},
	}
}
