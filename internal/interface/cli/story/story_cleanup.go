package story

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// DefaultCleanupAge is the retention used when --max-age is not given
const DefaultCleanupAge = "7d"

// NewStoryCleanupCommand creates the story cleanup command
func NewStoryCleanupCommand() *cobra.Command {
	var (
		maxAge string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old story files",
		Long: `Remove story files older than --max-age and those past their own TTL.
With an archive configured every removed story file is archived first; if any
archive fails nothing is deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				age, err := common.ParseDuration(maxAge)
				if err != nil {
					return "", nil, err
				}
				// A zero age removes everything, so it is only reachable through --all
				if all {
					age = 0
				} else if age == 0 {
					age, _ = common.ParseDuration(DefaultCleanupAge)
				}

				removed, err := c.GetCommunicationManager().CleanupStoryFiles(ctx, age)
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Removed %d story files", removed), map[string]int{"removed": removed}, nil
			})
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", DefaultCleanupAge, "Remove story files older than this")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every story file")

	return cmd
}
