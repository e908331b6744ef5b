package story

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewStoryArchiveCommand creates the story archive command
func NewStoryArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect story files archived by cleanup",
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived story file IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				archive, err := requireArchive(c)
				if err != nil {
					return "", nil, err
				}
				ids, err := archive.List(ctx)
				if err != nil {
					return "", nil, err
				}
				return "Archived story files listed", ids, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show an archived story file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				archive, err := requireArchive(c)
				if err != nil {
					return "", nil, err
				}
				sf, err := archive.Restore(ctx, args[0])
				if err != nil {
					return "", nil, err
				}
				return "Archived story file loaded", sf, nil
			})
		},
	})

	return cmd
}

func requireArchive(c *di.Container) (output.ArchiveGateway, error) {
	archive := c.GetArchiveGateway()
	if archive == nil {
		return nil, model.InvalidArgument("archiving is disabled; set archive.type in the setting file")
	}
	return archive, nil
}
