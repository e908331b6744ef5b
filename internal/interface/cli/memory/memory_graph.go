package memory

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewMemoryLinkCommand creates the memory link command
func NewMemoryLinkCommand() *cobra.Command {
	var (
		relationType string
		weight       float64
		createdBy    string
	)

	cmd := &cobra.Command{
		Use:   "link <source-id> <target-id>",
		Short: "Link two memories",
		Long:  "Create or update a weighted, typed edge from one memory to another. Linking the same pair and type again replaces the weight.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				if err := c.GetMemorySystem().LinkMemories(ctx, args[0], args[1], relationType, weight, createdBy); err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Linked %s -[%s]-> %s", args[0], relationType, args[1]), nil, nil
			})
		},
	}

	cmd.Flags().StringVar(&relationType, "type", "related", "Relation type")
	cmd.Flags().Float64Var(&weight, "weight", 0.5, "Edge weight within [0, 1]")
	cmd.Flags().StringVar(&createdBy, "by", "", "Agent that created the link")

	return cmd
}

// NewMemoryRelatedCommand creates the memory related command
func NewMemoryRelatedCommand() *cobra.Command {
	var (
		depth     int
		minWeight float64
	)

	cmd := &cobra.Command{
		Use:   "related <id>",
		Short: "Walk the memory graph",
		Long:  "List memories reachable through outgoing edges, breadth-first up to --depth hops, skipping edges lighter than --min-weight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				related, err := c.GetMemorySystem().GetRelatedMemories(ctx, args[0], depth, minWeight)
				if err != nil {
					return "", nil, err
				}
				return "Related memories", related, nil
			})
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 2, "Maximum number of hops")
	cmd.Flags().Float64Var(&minWeight, "min-weight", 0, "Ignore edges lighter than this")

	return cmd
}
