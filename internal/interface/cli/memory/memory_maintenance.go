package memory

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// NewMemoryStrengthenCommand creates the memory strengthen command
func NewMemoryStrengthenCommand() *cobra.Command {
	var factor float64

	cmd := &cobra.Command{
		Use:   "strengthen <id>",
		Short: "Multiply a memory's relevance score",
		Long:  "Multiply the relevance score by --factor, clamped to [0, 1], and record a use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				score, err := c.GetMemorySystem().StrengthenMemory(ctx, args[0], factor)
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Relevance of %s is now %.3f", args[0], score),
					map[string]any{"id": args[0], "relevanceScore": score}, nil
			})
		},
	}

	cmd.Flags().Float64Var(&factor, "factor", 1.1, "Multiplier")

	return cmd
}

// NewMemoryUseCommand creates the memory use command
func NewMemoryUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Record that a memory was used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				if err := c.GetMemorySystem().RecordUse(ctx, args[0]); err != nil {
					return "", nil, err
				}
				return "Use recorded for " + args[0], nil, nil
			})
		},
	}
}

// NewMemoryDecayCommand creates the memory decay command
func NewMemoryDecayCommand() *cobra.Command {
	var (
		agent  string
		factor float64
	)

	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Decay every relevance score of an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				n, err := c.GetMemorySystem().DecayMemories(ctx, agent, factor)
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Decayed %d memories", n), map[string]int{"decayed": n}, nil
			})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Agent whose memories decay (required)")
	cmd.Flags().Float64Var(&factor, "factor", 0.9, "Multiplier within [0, 1]")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}

// NewMemoryCleanupCommand creates the memory cleanup command
func NewMemoryCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired memories and their links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				n, err := c.GetMemorySystem().CleanupExpired(ctx)
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Removed %d expired memories", n), map[string]int{"removed": n}, nil
			})
		},
	}
}

// NewMemoryStatsCommand creates the memory stats command
func NewMemoryStatsCommand() *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise an agent's memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				analytics, err := c.GetMemorySystem().GetMemoryAnalytics(ctx, agent)
				if err != nil {
					return "", nil, err
				}
				return "Memory analytics for " + agent, analytics, nil
			})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "Agent to summarise (required)")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}
