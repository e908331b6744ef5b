package memory

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// memorySearchFlags holds the flags for memory search command
type memorySearchFlags struct {
	agent        string
	memoryType   string
	minRelevance float64
	limit        int
	use          bool
}

// NewMemorySearchCommand creates the memory search command
func NewMemorySearchCommand() *cobra.Command {
	flags := &memorySearchFlags{}

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search an agent's memories",
		Long: `Rank an agent's live memories against a query. The score blends keyword
overlap, relevance, recency and usage. Searching does not count as use unless --use is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				results, err := c.GetMemorySystem().SearchMemories(ctx, flags.agent, strings.Join(args, " "), service.SearchOptions{
					MinRelevance: flags.minRelevance,
					Limit:        flags.limit,
					MemoryType:   flags.memoryType,
				})
				if err != nil {
					return "", nil, err
				}
				if flags.use {
					for _, r := range results {
						if err := c.GetMemorySystem().RecordUse(ctx, r.Memory.ID); err != nil {
							return "", nil, err
						}
					}
				}
				return "Memories found", results, nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.agent, "agent", "", "Agent whose memories are searched (required)")
	cmd.Flags().StringVar(&flags.memoryType, "type", "", "Only memories of this type")
	cmd.Flags().Float64Var(&flags.minRelevance, "min-relevance", 0, "Drop memories whose relevance score is below this")
	cmd.Flags().IntVar(&flags.limit, "limit", service.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&flags.use, "use", false, "Record a use for every returned memory")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}
