package memory

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	memorymodel "github.com/YoshitsuguKoike/storyrelay/internal/domain/model/memory"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// memoryStoreFlags holds the flags for memory store command
type memoryStoreFlags struct {
	agent      string
	memoryType string
	tags       []string
	expiresIn  string
}

// NewMemoryStoreCommand creates the memory store command
func NewMemoryStoreCommand() *cobra.Command {
	flags := &memoryStoreFlags{}

	cmd := &cobra.Command{
		Use:   "store <content...>",
		Short: "Store a memory",
		Long: `Store a memory for an agent at full relevance.

Example:
  storyrelay memory store --agent implementer --type lesson --tag csv \
    "header rows may repeat after page breaks"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				expiresIn, err := common.ParseDuration(flags.expiresIn)
				if err != nil {
					return "", nil, err
				}
				id, err := c.GetMemorySystem().StoreMemory(ctx, service.StoreMemoryInput{
					AgentName:  flags.agent,
					MemoryType: flags.memoryType,
					Content:    strings.Join(args, " "),
					Tags:       flags.tags,
					ExpiresIn:  expiresIn,
				})
				if err != nil {
					return "", nil, err
				}
				return "Memory stored", map[string]string{"id": id}, nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.agent, "agent", "", "Owning agent (required)")
	cmd.Flags().StringVar(&flags.memoryType, "type", memorymodel.DefaultMemoryType, "Memory type")
	cmd.Flags().StringSliceVar(&flags.tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&flags.expiresIn, "expires-in", "", "Lifetime, e.g. 30d (empty never expires)")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}

// NewMemoryShowCommand creates the memory show command
func NewMemoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				m, err := c.GetMemorySystem().GetMemory(ctx, args[0])
				if err != nil {
					return "", nil, err
				}
				return "Memory loaded", m, nil
			})
		},
	}
}
