package story

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// storyDecideFlags holds the flags for story decide command
type storyDecideFlags struct {
	agent        string
	decisionType string
	description  string
	rationale    string
	impact       string
	reversible   bool
	alternatives []string
	dependencies []string
}

// NewStoryDecideCommand creates the story decide command
func NewStoryDecideCommand() *cobra.Command {
	flags := &storyDecideFlags{}

	cmd := &cobra.Command{
		Use:   "decide <id>",
		Short: "Record a decision on a story file",
		Long: `Append an immutable decision record.

Example:
  storyrelay story decide 01J... --agent implementer --type technical \
    --description "use encoding/csv" --rationale "stdlib is enough" --impact low --reversible`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				sf, err := c.GetCommunicationManager().AddStoryDecision(ctx, args[0], service.DecisionInput{
					AgentName:    flags.agent,
					DecisionType: model.DecisionType(strings.ToLower(flags.decisionType)),
					Description:  flags.description,
					Rationale:    flags.rationale,
					Impact:       model.Impact(strings.ToLower(flags.impact)),
					Reversible:   flags.reversible,
					Alternatives: flags.alternatives,
					Dependencies: flags.dependencies,
				})
				if err != nil {
					return "", nil, err
				}
				return "Decision recorded", sf, nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.agent, "agent", "", "Agent making the decision (required)")
	cmd.Flags().StringVar(&flags.decisionType, "type", string(model.DecisionTechnical), "Decision type (architectural, technical, process)")
	cmd.Flags().StringVar(&flags.description, "description", "", "What was decided (required)")
	cmd.Flags().StringVar(&flags.rationale, "rationale", "", "Why it was decided")
	cmd.Flags().StringVar(&flags.impact, "impact", string(model.ImpactLow), "Impact (low, medium, high, critical)")
	cmd.Flags().BoolVar(&flags.reversible, "reversible", false, "Whether the decision can be undone")
	cmd.Flags().StringSliceVar(&flags.alternatives, "alternative", nil, "Rejected alternative (repeatable)")
	cmd.Flags().StringSliceVar(&flags.dependencies, "dependency", nil, "Dependency (repeatable)")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}
