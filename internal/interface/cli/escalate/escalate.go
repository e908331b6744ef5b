package escalate

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/dto"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/di"
	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

// escalateFlags holds the flags for escalate command
type escalateFlags struct {
	file         string
	tool         string
	source       string
	target       string
	urgency      string
	reason       string
	message      string
	storyFileID  string
	newStory     bool
	capabilities []string
	completed    []string
	pending      []string
	attempted    []string
}

// NewCommand creates the escalate command
func NewCommand() *cobra.Command {
	flags := &escalateFlags{}

	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Route work an agent cannot finish to another agent",
		Long: `Attach an escalation request to a story file and route it to a handler.

The request comes from a YAML or JSON document (-f) and/or flags; flags given on
the command line override the document. With --story the existing story file is
updated, with --new-story a story file is created; the story file is then handed
over to the chosen handler. Without --target the handler is the highest-priority
registered agent (lowest tier on ties) that can handle the tool.

Examples:
  storyrelay escalate -f request.yaml

  storyrelay escalate --tool csv-parser --source implementer --urgency high \
    --message "header handling needs review" --new-story --pending "review parser"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, func(ctx context.Context, c *di.Container) (string, any, error) {
				req, err := flags.request(cmd)
				if err != nil {
					return "", nil, err
				}
				resp := c.GetCommunicationManager().OptimizedEscalation(ctx, req)
				if !resp.Success {
					return "", nil, goerr.New("escalation failed: "+resp.Message,
						goerr.V("tool", req.OriginalToolName), goerr.V("story_file_id", resp.StoryFileID))
				}
				return resp.Message, resp, nil
			})
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "YAML or JSON escalation request ('-' for stdin)")
	cmd.Flags().StringVar(&flags.tool, "tool", "", "Tool that could not be completed")
	cmd.Flags().StringVar(&flags.source, "source", "", "Escalating agent")
	cmd.Flags().StringVar(&flags.target, "target", "", "Explicit handler, skipping routing")
	cmd.Flags().StringVar(&flags.urgency, "urgency", string(model.UrgencyMedium), "Urgency (low, medium, high, critical, emergency)")
	cmd.Flags().StringVar(&flags.reason, "reason", "", "Why the agent escalates")
	cmd.Flags().StringVar(&flags.message, "message", "", "Message for the handler")
	cmd.Flags().StringVar(&flags.storyFileID, "story", "", "Existing story file to update")
	cmd.Flags().BoolVar(&flags.newStory, "new-story", false, "Create a story file for this escalation")
	cmd.Flags().StringSliceVar(&flags.capabilities, "capability", nil, "Capability the handler must have (repeatable)")
	cmd.Flags().StringSliceVar(&flags.completed, "completed", nil, "Completed work item (repeatable)")
	cmd.Flags().StringSliceVar(&flags.pending, "pending", nil, "Pending work item (repeatable)")
	cmd.Flags().StringSliceVar(&flags.attempted, "attempted", nil, "Action already attempted (repeatable)")

	return cmd
}

func (f *escalateFlags) request(cmd *cobra.Command) (dto.EscalationRequest, error) {
	var req dto.EscalationRequest
	if f.file != "" {
		if err := common.ReadDocument(cmd, f.file, &req); err != nil {
			return req, err
		}
	}

	changed := cmd.Flags().Changed
	setString := func(name string, dst *string, v string) {
		if changed(name) || *dst == "" {
			*dst = v
		}
	}
	setString("tool", &req.OriginalToolName, f.tool)
	setString("source", &req.SourceAgent, f.source)
	setString("target", &req.TargetAgent, f.target)
	setString("reason", &req.Reason, f.reason)
	setString("message", &req.Message, f.message)
	setString("story", &req.StoryFileID, f.storyFileID)
	if changed("urgency") || req.Urgency == "" {
		req.Urgency = model.Urgency(strings.ToUpper(f.urgency))
	}
	if changed("new-story") {
		req.RequiresNewStory = f.newStory
	}
	if changed("capability") {
		req.RequiredCapabilities = f.capabilities
	}
	if changed("completed") {
		req.CompletedWork = f.completed
	}
	if changed("pending") {
		req.PendingWork = f.pending
	}
	if changed("attempted") {
		req.AttemptedActions = f.attempted
	}

	if req.OriginalToolName == "" {
		return req, model.InvalidArgument("escalation needs a tool name (--tool or originalToolName)")
	}
	if req.SourceAgent == "" {
		return req, model.InvalidArgument("escalation needs a source agent (--source or sourceAgent)")
	}
	return req, nil
}
