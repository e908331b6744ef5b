package presenter

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/dto"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	domainservice "github.com/YoshitsuguKoike/storyrelay/internal/domain/service"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
)

// TextPresenter implements output.Presenter for terminals.
// Known result types get a dedicated layout; anything else is dumped as YAML.
type TextPresenter struct {
	output io.Writer
}

// NewTextPresenter creates a new text presenter
func NewTextPresenter(output io.Writer) output.Presenter {
	return &TextPresenter{output: output}
}

// PresentSuccess presents a successful result
func (p *TextPresenter) PresentSuccess(message string, data interface{}) error {
	fmt.Fprintf(p.output, "%s %s\n", okMark("✓"), message)
	if data == nil {
		return nil
	}
	fmt.Fprintln(p.output)

	switch v := data.(type) {
	case *story.StoryFile:
		return p.presentStory(v)
	case []*story.StoryFile:
		return p.presentStoryList(v)
	case dto.EscalationResponse:
		return p.presentEscalation(v)
	case domainservice.HandoverValidation:
		return p.presentValidation(v)
	case []service.ScoredMemory:
		return p.presentScoredMemories(v)
	case []service.RelatedMemory:
		return p.presentRelatedMemories(v)
	default:
		return p.presentYAML(v)
	}
}

// PresentError presents an error
func (p *TextPresenter) PresentError(err error) error {
	fmt.Fprintf(p.output, "%s Error: %v\n", failMark("✗"), err)
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		for _, e := range verr.Errors {
			fmt.Fprintf(p.output, "  - %s\n", e)
		}
	}
	return err
}

// PresentProgress presents progress information
func (p *TextPresenter) PresentProgress(message string, progress int, total int) error {
	if total <= 0 {
		fmt.Fprintf(p.output, "%s\n", message)
		return nil
	}
	if progress > total {
		progress = total
	}
	percentage := float64(progress) / float64(total) * 100
	bar := strings.Repeat("█", progress) + strings.Repeat("░", total-progress)
	fmt.Fprintf(p.output, "\r%s [%s] %.1f%%", message, bar, percentage)
	return nil
}

func (p *TextPresenter) presentStory(sf *story.StoryFile) error {
	fmt.Fprintf(p.output, "Story File: %s\n", sf.ID)
	fmt.Fprintf(p.output, "Version: %d\n", sf.Version)
	fmt.Fprintf(p.output, "Agent: %s\n", sf.CurrentAgent)
	if len(sf.PreviousAgents) > 0 {
		fmt.Fprintf(p.output, "Previous Agents: %s\n", strings.Join(sf.PreviousAgents, " → "))
	}
	fmt.Fprintf(p.output, "Phase: %s\n", sf.Phase)
	fmt.Fprintf(p.output, "Status: %s\n", sf.Status)
	fmt.Fprintf(p.output, "Priority: %d\n", sf.Priority)

	if len(sf.Tags) > 0 {
		fmt.Fprintf(p.output, "Tags: %s\n", strings.Join(sf.Tags, ", "))
	}
	if sf.HandoverNotes != "" {
		fmt.Fprintf(p.output, "\nHandover Notes:\n%s\n", sf.HandoverNotes)
	}

	p.presentWorkList("Completed Work", sf.CompletedWork)
	p.presentWorkList("Pending Work", sf.PendingWork)

	if len(sf.Decisions) > 0 {
		fmt.Fprintf(p.output, "\nDecisions:\n")
		for _, d := range sf.Decisions {
			fmt.Fprintf(p.output, "  - [%s/%s] %s (%s)\n", d.DecisionType, d.Impact, d.Description, d.AgentName)
		}
	}
	if sf.RollbackPlan != "" {
		fmt.Fprintf(p.output, "\nRollback Plan:\n%s\n", sf.RollbackPlan)
	}
	return nil
}

func (p *TextPresenter) presentWorkList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(p.output, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(p.output, "  - %s\n", item)
	}
}

func (p *TextPresenter) presentStoryList(list []*story.StoryFile) error {
	fmt.Fprintf(p.output, "Total: %d story files\n\n", len(list))
	if len(list) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGENT\tPHASE\tSTATUS\tPRIORITY\tVERSION\tUPDATED")
	for _, sf := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			sf.ID, sf.CurrentAgent, sf.Phase, sf.Status, sf.Priority, sf.Version,
			sf.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (p *TextPresenter) presentEscalation(resp dto.EscalationResponse) error {
	fmt.Fprintf(p.output, "Handled By: %s\n", resp.HandledBy)
	if resp.StoryFileID != "" {
		fmt.Fprintf(p.output, "Story File: %s (v%d, %s/%s)\n",
			resp.StoryFileID, resp.StoryUpdates.Version, resp.StoryUpdates.Phase, resp.StoryUpdates.Status)
	}
	var changes []string
	if resp.StoryUpdates.Created {
		changes = append(changes, "created")
	}
	if resp.StoryUpdates.Updated {
		changes = append(changes, "updated")
	}
	if resp.StoryUpdates.HandedOver {
		changes = append(changes, "handed over")
	}
	if len(changes) > 0 {
		fmt.Fprintf(p.output, "Story Changes: %s\n", strings.Join(changes, ", "))
	}
	return nil
}

func (p *TextPresenter) presentValidation(v domainservice.HandoverValidation) error {
	verdict := okMark("ready for handover")
	if !v.IsValid {
		verdict = failMark("not ready for handover")
	}
	fmt.Fprintf(p.output, "Result: %s\n", verdict)
	fmt.Fprintf(p.output, "Completeness: %d/100\n", v.CompletenessScore)
	for _, e := range v.Errors {
		fmt.Fprintf(p.output, "  %s %s\n", failMark("✗"), e)
	}
	for _, w := range v.Warnings {
		fmt.Fprintf(p.output, "  %s %s\n", warnMark("!"), w)
	}
	return nil
}

func (p *TextPresenter) presentScoredMemories(list []service.ScoredMemory) error {
	fmt.Fprintf(p.output, "Total: %d memories\n\n", len(list))
	if len(list) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tID\tTYPE\tCONTENT")
	for _, sm := range list {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", sm.Score, sm.Memory.ID, sm.Memory.MemoryType, truncate(sm.Memory.Content, 60))
	}
	return w.Flush()
}

func (p *TextPresenter) presentRelatedMemories(list []service.RelatedMemory) error {
	fmt.Fprintf(p.output, "Total: %d related memories\n\n", len(list))
	if len(list) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEPTH\tID\tVIA\tRELATION\tWEIGHT\tCONTENT")
	for _, rm := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
			rm.Depth, rm.Memory.ID, rm.ViaID, rm.RelationType, rm.Weight, truncate(rm.Memory.Content, 50))
	}
	return w.Flush()
}

func (p *TextPresenter) presentYAML(data interface{}) error {
	enc := yaml.NewEncoder(p.output)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
