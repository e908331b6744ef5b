package story

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// StoryFile is the persistent unit of delegated work.
// It is an aggregate root: callers receive copies and mutate it only
// through the story file manager.
type StoryFile struct {
	ID             string           `json:"id" yaml:"id"`
	Version        int              `json:"version" yaml:"version"`
	CurrentAgent   string           `json:"currentAgent" yaml:"currentAgent"`
	PreviousAgents []string         `json:"previousAgents" yaml:"previousAgents"`
	Phase          model.Phase      `json:"phase" yaml:"phase"`
	Status         model.Status     `json:"status" yaml:"status"`
	Context        Context          `json:"context" yaml:"context"`
	CompletedWork  []string         `json:"completedWork" yaml:"completedWork"`
	PendingWork    []string         `json:"pendingWork" yaml:"pendingWork"`
	Decisions      []DecisionRecord `json:"decisions" yaml:"decisions"`
	HandoverNotes  string           `json:"handoverNotes" yaml:"handoverNotes"`
	Priority       int              `json:"priority" yaml:"priority"`
	Tags           []string         `json:"tags" yaml:"tags"`
	RollbackPlan   string           `json:"rollbackPlan,omitempty" yaml:"rollbackPlan,omitempty"`
	TTL            time.Duration    `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	CreatedAt      time.Time        `json:"createdAt" yaml:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt" yaml:"updatedAt"`
}

// Context holds the request metadata plus the structured technical bundle
type Context struct {
	Original  map[string]any    `json:"original" yaml:"original"`
	Current   map[string]any    `json:"current" yaml:"current"`
	Technical *TechnicalContext `json:"technical,omitempty" yaml:"technical,omitempty"`
}

// Clone returns a deep copy of the context
func (c Context) Clone() Context {
	return Context{
		Original:  cloneMap(c.Original),
		Current:   cloneMap(c.Current),
		Technical: c.Technical.Clone(),
	}
}

// New creates a story file in its initial state (PLANNING / DRAFT, version 1)
func New(agent string, ctx Context, pendingWork []string, priority int) (*StoryFile, error) {
	if agent == "" {
		return nil, model.InvalidArgument("agent name cannot be empty")
	}
	if priority < model.MinPriority || priority > model.MaxPriority {
		return nil, model.InvalidArgument("priority must be between 0 and 10")
	}

	now := time.Now().UTC()
	sf := &StoryFile{
		ID:             model.NewStoryFileID(),
		Version:        1,
		CurrentAgent:   agent,
		PreviousAgents: []string{},
		Phase:          model.PhasePlanning,
		Status:         model.StatusDraft,
		Context:        ctx.Clone(),
		CompletedWork:  []string{},
		PendingWork:    append([]string{}, pendingWork...),
		Decisions:      []DecisionRecord{},
		Priority:       priority,
		Tags:           []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sf.Context.Original == nil {
		sf.Context.Original = map[string]any{}
	}
	if sf.Context.Current == nil {
		sf.Context.Current = map[string]any{}
	}
	return sf, nil
}

// Clone returns a deep copy so callers can never edit a stored record in place
func (s *StoryFile) Clone() *StoryFile {
	if s == nil {
		return nil
	}
	c := *s
	c.PreviousAgents = slices.Clone(s.PreviousAgents)
	c.Context = s.Context.Clone()
	c.CompletedWork = slices.Clone(s.CompletedWork)
	c.PendingWork = slices.Clone(s.PendingWork)
	c.Tags = slices.Clone(s.Tags)
	c.Decisions = make([]DecisionRecord, len(s.Decisions))
	for i, d := range s.Decisions {
		c.Decisions[i] = d.Clone()
	}
	return &c
}

// Touch increments the version and refreshes UpdatedAt.
// Every persisted mutation goes through here.
func (s *StoryFile) Touch() {
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// HandOver moves ownership to target, keeping the previous owner in the trail
func (s *StoryFile) HandOver(target, notes string) {
	s.PreviousAgents = append(s.PreviousAgents, s.CurrentAgent)
	s.CurrentAgent = target
	s.Status = model.StatusHandedOver
	s.HandoverNotes = notes
}

// TransitionTo changes the phase after checking the phase graph
func (s *StoryFile) TransitionTo(target model.Phase) error {
	if !s.Phase.CanTransitionTo(target) {
		return model.InvalidTransition(s.Phase, target)
	}
	s.Phase = target
	if target == model.PhaseCompleted {
		s.Status = model.StatusCompleted
	}
	return nil
}

// AppendDecision adds to the audit trail; existing records are never touched
func (s *StoryFile) AppendDecision(d DecisionRecord) {
	s.Decisions = append(s.Decisions, d)
}

// Age returns how long ago the story was created
func (s *StoryFile) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// IsExpired reports whether the story outlived its own TTL
func (s *StoryFile) IsExpired(now time.Time) bool {
	return s.TTL > 0 && now.Sub(s.CreatedAt) > s.TTL
}

// NormalizeTags sorts and deduplicates a tag set, dropping empty entries
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneMap(vv)
		case []any:
			out[k] = slices.Clone(vv)
		default:
			out[k] = v
		}
	}
	return out
}

// CloneMap is exported for other aggregates holding free-form metadata
func CloneMap(m map[string]any) map[string]any {
	return cloneMap(m)
}

// MergeMap shallow-merges updates into dst, replacing top-level keys
func MergeMap(dst, updates map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(updates))
	}
	maps.Copy(dst, cloneMap(updates))
	return dst
}
