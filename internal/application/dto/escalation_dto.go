package dto

import (
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// EscalationRequest is emitted by an agent that cannot finish a task on its own
type EscalationRequest struct {
	OriginalToolName     string                  `json:"originalToolName" yaml:"originalToolName"`
	OriginalContext      map[string]any          `json:"originalContext,omitempty" yaml:"originalContext,omitempty"`
	Reason               string                  `json:"reason" yaml:"reason"`
	Urgency              model.Urgency           `json:"urgency" yaml:"urgency"`
	SourceAgent          string                  `json:"sourceAgent" yaml:"sourceAgent"`
	TargetAgent          string                  `json:"targetAgent,omitempty" yaml:"targetAgent,omitempty"`
	Message              string                  `json:"message" yaml:"message"`
	AttemptedActions     []string                `json:"attemptedActions,omitempty" yaml:"attemptedActions,omitempty"`
	RequiredCapabilities []string                `json:"requiredCapabilities,omitempty" yaml:"requiredCapabilities,omitempty"`
	StoryFileID          string                  `json:"storyFileId,omitempty" yaml:"storyFileId,omitempty"`
	RequiresNewStory     bool                    `json:"requiresNewStory,omitempty" yaml:"requiresNewStory,omitempty"`
	CompletedWork        []string                `json:"completedWork,omitempty" yaml:"completedWork,omitempty"`
	PendingWork          []string                `json:"pendingWork,omitempty" yaml:"pendingWork,omitempty"`
	TechnicalContext     *story.TechnicalContext `json:"technicalContext,omitempty" yaml:"technicalContext,omitempty"`
}

// EscalationResponse reports how an escalation was handled
type EscalationResponse struct {
	Success      bool         `json:"success"`
	StoryFileID  string       `json:"storyFileId,omitempty"`
	HandledBy    string       `json:"handledBy,omitempty"`
	StoryUpdates StoryUpdates `json:"storyUpdates"`
	Message      string       `json:"message"`
}

// StoryUpdates summarises what an escalation did to its story file
type StoryUpdates struct {
	Created    bool         `json:"created"`
	Updated    bool         `json:"updated"`
	HandedOver bool         `json:"handedOver"`
	Version    int          `json:"version,omitempty"`
	Phase      model.Phase  `json:"phase,omitempty"`
	Status     model.Status `json:"status,omitempty"`
}
