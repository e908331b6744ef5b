package input

import (
	"github.com/YoshitsuguKoike/storyrelay/internal/application/dto"
)

// Agent is the minimal contract every actor implementation provides
type Agent interface {
	// Name returns the unique agent identifier
	Name() string

	// Tier is the agent's escalation tier (lower handles first)
	Tier() int

	// Capabilities lists what the agent can do
	Capabilities() []string

	// CanHandle reports whether the agent can take over work for a tool
	CanHandle(toolName string) bool

	// Priority ranks agents that can handle the same tool (higher wins)
	Priority() int
}

// Escalator is implemented by agents that take part in escalation decisions.
// It is optional; the communication manager checks for it once, at registration.
type Escalator interface {
	// CanEscalate reports whether the agent may currently receive escalations
	CanEscalate() bool

	// ShouldEscalate reports whether the agent wants to pass the request on
	ShouldEscalate(req dto.EscalationRequest) bool
}
