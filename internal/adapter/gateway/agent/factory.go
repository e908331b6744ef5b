// Package agent builds the agent roster the communication manager routes to.
// Agents are declared in configuration; each one is a static description of
// what the actor can handle.
package agent

import (
	"path"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/dto"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/input"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// Spec declares one agent
type Spec struct {
	Name         string   `yaml:"name" toml:"name"`
	Tier         int      `yaml:"tier" toml:"tier"`
	Priority     int      `yaml:"priority" toml:"priority"`
	Capabilities []string `yaml:"capabilities" toml:"capabilities"`
	// Tools are glob patterns (path.Match syntax); empty means every tool
	Tools []string `yaml:"tools" toml:"tools"`
	// Paused agents stay registered but receive no escalations
	Paused bool `yaml:"paused" toml:"paused"`
	// PassUrgencies lists urgencies this agent hands on to someone else
	PassUrgencies []string `yaml:"pass_urgencies" toml:"pass_urgencies"`
}

// StaticAgent is an agent described entirely by its Spec
type StaticAgent struct {
	spec Spec
}

// New validates spec and returns the agent
func New(spec Spec) (*StaticAgent, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return nil, model.InvalidArgument("agent name cannot be empty")
	}
	for _, pattern := range spec.Tools {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, model.InvalidArgument("invalid tool pattern",
				goerr.V("agent", spec.Name), goerr.V("pattern", pattern))
		}
	}
	spec.Capabilities = slices.Clone(spec.Capabilities)
	spec.Tools = slices.Clone(spec.Tools)
	spec.PassUrgencies = slices.Clone(spec.PassUrgencies)
	for i, u := range spec.PassUrgencies {
		spec.PassUrgencies[i] = strings.ToUpper(u)
	}
	return &StaticAgent{spec: spec}, nil
}

// NewAgents builds a roster, rejecting duplicate names
func NewAgents(specs []Spec) ([]input.Agent, error) {
	seen := make(map[string]struct{}, len(specs))
	agents := make([]input.Agent, 0, len(specs))
	for _, spec := range specs {
		a, err := New(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[a.Name()]; dup {
			return nil, model.InvalidArgument("duplicate agent name", goerr.V("agent", a.Name()))
		}
		seen[a.Name()] = struct{}{}
		agents = append(agents, a)
	}
	return agents, nil
}

func (a *StaticAgent) Name() string { return a.spec.Name }

func (a *StaticAgent) Tier() int { return a.spec.Tier }

func (a *StaticAgent) Priority() int { return a.spec.Priority }

func (a *StaticAgent) Capabilities() []string { return slices.Clone(a.spec.Capabilities) }

// CanHandle matches toolName against the declared patterns
func (a *StaticAgent) CanHandle(toolName string) bool {
	if len(a.spec.Tools) == 0 {
		return true
	}
	for _, pattern := range a.spec.Tools {
		if ok, _ := path.Match(pattern, toolName); ok {
			return true
		}
	}
	return false
}

// CanEscalate is false while the agent is paused
func (a *StaticAgent) CanEscalate() bool { return !a.spec.Paused }

// ShouldEscalate passes on requests whose urgency the agent declines
func (a *StaticAgent) ShouldEscalate(req dto.EscalationRequest) bool {
	return slices.Contains(a.spec.PassUrgencies, strings.ToUpper(string(req.Urgency)))
}

var (
	_ input.Agent     = (*StaticAgent)(nil)
	_ input.Escalator = (*StaticAgent)(nil)
)
