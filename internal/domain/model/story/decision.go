package story

import (
	"slices"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// DecisionRecord is an immutable audit-trail entry
type DecisionRecord struct {
	ID           string             `json:"id" yaml:"id"`
	Timestamp    time.Time          `json:"timestamp" yaml:"timestamp"`
	AgentName    string             `json:"agentName" yaml:"agentName"`
	DecisionType model.DecisionType `json:"decisionType" yaml:"decisionType"`
	Description  string             `json:"description" yaml:"description"`
	Rationale    string             `json:"rationale" yaml:"rationale"`
	Impact       model.Impact       `json:"impact" yaml:"impact"`
	Reversible   bool               `json:"reversible" yaml:"reversible"`
	Alternatives []string           `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	Dependencies []string           `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Outcome      *DecisionOutcome   `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// DecisionOutcome records how a decision played out
type DecisionOutcome struct {
	Success        bool   `json:"success" yaml:"success"`
	Notes          string `json:"notes,omitempty" yaml:"notes,omitempty"`
	MeasuredImpact string `json:"measuredImpact,omitempty" yaml:"measuredImpact,omitempty"`
}

// NewDecisionRecord validates the enums and stamps ID and timestamp
func NewDecisionRecord(
	agentName string,
	decisionType model.DecisionType,
	description string,
	rationale string,
	impact model.Impact,
	reversible bool,
) (DecisionRecord, error) {
	if agentName == "" {
		return DecisionRecord{}, model.InvalidArgument("decision agent name cannot be empty")
	}
	if !decisionType.IsValid() {
		return DecisionRecord{}, model.InvalidArgument("invalid decision type: " + string(decisionType))
	}
	if !impact.IsValid() {
		return DecisionRecord{}, model.InvalidArgument("invalid decision impact: " + string(impact))
	}
	if description == "" {
		return DecisionRecord{}, model.InvalidArgument("decision description cannot be empty")
	}

	return DecisionRecord{
		ID:           model.NewID(),
		Timestamp:    time.Now().UTC(),
		AgentName:    agentName,
		DecisionType: decisionType,
		Description:  description,
		Rationale:    rationale,
		Impact:       impact,
		Reversible:   reversible,
	}, nil
}

// Clone returns a deep copy
func (d DecisionRecord) Clone() DecisionRecord {
	c := d
	c.Alternatives = slices.Clone(d.Alternatives)
	c.Dependencies = slices.Clone(d.Dependencies)
	if d.Outcome != nil {
		o := *d.Outcome
		c.Outcome = &o
	}
	return c
}
