package model

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Phase represents the stage of work a story file is in
type Phase string

const (
	PhasePlanning       Phase = "PLANNING"
	PhaseImplementation Phase = "IMPLEMENTATION"
	PhaseValidation     Phase = "VALIDATION"
	PhaseCompleted      Phase = "COMPLETED"
)

// String returns the string representation
func (p Phase) String() string {
	return string(p)
}

// IsValid validates the phase
func (p Phase) IsValid() bool {
	switch p {
	case PhasePlanning, PhaseImplementation, PhaseValidation, PhaseCompleted:
		return true
	default:
		return false
	}
}

// phaseTransitions lists forward edges and the two rollback edges.
// COMPLETED has no outgoing edge.
var phaseTransitions = map[Phase][]Phase{
	PhasePlanning:       {PhaseImplementation},
	PhaseImplementation: {PhaseValidation, PhasePlanning},
	PhaseValidation:     {PhaseCompleted, PhaseImplementation},
	PhaseCompleted:      {},
}

// CanTransitionTo checks if a phase transition is allowed
func (p Phase) CanTransitionTo(next Phase) bool {
	allowed, exists := phaseTransitions[p]
	if !exists {
		return false
	}

	for _, allowedPhase := range allowed {
		if allowedPhase == next {
			return true
		}
	}
	return false
}

// ParsePhase converts user input to a Phase
func ParsePhase(s string) (Phase, bool) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// Status represents the ownership state of a story file
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusActive     Status = "ACTIVE"
	StatusHandedOver Status = "HANDED_OVER"
	StatusCompleted  Status = "COMPLETED"
	StatusAbandoned  Status = "ABANDONED"
)

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusHandedOver, StatusCompleted, StatusAbandoned:
		return true
	default:
		return false
	}
}

// ParseStatus converts user input to a Status
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.IsValid()
}

// DecisionType classifies a decision record
type DecisionType string

const (
	DecisionArchitectural DecisionType = "architectural"
	DecisionTechnical     DecisionType = "technical"
	DecisionProcess       DecisionType = "process"
)

// IsValid validates the decision type
func (d DecisionType) IsValid() bool {
	switch d {
	case DecisionArchitectural, DecisionTechnical, DecisionProcess:
		return true
	default:
		return false
	}
}

// Impact is the expected blast radius of a decision
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

// IsValid validates the impact level
func (i Impact) IsValid() bool {
	switch i {
	case ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical:
		return true
	default:
		return false
	}
}

// Urgency of an escalation request
type Urgency string

const (
	UrgencyLow       Urgency = "LOW"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyCritical  Urgency = "CRITICAL"
	UrgencyEmergency Urgency = "EMERGENCY"
)

// Priority maps urgency onto the 0-10 story priority scale.
// Unknown urgencies land in the middle of the scale.
func (u Urgency) Priority() int {
	switch Urgency(strings.ToUpper(string(u))) {
	case UrgencyLow:
		return 2
	case UrgencyMedium:
		return 5
	case UrgencyHigh:
		return 8
	case UrgencyCritical, UrgencyEmergency:
		return 10
	default:
		return 5
	}
}

// Story file priority bounds, inclusive
const (
	MinPriority = 0
	MaxPriority = 10
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewStoryFileID generates a time-sortable story file ID (ULID)
func NewStoryFileID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewID generates a random identifier for memories, sessions and decisions
func NewID() string {
	return uuid.New().String()
}
