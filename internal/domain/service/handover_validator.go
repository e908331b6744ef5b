package service

import (
	"strings"
	"unicode/utf8"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// Validation messages. Downstream audit tooling matches on these strings.
const (
	MsgHandoverNotesTooShort = "Handover notes must be at least 10 characters"
	MsgTestResultsRequired   = "Test results are required before handover in VALIDATION phase"
	MsgRollbackPlanRequired  = "Rollback plan is required when security vulnerabilities are present"
	MsgNoPendingWork         = "No pending work listed for an unfinished story"
	MsgNoDecisions           = "No decisions have been recorded"
)

const (
	// MinHandoverNotesLength is the shortest accepted handover note, in runes
	MinHandoverNotesLength = 10
	errorPenalty           = 25
	warningPenalty         = 10
)

// HandoverValidation is the outcome of checking a story file before it moves on
type HandoverValidation struct {
	IsValid           bool     `json:"isValid"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings"`
	CompletenessScore int      `json:"completenessScore"`
}

// ValidateHandover checks the readiness of a story file for handover.
// Errors block the handover; warnings only lower the completeness score.
func ValidateHandover(sf *story.StoryFile) HandoverValidation {
	result := HandoverValidation{
		Errors:   []string{},
		Warnings: []string{},
	}

	if utf8.RuneCountInString(strings.TrimSpace(sf.HandoverNotes)) < MinHandoverNotesLength {
		result.Errors = append(result.Errors, MsgHandoverNotesTooShort)
	}
	if sf.Phase == model.PhaseValidation && !sf.Context.Technical.HasTestResults() {
		result.Errors = append(result.Errors, MsgTestResultsRequired)
	}
	if sf.Context.Technical.VulnerabilityCount() > 0 && strings.TrimSpace(sf.RollbackPlan) == "" {
		result.Errors = append(result.Errors, MsgRollbackPlanRequired)
	}

	if len(sf.PendingWork) == 0 && sf.Status != model.StatusCompleted {
		result.Warnings = append(result.Warnings, MsgNoPendingWork)
	}
	if len(sf.Decisions) == 0 {
		result.Warnings = append(result.Warnings, MsgNoDecisions)
	}

	score := 100 - errorPenalty*len(result.Errors) - warningPenalty*len(result.Warnings)
	if score < 0 {
		score = 0
	}
	result.CompletenessScore = score
	result.IsValid = len(result.Errors) == 0

	return result
}

// CanTransitionPhase is the phase adjacency check; it never looks at record content
func CanTransitionPhase(current, target model.Phase) bool {
	return current.CanTransitionTo(target)
}
