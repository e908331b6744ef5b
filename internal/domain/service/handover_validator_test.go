package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// Helper to create a story that passes every rule
func createReadyStory(t *testing.T) *story.StoryFile {
	t.Helper()
	sf, err := story.New("agent-a", story.Context{}, []string{"write docs"}, 5)
	require.NoError(t, err)
	sf.HandoverNotes = "API layer done, tests next"
	d, err := story.NewDecisionRecord("agent-a", model.DecisionTechnical, "use sqlite", "single process", model.ImpactLow, true)
	require.NoError(t, err)
	sf.AppendDecision(d)
	return sf
}

func TestValidateHandover_Ready(t *testing.T) {
	result := ValidateHandover(createReadyStory(t))

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 100, result.CompletenessScore)
}

func TestValidateHandover_ShortNotes(t *testing.T) {
	sf := createReadyStory(t)
	sf.HandoverNotes = "   short  "

	result := ValidateHandover(sf)

	assert.False(t, result.IsValid)
	assert.Equal(t, []string{MsgHandoverNotesTooShort}, result.Errors)
	assert.Equal(t, 75, result.CompletenessScore)
}

func TestValidateHandover_NotesLengthCountsRunes(t *testing.T) {
	sf := createReadyStory(t)

	sf.HandoverNotes = strings.Repeat("済", MinHandoverNotesLength)
	assert.True(t, ValidateHandover(sf).IsValid)

	sf.HandoverNotes = strings.Repeat("済", MinHandoverNotesLength-1)
	assert.Equal(t, []string{MsgHandoverNotesTooShort}, ValidateHandover(sf).Errors)
}

func TestValidateHandover_ValidationPhaseNeedsTests(t *testing.T) {
	sf := createReadyStory(t)
	sf.Phase = model.PhaseValidation

	result := ValidateHandover(sf)
	assert.Contains(t, result.Errors, MsgTestResultsRequired)

	sf.Context.Technical = &story.TechnicalContext{TestResults: &story.TestRunSummary{Total: 3, Passed: 3}}
	result = ValidateHandover(sf)
	assert.True(t, result.IsValid)
}

func TestValidateHandover_VulnerabilitiesNeedRollbackPlan(t *testing.T) {
	sf := createReadyStory(t)
	sf.Context.Technical = &story.TechnicalContext{
		Security: &story.SecurityConsiderations{VulnerabilitiesFound: 2},
	}

	result := ValidateHandover(sf)
	assert.Equal(t, []string{MsgRollbackPlanRequired}, result.Errors)

	sf.RollbackPlan = "revert migration 0004"
	result = ValidateHandover(sf)
	assert.True(t, result.IsValid)
}

func TestValidateHandover_ReportsEveryError(t *testing.T) {
	sf, err := story.New("agent-a", story.Context{}, nil, 5)
	require.NoError(t, err)
	sf.Phase = model.PhaseValidation
	sf.Context.Technical = &story.TechnicalContext{
		Security: &story.SecurityConsiderations{VulnerabilitiesFound: 1},
	}

	result := ValidateHandover(sf)

	assert.False(t, result.IsValid)
	assert.Equal(t, []string{MsgHandoverNotesTooShort, MsgTestResultsRequired, MsgRollbackPlanRequired}, result.Errors)
	assert.Equal(t, []string{MsgNoPendingWork, MsgNoDecisions}, result.Warnings)
	assert.Equal(t, 5, result.CompletenessScore)
}

func TestValidateHandover_WarningsDoNotBlock(t *testing.T) {
	sf, err := story.New("agent-a", story.Context{}, nil, 5)
	require.NoError(t, err)
	sf.HandoverNotes = "long enough notes here"

	result := ValidateHandover(sf)

	assert.True(t, result.IsValid)
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, 80, result.CompletenessScore)
}

func TestValidateHandover_CompletedStoryNeedsNoPendingWork(t *testing.T) {
	sf := createReadyStory(t)
	sf.PendingWork = nil
	sf.Status = model.StatusCompleted

	result := ValidateHandover(sf)
	assert.Empty(t, result.Warnings)
}

func TestValidateHandover_ScoreMonotonicWhenAdding(t *testing.T) {
	sf, err := story.New("agent-a", story.Context{}, nil, 5)
	require.NoError(t, err)
	before := ValidateHandover(sf).CompletenessScore

	sf.CompletedWork = append(sf.CompletedWork, "schema drafted")
	afterWork := ValidateHandover(sf).CompletenessScore
	assert.GreaterOrEqual(t, afterWork, before)

	d, err := story.NewDecisionRecord("agent-a", model.DecisionProcess, "pair on review", "", model.ImpactMedium, true)
	require.NoError(t, err)
	sf.AppendDecision(d)
	afterDecision := ValidateHandover(sf).CompletenessScore
	assert.GreaterOrEqual(t, afterDecision, afterWork)
}

func TestCanTransitionPhase(t *testing.T) {
	tests := []struct {
		from model.Phase
		to   model.Phase
		want bool
	}{
		{model.PhasePlanning, model.PhaseImplementation, true},
		{model.PhaseImplementation, model.PhaseValidation, true},
		{model.PhaseValidation, model.PhaseCompleted, true},
		{model.PhaseImplementation, model.PhasePlanning, true},
		{model.PhaseValidation, model.PhaseImplementation, true},
		{model.PhasePlanning, model.PhaseValidation, false},
		{model.PhasePlanning, model.PhaseCompleted, false},
		{model.PhaseValidation, model.PhasePlanning, false},
		{model.PhaseCompleted, model.PhaseValidation, false},
		{model.PhaseCompleted, model.PhasePlanning, false},
		{model.PhasePlanning, model.PhasePlanning, false},
		{model.Phase("UNKNOWN"), model.PhasePlanning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionPhase(tt.from, tt.to))
			// Same answer on repeat calls: no hidden state
			assert.Equal(t, tt.want, CanTransitionPhase(tt.from, tt.to))
		})
	}
}
