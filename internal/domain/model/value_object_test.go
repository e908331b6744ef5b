package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==================== ID Tests ====================

func TestNewStoryFileID(t *testing.T) {
	id1 := NewStoryFileID()
	id2 := NewStoryFileID()

	assert.NotEqual(t, id1, id2)
	// ULID format check (basic)
	assert.Len(t, id1, 26)
	// Monotonic entropy keeps IDs sortable within the same millisecond
	assert.Less(t, id1, id2)
}

func TestNewID(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
	assert.Len(t, NewID(), 36)
}

// ==================== Phase Tests ====================

func TestPhase_IsValid(t *testing.T) {
	for _, p := range []Phase{PhasePlanning, PhaseImplementation, PhaseValidation, PhaseCompleted} {
		assert.True(t, p.IsValid(), p)
	}
	assert.False(t, Phase("REVIEW").IsValid())
}

func TestPhase_CompletedIsTerminal(t *testing.T) {
	for _, p := range []Phase{PhasePlanning, PhaseImplementation, PhaseValidation, PhaseCompleted} {
		assert.False(t, PhaseCompleted.CanTransitionTo(p), p)
	}
}

func TestParsePhase(t *testing.T) {
	p, ok := ParsePhase(" implementation ")
	assert.True(t, ok)
	assert.Equal(t, PhaseImplementation, p)

	_, ok = ParsePhase("done")
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("handed_over")
	assert.True(t, ok)
	assert.Equal(t, StatusHandedOver, s)

	_, ok = ParseStatus("closed")
	assert.False(t, ok)
}

// ==================== Urgency Tests ====================

func TestUrgency_Priority(t *testing.T) {
	tests := []struct {
		urgency Urgency
		want    int
	}{
		{UrgencyLow, 2},
		{UrgencyMedium, 5},
		{UrgencyHigh, 8},
		{UrgencyCritical, 10},
		{UrgencyEmergency, 10},
		{Urgency("high"), 8},
		{Urgency("whenever"), 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.urgency.Priority(), tt.urgency)
	}
}

// ==================== Error Tests ====================

func TestValidationError_MatchesSentinel(t *testing.T) {
	err := error(NewValidationError("sf-1", []string{"a", "b"}))

	assert.True(t, errors.Is(err, ErrValidationFailed))
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{"a", "b"}, vErr.Errors)
	assert.Contains(t, err.Error(), "a; b")
}

func TestInvalidTransition_NamesBothPhases(t *testing.T) {
	err := InvalidTransition(PhasePlanning, PhaseValidation)

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "PLANNING")
	assert.Contains(t, err.Error(), "VALIDATION")
}

func TestStorageError_KeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageError(cause, "save story file")

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")

	assert.Nil(t, StorageError(nil, "noop"))

	nf := NotFound("story file", "x")
	assert.Equal(t, nf, StorageError(nf, "find"))
}
