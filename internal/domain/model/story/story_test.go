package story

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

func TestNew_InitialState(t *testing.T) {
	sf, err := New("implementer", Context{}, []string{"write parser"}, 5)
	require.NoError(t, err)

	assert.NotEmpty(t, sf.ID)
	assert.Equal(t, 1, sf.Version)
	assert.Equal(t, model.PhasePlanning, sf.Phase)
	assert.Equal(t, model.StatusDraft, sf.Status)
	assert.Empty(t, sf.PreviousAgents)
	assert.NotNil(t, sf.Context.Original)
	assert.NotNil(t, sf.Context.Current)
	assert.Equal(t, sf.CreatedAt, sf.UpdatedAt)
}

func TestNew_Rejects(t *testing.T) {
	_, err := New("", Context{}, nil, 5)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = New("implementer", Context{}, nil, model.MaxPriority+1)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = New("implementer", Context{}, nil, model.MinPriority-1)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	for _, p := range []int{model.MinPriority, model.MaxPriority} {
		_, err = New("implementer", Context{}, nil, p)
		assert.NoError(t, err, "priority %d", p)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	sf, err := New("implementer", Context{Original: map[string]any{"tool": "csv-parser"}}, []string{"a"}, 5)
	require.NoError(t, err)
	sf.AppendDecision(DecisionRecord{ID: "d1", Description: "use encoding/csv"})

	c := sf.Clone()
	c.PendingWork[0] = "changed"
	c.Context.Original["tool"] = "other"
	c.Decisions[0].Description = "changed"

	assert.Equal(t, "a", sf.PendingWork[0])
	assert.Equal(t, "csv-parser", sf.Context.Original["tool"])
	assert.Equal(t, "use encoding/csv", sf.Decisions[0].Description)
	assert.Nil(t, (*StoryFile)(nil).Clone())
}

func TestHandOver_KeepsTrail(t *testing.T) {
	sf, err := New("implementer", Context{}, nil, 5)
	require.NoError(t, err)

	sf.HandOver("reviewer", "parser done, review headers")
	sf.HandOver("tester", "review finished, run the suite")

	assert.Equal(t, "tester", sf.CurrentAgent)
	assert.Equal(t, []string{"implementer", "reviewer"}, sf.PreviousAgents)
	assert.Equal(t, model.StatusHandedOver, sf.Status)
	assert.Equal(t, "review finished, run the suite", sf.HandoverNotes)
}

func TestTransitionTo(t *testing.T) {
	sf, err := New("implementer", Context{}, nil, 5)
	require.NoError(t, err)

	err = sf.TransitionTo(model.PhaseValidation)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "PLANNING")
	assert.Contains(t, err.Error(), "VALIDATION")
	assert.Equal(t, model.PhasePlanning, sf.Phase)

	for _, p := range []model.Phase{model.PhaseImplementation, model.PhaseValidation, model.PhaseCompleted} {
		require.NoError(t, sf.TransitionTo(p))
	}
	assert.Equal(t, model.StatusCompleted, sf.Status)
	assert.ErrorIs(t, sf.TransitionTo(model.PhaseValidation), model.ErrInvalidTransition)
}

func TestIsExpired(t *testing.T) {
	sf, err := New("implementer", Context{}, nil, 5)
	require.NoError(t, err)
	later := sf.CreatedAt.Add(2 * time.Hour)

	assert.False(t, sf.IsExpired(later), "no TTL never expires")

	sf.TTL = time.Hour
	assert.True(t, sf.IsExpired(later))
	assert.False(t, sf.IsExpired(sf.CreatedAt.Add(30*time.Minute)))
	assert.Equal(t, 2*time.Hour, sf.Age(later))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"csv", "parser"}, NormalizeTags([]string{"parser", "", "csv", "parser"}))
	assert.Empty(t, NormalizeTags(nil))
}
