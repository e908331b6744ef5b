package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/repository/mock"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/transaction"
)

const validNotes = "API layer finished, please write tests"

// fakeArchive records archived story files and can be told to fail
type fakeArchive struct {
	mu       sync.Mutex
	archived map[string]*story.StoryFile
	failID   string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{archived: make(map[string]*story.StoryFile)}
}

func (a *fakeArchive) Archive(ctx context.Context, sf *story.StoryFile) (*output.ArchiveRecord, error) {
	if sf.ID == a.failID {
		return nil, errors.New("bucket unavailable")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived[sf.ID] = sf.Clone()
	return &output.ArchiveRecord{StoryFileID: sf.ID, Location: "mem://" + sf.ID, ArchivedAt: time.Now()}, nil
}

func (a *fakeArchive) Restore(ctx context.Context, id string) (*story.StoryFile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sf, ok := a.archived[id]
	if !ok {
		return nil, model.NotFound("archived story file", id)
	}
	return sf.Clone(), nil
}

func (a *fakeArchive) List(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.archived))
	for id := range a.archived {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestStoryManager(t *testing.T, opts ...StoryFileManagerOption) (*StoryFileManager, *mock.MockStoryFileRepository) {
	t.Helper()
	repo := mock.NewMockStoryFileRepository()
	return NewStoryFileManager(repo, transaction.NewMockTransactionManager(), opts...), repo
}

func createTestStory(t *testing.T, m *StoryFileManager, agent string) *story.StoryFile {
	t.Helper()
	sf, err := m.Create(context.Background(), CreateStoryFileInput{
		AgentName:   agent,
		Context:     story.Context{Original: map[string]any{"tool": "csv-parser"}},
		PendingWork: []string{"parse header"},
	})
	require.NoError(t, err)
	return sf
}

func intPtr(v int) *int { return &v }

// ==================== Create / Retrieve ====================

func TestStoryFileManager_Create(t *testing.T) {
	m, _ := newTestStoryManager(t)

	sf, err := m.Create(context.Background(), CreateStoryFileInput{
		AgentName:   "agent-a",
		PendingWork: []string{"design schema"},
		Tags:        []string{"db", "api", "db", ""},
		TTL:         time.Hour,
	})

	require.NoError(t, err)
	assert.Len(t, sf.ID, 26)
	assert.Equal(t, 1, sf.Version)
	assert.Equal(t, model.PhasePlanning, sf.Phase)
	assert.Equal(t, model.StatusDraft, sf.Status)
	assert.Equal(t, "agent-a", sf.CurrentAgent)
	assert.Empty(t, sf.PreviousAgents)
	assert.Equal(t, DefaultStoryPriority, sf.Priority)
	assert.Equal(t, []string{"api", "db"}, sf.Tags)
	assert.Equal(t, time.Hour, sf.TTL)
	assert.False(t, sf.CreatedAt.IsZero())
	assert.Equal(t, sf.CreatedAt, sf.UpdatedAt)
}

func TestStoryFileManager_Create_RejectsBadInput(t *testing.T) {
	m, repo := newTestStoryManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateStoryFileInput{AgentName: "agent-a", Priority: intPtr(11)})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = m.Create(ctx, CreateStoryFileInput{AgentName: ""})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	assert.Equal(t, 0, repo.Len())
}

func TestStoryFileManager_Retrieve(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")

	got, err := m.Retrieve(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// Mutating the returned copy never reaches the store
	got.PendingWork[0] = "tampered"
	again, err := m.Retrieve(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "parse header", again.PendingWork[0])

	_, err = m.Retrieve(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoryFileManager_StorageFailure(t *testing.T) {
	m, repo := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")
	cause := errors.New("database is locked")
	repo.FailWith(cause)

	_, err := m.Retrieve(context.Background(), created.ID)
	assert.ErrorIs(t, err, model.ErrStorage)
	assert.ErrorIs(t, err, cause)

	_, err = m.Update(context.Background(), created.ID, StoryFileUpdate{PendingWork: []string{}})
	assert.ErrorIs(t, err, model.ErrStorage)
}

// ==================== Update ====================

func TestStoryFileManager_Update_ReplacesLists(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")
	status := model.StatusActive

	updated, err := m.Update(context.Background(), created.ID, StoryFileUpdate{
		Status:         &status,
		CompletedWork:  []string{"parse header"},
		PendingWork:    []string{"parse rows", "emit json"},
		CurrentContext: map[string]any{"rows": 10},
		Priority:       intPtr(7),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, model.StatusActive, updated.Status)
	assert.Equal(t, []string{"parse header"}, updated.CompletedWork)
	assert.Equal(t, []string{"parse rows", "emit json"}, updated.PendingWork)
	assert.Equal(t, 10, updated.Context.Current["rows"])
	assert.Equal(t, "csv-parser", updated.Context.Original["tool"])
	assert.Equal(t, 7, updated.Priority)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestStoryFileManager_Update_NilFieldsUntouched(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")

	updated, err := m.Update(context.Background(), created.ID, StoryFileUpdate{})

	require.NoError(t, err)
	assert.Equal(t, created.PendingWork, updated.PendingWork)
	assert.Equal(t, created.Status, updated.Status)
	assert.Equal(t, 2, updated.Version)
}

func TestStoryFileManager_Update_AppendStrategy(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")

	updated, err := m.Update(context.Background(), created.ID, StoryFileUpdate{
		PendingWork:  []string{"emit json"},
		Tags:         []string{"csv", "api"},
		ListStrategy: ListAppend,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"parse header", "emit json"}, updated.PendingWork)
	assert.Equal(t, []string{"api", "csv"}, updated.Tags)

	updated, err = m.Update(context.Background(), created.ID, StoryFileUpdate{
		Tags:         []string{"csv", "zip"},
		ListStrategy: ListAppend,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "csv", "zip"}, updated.Tags)
}

func TestStoryFileManager_Update_ExpectedVersion(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")
	ctx := context.Background()

	_, err := m.Update(ctx, created.ID, StoryFileUpdate{ExpectedVersion: intPtr(1), PendingWork: []string{"x"}})
	require.NoError(t, err)

	_, err = m.Update(ctx, created.ID, StoryFileUpdate{ExpectedVersion: intPtr(1), PendingWork: []string{"y"}})
	assert.ErrorIs(t, err, model.ErrVersionConflict)

	got, err := m.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.PendingWork)
	assert.Equal(t, 2, got.Version)
}

func TestStoryFileManager_Update_Invalid(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")
	bad := model.Status("CLOSED")

	_, err := m.Update(context.Background(), created.ID, StoryFileUpdate{Status: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = m.Update(context.Background(), created.ID, StoryFileUpdate{Priority: intPtr(-1)})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = m.Update(context.Background(), "missing", StoryFileUpdate{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := m.Retrieve(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

// ==================== Handover ====================

func TestStoryFileManager_Handover(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")

	sf, err := m.Handover(context.Background(), created.ID, "agent-b", validNotes)

	require.NoError(t, err)
	assert.Equal(t, "agent-b", sf.CurrentAgent)
	assert.Equal(t, []string{"agent-a"}, sf.PreviousAgents)
	assert.Equal(t, model.StatusHandedOver, sf.Status)
	assert.Equal(t, validNotes, sf.HandoverNotes)
	assert.Equal(t, 2, sf.Version)
}

func TestStoryFileManager_Handover_BlockedByShortNotes(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")

	_, err := m.Handover(context.Background(), created.ID, "agent-b", "")

	require.ErrorIs(t, err, model.ErrValidationFailed)
	var vErr *model.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{"Handover notes must be at least 10 characters"}, vErr.Errors)
	assert.Contains(t, err.Error(), "Handover notes must be at least 10 characters")

	got, err := m.Retrieve(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", got.CurrentAgent)
	assert.Equal(t, 1, got.Version)
	assert.Empty(t, got.HandoverNotes)
}

func TestStoryFileManager_Handover_ListsEveryError(t *testing.T) {
	m, _ := newTestStoryManager(t)
	ctx := context.Background()
	created := createTestStory(t, m, "agent-a")

	_, err := m.Update(ctx, created.ID, StoryFileUpdate{
		TechnicalContext: &story.TechnicalContext{
			Security: &story.SecurityConsiderations{VulnerabilitiesFound: 1},
		},
	})
	require.NoError(t, err)
	_, err = m.TransitionPhase(ctx, created.ID, model.PhaseImplementation)
	require.NoError(t, err)
	_, err = m.TransitionPhase(ctx, created.ID, model.PhaseValidation)
	require.NoError(t, err)

	_, err = m.Handover(ctx, created.ID, "agent-b", "short")

	var vErr *model.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Errors, 3)
}

func TestStoryFileManager_Handover_ToCurrentOwnerRejected(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")

	_, err := m.Handover(context.Background(), created.ID, "agent-a", validNotes)
	assert.ErrorIs(t, err, model.ErrValidationFailed)

	_, err = m.Handover(context.Background(), created.ID, " ", validNotes)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = m.Handover(context.Background(), "missing", "agent-b", validNotes)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoryFileManager_Handover_Chain(t *testing.T) {
	m, _ := newTestStoryManager(t)
	ctx := context.Background()
	created := createTestStory(t, m, "A")

	_, err := m.Handover(ctx, created.ID, "B", validNotes)
	require.NoError(t, err)
	sf, err := m.Handover(ctx, created.ID, "C", validNotes)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, sf.PreviousAgents)
	assert.Equal(t, "C", sf.CurrentAgent)
	assert.Equal(t, 3, sf.Version)
}

func TestStoryFileManager_ConcurrentHandovers(t *testing.T) {
	m, _ := newTestStoryManager(t)
	ctx := context.Background()

	ids := make([]string, 5)
	eg, egCtx := errgroup.WithContext(ctx)
	for i := range ids {
		eg.Go(func() error {
			sf, err := m.Create(egCtx, CreateStoryFileInput{
				AgentName:   fmt.Sprintf("source-%d", i),
				PendingWork: []string{"task"},
			})
			if err != nil {
				return err
			}
			ids[i] = sf.ID
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	eg, egCtx = errgroup.WithContext(ctx)
	for i, id := range ids {
		eg.Go(func() error {
			_, err := m.Handover(egCtx, id, fmt.Sprintf("target-%d", i), validNotes)
			return err
		})
	}
	require.NoError(t, eg.Wait())

	for i, id := range ids {
		sf, err := m.Retrieve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("target-%d", i), sf.CurrentAgent)
		assert.Equal(t, []string{fmt.Sprintf("source-%d", i)}, sf.PreviousAgents)
	}
}

// ==================== Phases / Decisions ====================

func TestStoryFileManager_TransitionPhase(t *testing.T) {
	m, _ := newTestStoryManager(t)
	ctx := context.Background()
	created := createTestStory(t, m, "agent-a")

	_, err := m.TransitionPhase(ctx, created.ID, model.PhaseValidation)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "PLANNING")
	assert.Contains(t, err.Error(), "VALIDATION")

	for _, p := range []model.Phase{model.PhaseImplementation, model.PhasePlanning, model.PhaseImplementation, model.PhaseValidation} {
		_, err = m.TransitionPhase(ctx, created.ID, p)
		require.NoError(t, err, p)
	}

	sf, err := m.TransitionPhase(ctx, created.ID, model.PhaseCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, sf.Phase)
	assert.Equal(t, model.StatusCompleted, sf.Status)
	assert.Equal(t, 6, sf.Version)

	_, err = m.TransitionPhase(ctx, created.ID, model.PhaseValidation)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = m.TransitionPhase(ctx, created.ID, model.Phase("REVIEW"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestStoryFileManager_AddDecision(t *testing.T) {
	m, _ := newTestStoryManager(t)
	ctx := context.Background()
	created := createTestStory(t, m, "agent-a")

	sf, err := m.AddDecision(ctx, created.ID, DecisionInput{
		AgentName:    "agent-a",
		DecisionType: model.DecisionArchitectural,
		Description:  "split parser from writer",
		Rationale:    "independent testing",
		Impact:       model.ImpactMedium,
		Reversible:   true,
		Alternatives: []string{"single module"},
	})
	require.NoError(t, err)
	require.Len(t, sf.Decisions, 1)
	assert.NotEmpty(t, sf.Decisions[0].ID)
	assert.False(t, sf.Decisions[0].Timestamp.IsZero())
	assert.Equal(t, []string{"single module"}, sf.Decisions[0].Alternatives)
	assert.Equal(t, 2, sf.Version)

	sf, err = m.AddDecision(ctx, created.ID, DecisionInput{
		AgentName:    "agent-a",
		DecisionType: model.DecisionProcess,
		Description:  "pair review",
		Impact:       model.ImpactLow,
	})
	require.NoError(t, err)
	require.Len(t, sf.Decisions, 2)
	assert.Equal(t, "split parser from writer", sf.Decisions[0].Description)

	_, err = m.AddDecision(ctx, created.ID, DecisionInput{
		AgentName:    "agent-a",
		DecisionType: model.DecisionType("political"),
		Description:  "x",
		Impact:       model.ImpactLow,
	})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestStoryFileManager_Validate(t *testing.T) {
	m, _ := newTestStoryManager(t)
	created := createTestStory(t, m, "agent-a")

	result, err := m.Validate(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, 65, result.CompletenessScore)

	_, err = m.Validate(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoryFileManager_List(t *testing.T) {
	m, _ := newTestStoryManager(t)
	ctx := context.Background()
	a := createTestStory(t, m, "agent-a")
	createTestStory(t, m, "agent-b")
	_, err := m.Handover(ctx, a.ID, "agent-c", validNotes)
	require.NoError(t, err)

	byAgent, err := m.List(ctx, repository.StoryFileFilter{CurrentAgent: "agent-c"})
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, a.ID, byAgent[0].ID)

	drafts, err := m.List(ctx, repository.StoryFileFilter{Statuses: []model.Status{model.StatusDraft}})
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	limited, err := m.List(ctx, repository.StoryFileFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// ==================== Cleanup ====================

func TestStoryFileManager_CleanupZeroRemovesAll(t *testing.T) {
	m, repo := newTestStoryManager(t)
	for i := 0; i < 4; i++ {
		createTestStory(t, m, fmt.Sprintf("agent-%d", i))
	}

	removed, err := m.Cleanup(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.Equal(t, 0, repo.Len())
}

func TestStoryFileManager_CleanupByAgeAndTTL(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	m, repo := newTestStoryManager(t, WithStoryClock(func() time.Time { return now }))
	ctx := context.Background()

	seed := func(agent string, age, ttl time.Duration) string {
		sf, err := story.New(agent, story.Context{}, nil, 5)
		require.NoError(t, err)
		sf.CreatedAt = now.Add(-age)
		sf.UpdatedAt = sf.CreatedAt
		sf.TTL = ttl
		require.NoError(t, repo.Create(ctx, sf))
		return sf.ID
	}
	old := seed("old", 48*time.Hour, 0)
	fresh := seed("fresh", time.Hour, 0)
	ttlExpired := seed("ttl", 2*time.Hour, 30*time.Minute)

	removed, err := m.Cleanup(ctx, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	_, err = m.Retrieve(ctx, old)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = m.Retrieve(ctx, ttlExpired)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = m.Retrieve(ctx, fresh)
	assert.NoError(t, err)
}

func TestStoryFileManager_CleanupArchivesFirst(t *testing.T) {
	archive := newFakeArchive()
	m, repo := newTestStoryManager(t, WithArchiveGateway(archive))
	ctx := context.Background()
	a := createTestStory(t, m, "agent-a")
	b := createTestStory(t, m, "agent-b")

	removed, err := m.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, repo.Len())

	restored, err := archive.Restore(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, restored.ID)
	ids, err := archive.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestStoryFileManager_CleanupArchiveFailureKeepsRecords(t *testing.T) {
	archive := newFakeArchive()
	m, repo := newTestStoryManager(t, WithArchiveGateway(archive))
	createTestStory(t, m, "agent-a")
	b := createTestStory(t, m, "agent-b")
	archive.failID = b.ID

	removed, err := m.Cleanup(context.Background(), 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	assert.Equal(t, 0, removed)
	assert.Equal(t, 2, repo.Len())
}

func TestStoryFileManager_CleanupNegativeAge(t *testing.T) {
	m, _ := newTestStoryManager(t)
	_, err := m.Cleanup(context.Background(), -time.Second)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}
