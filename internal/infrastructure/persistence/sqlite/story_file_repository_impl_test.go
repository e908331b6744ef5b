package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/transaction"
)

func newTestStoryFile(t *testing.T, agent string) *story.StoryFile {
	t.Helper()
	sf, err := story.New(agent, story.Context{
		Original: map[string]any{"tool": "csv-parser", "attempts": 2},
		Technical: &story.TechnicalContext{
			TestResults: &story.TestRunSummary{Total: 10, Passed: 9, Failed: 1, Failures: []string{"TestHeader"}},
		},
	}, []string{"parse header"}, 7)
	require.NoError(t, err)
	return sf
}

func TestStoryFileRepositoryImpl_CreateAndFind(t *testing.T) {
	repo := NewStoryFileRepository(setupTestDB(t))
	ctx := context.Background()

	sf := newTestStoryFile(t, "agent-a")
	sf.Tags = []string{"backend", "parser"}
	sf.RollbackPlan = "revert the parser commit"
	sf.TTL = 90 * time.Minute
	decision, err := story.NewDecisionRecord("agent-a", model.DecisionTechnical, "use encoding/csv", "stdlib is enough", model.ImpactLow, true)
	require.NoError(t, err)
	decision.Alternatives = []string{"gocsv"}
	sf.AppendDecision(decision)

	require.NoError(t, repo.Create(ctx, sf))

	found, err := repo.Find(ctx, sf.ID)
	require.NoError(t, err)
	assert.Equal(t, sf.ID, found.ID)
	assert.Equal(t, 1, found.Version)
	assert.Equal(t, "agent-a", found.CurrentAgent)
	assert.Empty(t, found.PreviousAgents)
	assert.Equal(t, model.PhasePlanning, found.Phase)
	assert.Equal(t, model.StatusDraft, found.Status)
	assert.Equal(t, 7, found.Priority)
	assert.Equal(t, []string{"parse header"}, found.PendingWork)
	assert.Equal(t, []string{"backend", "parser"}, found.Tags)
	assert.Equal(t, "revert the parser commit", found.RollbackPlan)
	assert.Equal(t, 90*time.Minute, found.TTL)
	assert.True(t, sf.CreatedAt.Equal(found.CreatedAt))
	assert.True(t, sf.UpdatedAt.Equal(found.UpdatedAt))

	// JSON columns decode numbers as float64
	assert.Equal(t, "csv-parser", found.Context.Original["tool"])
	assert.Equal(t, float64(2), found.Context.Original["attempts"])
	assert.NotNil(t, found.Context.Current)
	require.NotNil(t, found.Context.Technical)
	assert.Equal(t, 9, found.Context.Technical.TestResults.Passed)
	assert.Nil(t, found.Context.Technical.Security)

	require.Len(t, found.Decisions, 1)
	assert.Equal(t, decision.ID, found.Decisions[0].ID)
	assert.Equal(t, model.DecisionTechnical, found.Decisions[0].DecisionType)
	assert.Equal(t, []string{"gocsv"}, found.Decisions[0].Alternatives)
	assert.True(t, decision.Timestamp.Equal(found.Decisions[0].Timestamp))
}

func TestStoryFileRepositoryImpl_NotFound(t *testing.T) {
	repo := NewStoryFileRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Find(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	sf := newTestStoryFile(t, "agent-a")
	assert.ErrorIs(t, repo.Update(ctx, sf), model.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, sf.ID), model.ErrNotFound)
}

func TestStoryFileRepositoryImpl_DuplicateCreate(t *testing.T) {
	repo := NewStoryFileRepository(setupTestDB(t))
	ctx := context.Background()

	sf := newTestStoryFile(t, "agent-a")
	require.NoError(t, repo.Create(ctx, sf))

	err := repo.Create(ctx, sf)
	assert.ErrorIs(t, err, model.ErrStorage)
}

func TestStoryFileRepositoryImpl_Update(t *testing.T) {
	repo := NewStoryFileRepository(setupTestDB(t))
	ctx := context.Background()

	sf := newTestStoryFile(t, "agent-a")
	require.NoError(t, repo.Create(ctx, sf))

	sf.HandOver("agent-b", "parser done, tests pending")
	sf.Touch()
	require.NoError(t, repo.Update(ctx, sf))

	found, err := repo.Find(ctx, sf.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.Version)
	assert.Equal(t, "agent-b", found.CurrentAgent)
	assert.Equal(t, []string{"agent-a"}, found.PreviousAgents)
	assert.Equal(t, model.StatusHandedOver, found.Status)
	assert.Equal(t, "parser done, tests pending", found.HandoverNotes)
}

func TestStoryFileRepositoryImpl_ListFilters(t *testing.T) {
	repo := NewStoryFileRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i, agent := range []string{"agent-a", "agent-b", "agent-a"} {
		sf := newTestStoryFile(t, agent)
		sf.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 2 {
			require.NoError(t, sf.TransitionTo(model.PhaseImplementation))
			sf.Status = model.StatusActive
		}
		require.NoError(t, repo.Create(ctx, sf))
		ids = append(ids, sf.ID)
	}

	all, err := repo.List(ctx, repository.StoryFileFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids, []string{all[0].ID, all[1].ID, all[2].ID})

	byAgent, err := repo.List(ctx, repository.StoryFileFilter{CurrentAgent: "agent-a"})
	require.NoError(t, err)
	assert.Len(t, byAgent, 2)

	byStatus, err := repo.List(ctx, repository.StoryFileFilter{Statuses: []model.Status{model.StatusActive, model.StatusCompleted}})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, ids[2], byStatus[0].ID)

	byPhase, err := repo.List(ctx, repository.StoryFileFilter{Phases: []model.Phase{model.PhasePlanning}})
	require.NoError(t, err)
	assert.Len(t, byPhase, 2)

	cutoff := base.Add(90 * time.Second)
	older, err := repo.List(ctx, repository.StoryFileFilter{CreatedBefore: &cutoff})
	require.NoError(t, err)
	assert.Len(t, older, 2)

	limited, err := repo.List(ctx, repository.StoryFileFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ids[0], limited[0].ID)
}

func TestStoryFileRepositoryImpl_Delete(t *testing.T) {
	repo := NewStoryFileRepository(setupTestDB(t))
	ctx := context.Background()

	sf := newTestStoryFile(t, "agent-a")
	require.NoError(t, repo.Create(ctx, sf))
	require.NoError(t, repo.Delete(ctx, sf.ID))

	_, err := repo.Find(ctx, sf.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStoryFileRepositoryImpl_TransactionRollback(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStoryFileRepository(db)
	tm := transaction.NewSQLiteTransactionManager(db)
	ctx := context.Background()

	sf := newTestStoryFile(t, "agent-a")
	boom := errors.New("boom")
	err := tm.InTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, sf))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.Find(ctx, sf.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// The manager's read-modify-write runs inside one SQLite transaction
func TestStoryFileManager_WithSQLite(t *testing.T) {
	db := setupTestDB(t)
	m := service.NewStoryFileManager(NewStoryFileRepository(db), transaction.NewSQLiteTransactionManager(db))
	ctx := context.Background()

	created, err := m.Create(ctx, service.CreateStoryFileInput{
		AgentName:   "agent-a",
		Context:     story.Context{Original: map[string]any{"tool": "csv-parser"}},
		PendingWork: []string{"write tests"},
	})
	require.NoError(t, err)

	sf, err := m.Handover(ctx, created.ID, "agent-b", "API layer finished, please write tests")
	require.NoError(t, err)
	assert.Equal(t, 2, sf.Version)

	_, err = m.Handover(ctx, created.ID, "agent-c", "short")
	require.ErrorIs(t, err, model.ErrValidationFailed)

	stored, err := m.Retrieve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", stored.CurrentAgent)
	assert.Equal(t, 2, stored.Version)

	removed, err := m.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestStoryFileManager_ConcurrentHandoversOnFileDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := service.NewStoryFileManager(NewStoryFileRepository(db), transaction.NewSQLiteTransactionManager(db))
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		ids := make([]string, 5)
		for i := range ids {
			sf, err := m.Create(ctx, service.CreateStoryFileInput{
				AgentName:   fmt.Sprintf("source-%d", i),
				PendingWork: []string{"task"},
			})
			require.NoError(t, err)
			ids[i] = sf.ID
		}

		var wg sync.WaitGroup
		errs := make([]error, len(ids))
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = m.Handover(ctx, id, fmt.Sprintf("target-%d", i), "parser done, please review the headers")
			}()
		}
		wg.Wait()

		for i, id := range ids {
			require.NoError(t, errs[i], "round %d story %d", round, i)
			sf, err := m.Retrieve(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("target-%d", i), sf.CurrentAgent)
			assert.Equal(t, 2, sf.Version)
		}
	}
}
