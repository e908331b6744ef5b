package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/memory"
)

func newTestMemory(t *testing.T, agent, content string, expiresIn time.Duration) *memory.Memory {
	t.Helper()
	m, err := memory.New(agent, "lesson", content, []string{"csv", "parser"}, expiresIn)
	require.NoError(t, err)
	return m
}

func TestMemoryRepositoryImpl_CreateFindUpdate(t *testing.T) {
	repo := NewMemoryRepository(setupTestDB(t))
	ctx := context.Background()

	m := newTestMemory(t, "agent-a", "quote fields containing commas", time.Hour)
	require.NoError(t, repo.Create(ctx, m))

	found, err := repo.Find(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", found.AgentName)
	assert.Equal(t, "lesson", found.MemoryType)
	assert.Equal(t, []string{"csv", "parser"}, found.Tags)
	assert.Equal(t, 1.0, found.RelevanceScore)
	require.NotNil(t, found.ExpiresAt)
	assert.True(t, m.ExpiresAt.Equal(*found.ExpiresAt))

	found.Strengthen(0.5)
	found.MarkUsed(time.Now().UTC())
	require.NoError(t, repo.Update(ctx, found))

	again, err := repo.Find(ctx, m.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, again.RelevanceScore, 1e-9)
	assert.Equal(t, 1, again.UseCount)

	_, err = repo.Find(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, newTestMemory(t, "agent-a", "never stored", 0)), model.ErrNotFound)
}

func TestMemoryRepositoryImpl_NoExpiry(t *testing.T) {
	repo := NewMemoryRepository(setupTestDB(t))
	ctx := context.Background()

	m := newTestMemory(t, "agent-a", "permanent", 0)
	require.NoError(t, repo.Create(ctx, m))

	found, err := repo.Find(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, found.ExpiresAt)
}

func TestMemoryRepositoryImpl_ListByAgent(t *testing.T) {
	repo := NewMemoryRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestMemory(t, "agent-a", "one", 0)))
	require.NoError(t, repo.Create(ctx, newTestMemory(t, "agent-a", "two", 0)))
	require.NoError(t, repo.Create(ctx, newTestMemory(t, "agent-b", "three", 0)))

	list, err := repo.ListByAgent(ctx, "agent-a")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	none, err := repo.ListByAgent(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRepositoryImpl_Relationships(t *testing.T) {
	repo := NewMemoryRepository(setupTestDB(t))
	ctx := context.Background()

	a := newTestMemory(t, "agent-a", "a", 0)
	b := newTestMemory(t, "agent-a", "b", 0)
	c := newTestMemory(t, "agent-b", "c", 0)
	for _, m := range []*memory.Memory{a, b, c} {
		require.NoError(t, repo.Create(ctx, m))
	}

	rel, err := memory.NewRelationship(a.ID, b.ID, "related", 0.4, "agent-a")
	require.NoError(t, err)
	require.NoError(t, repo.SaveRelationship(ctx, rel))

	// Upsert on the same key replaces the weight
	rel.Weight = 0.9
	require.NoError(t, repo.SaveRelationship(ctx, rel))

	rel2, err := memory.NewRelationship(c.ID, a.ID, "causes", 0.3, "agent-b")
	require.NoError(t, err)
	require.NoError(t, repo.SaveRelationship(ctx, rel2))

	from, err := repo.ListRelationshipsFrom(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, b.ID, from[0].TargetID)
	assert.Equal(t, 0.9, from[0].Weight)

	byAgent, err := repo.ListRelationshipsByAgent(ctx, "agent-b")
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, "causes", byAgent[0].RelationType)
}

func TestMemoryRepositoryImpl_DeleteExpired(t *testing.T) {
	repo := NewMemoryRepository(setupTestDB(t))
	ctx := context.Background()

	expired := newTestMemory(t, "agent-a", "stale", time.Minute)
	live := newTestMemory(t, "agent-a", "fresh", 48*time.Hour)
	forever := newTestMemory(t, "agent-a", "forever", 0)
	for _, m := range []*memory.Memory{expired, live, forever} {
		require.NoError(t, repo.Create(ctx, m))
	}
	rel, err := memory.NewRelationship(live.ID, expired.ID, "related", 0.5, "agent-a")
	require.NoError(t, err)
	require.NoError(t, repo.SaveRelationship(ctx, rel))

	n, err := repo.DeleteExpired(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.Find(ctx, expired.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	edges, err := repo.ListRelationshipsFrom(ctx, live.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemorySystem_WithSQLite(t *testing.T) {
	s := service.NewMemorySystem(NewMemoryRepository(setupTestDB(t)))
	ctx := context.Background()

	first, err := s.StoreMemory(ctx, service.StoreMemoryInput{AgentName: "agent-a", Content: "csv header parsing lesson", Tags: []string{"csv"}})
	require.NoError(t, err)
	second, err := s.StoreMemory(ctx, service.StoreMemoryInput{AgentName: "agent-a", Content: "retry flaky network calls"})
	require.NoError(t, err)
	require.NoError(t, s.LinkMemories(ctx, first, second, "related", 0.8, "agent-a"))

	hits, err := s.SearchMemories(ctx, "agent-a", "csv", service.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, first, hits[0].Memory.ID)

	related, err := s.GetRelatedMemories(ctx, first, 1, 0)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, second, related[0].Memory.ID)
}
