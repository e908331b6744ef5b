package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/memory"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/session"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
)

// MockStoryFileRepository is an in-memory implementation of StoryFileRepository.
// Stored records are cloned on the way in and out.
type MockStoryFileRepository struct {
	mu      sync.RWMutex
	stories map[string]*story.StoryFile
	failErr error
}

// NewMockStoryFileRepository creates a new mock story file repository
func NewMockStoryFileRepository() *MockStoryFileRepository {
	return &MockStoryFileRepository{
		stories: make(map[string]*story.StoryFile),
	}
}

// FailWith makes every subsequent call return err wrapped as a storage error (nil clears it)
func (m *MockStoryFileRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MockStoryFileRepository) Create(ctx context.Context, sf *story.StoryFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return model.StorageError(m.failErr, "create story file")
	}
	if _, exists := m.stories[sf.ID]; exists {
		return model.StorageError(model.InvalidArgument("story file already exists"), "create story file")
	}
	m.stories[sf.ID] = sf.Clone()
	return nil
}

func (m *MockStoryFileRepository) Find(ctx context.Context, id string) (*story.StoryFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failErr != nil {
		return nil, model.StorageError(m.failErr, "find story file")
	}
	sf, exists := m.stories[id]
	if !exists {
		return nil, model.NotFound("story file", id)
	}
	return sf.Clone(), nil
}

func (m *MockStoryFileRepository) Update(ctx context.Context, sf *story.StoryFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return model.StorageError(m.failErr, "update story file")
	}
	if _, exists := m.stories[sf.ID]; !exists {
		return model.NotFound("story file", sf.ID)
	}
	m.stories[sf.ID] = sf.Clone()
	return nil
}

func (m *MockStoryFileRepository) List(ctx context.Context, filter repository.StoryFileFilter) ([]*story.StoryFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failErr != nil {
		return nil, model.StorageError(m.failErr, "list story files")
	}

	var result []*story.StoryFile
	for _, sf := range m.stories {
		if matchesStoryFilter(sf, filter) {
			result = append(result, sf.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockStoryFileRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return model.StorageError(m.failErr, "delete story file")
	}
	if _, exists := m.stories[id]; !exists {
		return model.NotFound("story file", id)
	}
	delete(m.stories, id)
	return nil
}

// Len returns the number of stored story files
func (m *MockStoryFileRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stories)
}

func matchesStoryFilter(sf *story.StoryFile, filter repository.StoryFileFilter) bool {
	if filter.CurrentAgent != "" && sf.CurrentAgent != filter.CurrentAgent {
		return false
	}
	if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, sf.Status) {
		return false
	}
	if len(filter.Phases) > 0 && !slices.Contains(filter.Phases, sf.Phase) {
		return false
	}
	if filter.CreatedBefore != nil && !sf.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	return true
}

// MockMemoryRepository is an in-memory implementation of MemoryRepository
type MockMemoryRepository struct {
	mu            sync.RWMutex
	memories      map[string]*memory.Memory
	relationships map[relKey]*memory.Relationship
}

type relKey struct {
	source, target, relType string
}

// NewMockMemoryRepository creates a new mock memory repository
func NewMockMemoryRepository() *MockMemoryRepository {
	return &MockMemoryRepository{
		memories:      make(map[string]*memory.Memory),
		relationships: make(map[relKey]*memory.Relationship),
	}
}

func (m *MockMemoryRepository) Create(ctx context.Context, mem *memory.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.memories[mem.ID] = mem.Clone()
	return nil
}

func (m *MockMemoryRepository) Find(ctx context.Context, id string) (*memory.Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, exists := m.memories[id]
	if !exists {
		return nil, model.NotFound("memory", id)
	}
	return mem.Clone(), nil
}

func (m *MockMemoryRepository) Update(ctx context.Context, mem *memory.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.memories[mem.ID]; !exists {
		return model.NotFound("memory", mem.ID)
	}
	m.memories[mem.ID] = mem.Clone()
	return nil
}

func (m *MockMemoryRepository) ListByAgent(ctx context.Context, agentName string) ([]*memory.Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*memory.Memory
	for _, mem := range m.memories {
		if mem.AgentName == agentName {
			result = append(result, mem.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockMemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, mem := range m.memories {
		if mem.IsExpired(now) {
			delete(m.memories, id)
			removed++
			for k := range m.relationships {
				if k.source == id || k.target == id {
					delete(m.relationships, k)
				}
			}
		}
	}
	return removed, nil
}

func (m *MockMemoryRepository) SaveRelationship(ctx context.Context, rel *memory.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rel
	m.relationships[relKey{rel.SourceID, rel.TargetID, rel.RelationType}] = &r
	return nil
}

func (m *MockMemoryRepository) ListRelationshipsFrom(ctx context.Context, sourceID string) ([]*memory.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*memory.Relationship
	for k, rel := range m.relationships {
		if k.source == sourceID {
			r := *rel
			result = append(result, &r)
		}
	}
	sortRelationships(result)
	return result, nil
}

func (m *MockMemoryRepository) ListRelationshipsByAgent(ctx context.Context, agentName string) ([]*memory.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*memory.Relationship
	for k, rel := range m.relationships {
		src, ok := m.memories[k.source]
		if ok && src.AgentName == agentName {
			r := *rel
			result = append(result, &r)
		}
	}
	sortRelationships(result)
	return result, nil
}

func sortRelationships(rels []*memory.Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		if rels[i].TargetID != rels[j].TargetID {
			return rels[i].TargetID < rels[j].TargetID
		}
		return rels[i].RelationType < rels[j].RelationType
	})
}

// MockSessionRepository is an in-memory implementation of SessionRepository
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewMockSessionRepository creates a new mock session repository
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[string]*session.Session),
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MockSessionRepository) Find(ctx context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, model.NotFound("session", id)
	}
	return s.Clone(), nil
}

func (m *MockSessionRepository) Update(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; !exists {
		return model.NotFound("session", s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return model.NotFound("session", id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionRepository) ListChildren(ctx context.Context, parentID string) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*session.Session
	for _, s := range m.sessions {
		if s.ParentSessionID == parentID {
			result = append(result, s.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*session.Session
	for _, s := range m.sessions {
		if s.IsExpired(now) {
			result = append(result, s.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Ensure interfaces are satisfied
var (
	_ repository.StoryFileRepository = (*MockStoryFileRepository)(nil)
	_ repository.MemoryRepository    = (*MockMemoryRepository)(nil)
	_ repository.SessionRepository   = (*MockSessionRepository)(nil)
)
