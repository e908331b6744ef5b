package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/app"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/memory"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
)

// DefaultSearchLimit applies when SearchOptions.Limit is not positive
const DefaultSearchLimit = 10

// topTagCount is how many tags analytics reports
const topTagCount = 10

// StoreMemoryInput describes a memory to store
type StoreMemoryInput struct {
	AgentName  string
	MemoryType string
	Content    string
	Tags       []string
	ExpiresIn  time.Duration // 0 => never expires
}

// SearchOptions narrows a memory search
type SearchOptions struct {
	MinRelevance float64
	Limit        int
	MemoryType   string // optional exact match
}

// ScoredMemory is a search hit
type ScoredMemory struct {
	Memory *memory.Memory `json:"memory"`
	Score  float64        `json:"score"`
}

// RelatedMemory is a memory reached through the relationship graph
type RelatedMemory struct {
	Memory       *memory.Memory `json:"memory"`
	Depth        int            `json:"depth"`
	ViaID        string         `json:"viaId"`
	RelationType string         `json:"relationType"`
	Weight       float64        `json:"weight"`
}

// TagCount is one entry of the tag histogram
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// RelationshipStats summarises an agent's memory graph
type RelationshipStats struct {
	Total         int            `json:"total"`
	AverageWeight float64        `json:"averageWeight"`
	ByType        map[string]int `json:"byType"`
}

// MemoryAnalytics summarises an agent's memories
type MemoryAnalytics struct {
	TotalMemories          int               `json:"totalMemories"`
	AverageRelevance       float64           `json:"averageRelevance"`
	MemoryTypeDistribution map[string]int    `json:"memoryTypeDistribution"`
	TopTags                []TagCount        `json:"topTags"`
	RelationshipStats      RelationshipStats `json:"relationshipStats"`
}

// MemorySystem stores, ranks and links agent memories
type MemorySystem struct {
	repo    repository.MemoryRepository
	metrics output.MetricsRecorder
	logger  app.Logger
	now     func() time.Time
	locks   *keyedMutex
}

// MemorySystemOption configures optional collaborators
type MemorySystemOption func(*MemorySystem)

// WithMemoryMetrics attaches a metrics recorder
func WithMemoryMetrics(metrics output.MetricsRecorder) MemorySystemOption {
	return func(s *MemorySystem) { s.metrics = metrics }
}

// WithMemoryLogger sets the logger
func WithMemoryLogger(logger app.Logger) MemorySystemOption {
	return func(s *MemorySystem) { s.logger = logger }
}

// WithMemoryClock overrides the clock used for scoring and expiry
func WithMemoryClock(now func() time.Time) MemorySystemOption {
	return func(s *MemorySystem) { s.now = now }
}

// NewMemorySystem creates a new memory system
func NewMemorySystem(repo repository.MemoryRepository, opts ...MemorySystemOption) *MemorySystem {
	s := &MemorySystem{
		repo:    repo,
		metrics: nopMetrics{},
		logger:  app.NopLogger,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreMemory saves a memory at full relevance and returns its ID
func (s *MemorySystem) StoreMemory(ctx context.Context, in StoreMemoryInput) (string, error) {
	if in.ExpiresIn < 0 {
		return "", model.InvalidArgument("expiry cannot be negative")
	}
	m, err := memory.New(in.AgentName, in.MemoryType, in.Content, in.Tags, in.ExpiresIn)
	if err != nil {
		return "", err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return "", model.StorageError(err, "failed to store memory", goerr.V("agent", in.AgentName))
	}

	s.metrics.RecordMemoryOp(ctx, "store")
	s.logger.Debug("memory %s stored for %s", m.ID, m.AgentName)
	return m.ID, nil
}

// GetMemory loads a memory by ID
func (s *MemorySystem) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	m, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, model.StorageError(err, "failed to load memory", goerr.V("memory_id", id))
	}
	return m, nil
}

// SearchMemories ranks an agent's live memories against the query.
// Results are sorted by score, ties broken by most recent use.
func (s *MemorySystem) SearchMemories(ctx context.Context, agentName, query string, opts SearchOptions) ([]ScoredMemory, error) {
	all, err := s.repo.ListByAgent(ctx, agentName)
	if err != nil {
		return nil, model.StorageError(err, "failed to list memories", goerr.V("agent", agentName))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	now := s.now()
	terms := queryTerms(query)
	results := make([]ScoredMemory, 0, len(all))
	for _, m := range all {
		if m.IsExpired(now) {
			continue
		}
		if opts.MemoryType != "" && m.MemoryType != opts.MemoryType {
			continue
		}
		score, ok := scoreMemory(terms, m, now)
		if !ok || score < opts.MinRelevance {
			continue
		}
		results = append(results, ScoredMemory{Memory: m, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Memory.LastUsed.Equal(results[j].Memory.LastUsed) {
			return results[i].Memory.LastUsed.After(results[j].Memory.LastUsed)
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.metrics.RecordMemoryOp(ctx, "search")
	return results, nil
}

// LinkMemories upserts a weighted edge from source to target
func (s *MemorySystem) LinkMemories(ctx context.Context, sourceID, targetID, relationType string, weight float64, createdBy string) error {
	rel, err := memory.NewRelationship(sourceID, targetID, relationType, weight, createdBy)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(sourceID, targetID)
	defer unlock()

	for _, id := range []string{sourceID, targetID} {
		if _, err := s.repo.Find(ctx, id); err != nil {
			return model.StorageError(err, "failed to load memory for link", goerr.V("memory_id", id))
		}
	}
	if err := s.repo.SaveRelationship(ctx, rel); err != nil {
		return model.StorageError(err, "failed to save relationship",
			goerr.V("source", sourceID), goerr.V("target", targetID), goerr.V("type", relationType))
	}

	s.metrics.RecordMemoryOp(ctx, "link")
	return nil
}

// GetRelatedMemories walks outgoing edges breadth-first up to depth hops.
// Each memory is reported once, at its shallowest depth; the start is excluded.
func (s *MemorySystem) GetRelatedMemories(ctx context.Context, id string, depth int, minWeight float64) ([]RelatedMemory, error) {
	if depth < 0 {
		return nil, model.InvalidArgument("depth cannot be negative")
	}
	if _, err := s.repo.Find(ctx, id); err != nil {
		return nil, model.StorageError(err, "failed to load memory", goerr.V("memory_id", id))
	}

	related := []RelatedMemory{}
	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	now := s.now()

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, nodeID := range frontier {
			rels, err := s.repo.ListRelationshipsFrom(ctx, nodeID)
			if err != nil {
				return nil, model.StorageError(err, "failed to list relationships", goerr.V("memory_id", nodeID))
			}
			for _, rel := range rels {
				if rel.Weight < minWeight {
					continue
				}
				if _, seen := visited[rel.TargetID]; seen {
					continue
				}
				visited[rel.TargetID] = struct{}{}

				target, err := s.repo.Find(ctx, rel.TargetID)
				if err != nil {
					if errors.Is(err, model.ErrNotFound) {
						continue
					}
					return nil, model.StorageError(err, "failed to load related memory", goerr.V("memory_id", rel.TargetID))
				}
				if target.IsExpired(now) {
					continue
				}
				related = append(related, RelatedMemory{
					Memory:       target,
					Depth:        d,
					ViaID:        nodeID,
					RelationType: rel.RelationType,
					Weight:       rel.Weight,
				})
				next = append(next, rel.TargetID)
			}
		}
		frontier = next
	}

	sort.SliceStable(related, func(i, j int) bool {
		if related[i].Depth != related[j].Depth {
			return related[i].Depth < related[j].Depth
		}
		return related[i].Weight > related[j].Weight
	})
	return related, nil
}

// StrengthenMemory multiplies the relevance score (clamped to [0, 1]) and records a use
func (s *MemorySystem) StrengthenMemory(ctx context.Context, id string, factor float64) (float64, error) {
	if !memory.IsFinite(factor) {
		return 0, model.InvalidArgument("strengthen factor must be a finite number")
	}
	if factor < 0 {
		return 0, model.InvalidArgument("strengthen factor cannot be negative")
	}

	var score float64
	err := s.withMemory(ctx, id, func(m *memory.Memory) {
		m.Strengthen(factor)
		m.MarkUsed(s.now())
		score = m.RelevanceScore
	})
	if err != nil {
		return 0, err
	}

	s.metrics.RecordMemoryOp(ctx, "strengthen")
	return score, nil
}

// RecordUse bumps the use count and last-used time
func (s *MemorySystem) RecordUse(ctx context.Context, id string) error {
	if err := s.withMemory(ctx, id, func(m *memory.Memory) { m.MarkUsed(s.now()) }); err != nil {
		return err
	}
	s.metrics.RecordMemoryOp(ctx, "use")
	return nil
}

// DecayMemories multiplies every score of the agent's memories by factor and returns how many changed
func (s *MemorySystem) DecayMemories(ctx context.Context, agentName string, factor float64) (int, error) {
	if !memory.IsFinite(factor) || factor < 0 || factor > 1 {
		return 0, model.InvalidArgument("decay factor must be within [0, 1]")
	}

	all, err := s.repo.ListByAgent(ctx, agentName)
	if err != nil {
		return 0, model.StorageError(err, "failed to list memories", goerr.V("agent", agentName))
	}

	decayed := 0
	for _, m := range all {
		if err := s.withMemory(ctx, m.ID, func(m *memory.Memory) { m.Strengthen(factor) }); err != nil {
			return decayed, err
		}
		decayed++
	}

	s.metrics.RecordMemoryOp(ctx, "decay")
	s.logger.Debug("decayed %d memories of %s by %.2f", decayed, agentName, factor)
	return decayed, nil
}

// CleanupExpired deletes expired memories and their edges
func (s *MemorySystem) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, model.StorageError(err, "failed to delete expired memories")
	}
	s.metrics.RecordMemoryOp(ctx, "cleanup")
	return n, nil
}

// GetMemoryAnalytics summarises an agent's memories and relationships
func (s *MemorySystem) GetMemoryAnalytics(ctx context.Context, agentName string) (MemoryAnalytics, error) {
	all, err := s.repo.ListByAgent(ctx, agentName)
	if err != nil {
		return MemoryAnalytics{}, model.StorageError(err, "failed to list memories", goerr.V("agent", agentName))
	}
	rels, err := s.repo.ListRelationshipsByAgent(ctx, agentName)
	if err != nil {
		return MemoryAnalytics{}, model.StorageError(err, "failed to list relationships", goerr.V("agent", agentName))
	}

	a := MemoryAnalytics{
		TotalMemories:          len(all),
		MemoryTypeDistribution: map[string]int{},
		TopTags:                []TagCount{},
		RelationshipStats:      RelationshipStats{ByType: map[string]int{}},
	}

	tagCounts := map[string]int{}
	var relevanceSum float64
	for _, m := range all {
		relevanceSum += m.RelevanceScore
		a.MemoryTypeDistribution[m.MemoryType]++
		for _, t := range m.Tags {
			tagCounts[t]++
		}
	}
	if len(all) > 0 {
		a.AverageRelevance = relevanceSum / float64(len(all))
	}

	for tag, n := range tagCounts {
		a.TopTags = append(a.TopTags, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(a.TopTags, func(i, j int) bool {
		if a.TopTags[i].Count != a.TopTags[j].Count {
			return a.TopTags[i].Count > a.TopTags[j].Count
		}
		return a.TopTags[i].Tag < a.TopTags[j].Tag
	})
	if len(a.TopTags) > topTagCount {
		a.TopTags = a.TopTags[:topTagCount]
	}

	var weightSum float64
	for _, r := range rels {
		weightSum += r.Weight
		a.RelationshipStats.ByType[r.RelationType]++
	}
	a.RelationshipStats.Total = len(rels)
	if len(rels) > 0 {
		a.RelationshipStats.AverageWeight = weightSum / float64(len(rels))
	}

	return a, nil
}

// withMemory runs a locked read-modify-write on one memory
func (s *MemorySystem) withMemory(ctx context.Context, id string, fn func(m *memory.Memory)) error {
	unlock := s.locks.lock(id)
	defer unlock()

	m, err := s.repo.Find(ctx, id)
	if err != nil {
		return model.StorageError(err, "failed to load memory", goerr.V("memory_id", id))
	}
	fn(m)
	if err := s.repo.Update(ctx, m); err != nil {
		return model.StorageError(err, "failed to save memory", goerr.V("memory_id", id))
	}
	return nil
}

// keyedMutex serialises work per key. Entries are dropped once no goroutine holds them.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedEntry)}
}

// lock acquires every key in sorted order and returns the matching unlock
func (k *keyedMutex) lock(keys ...string) func() {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*keyedEntry, 0, len(sorted))
	for _, key := range sorted {
		k.mu.Lock()
		e, ok := k.entries[key]
		if !ok {
			e = &keyedEntry{}
			k.entries[key] = e
		}
		e.refs++
		k.mu.Unlock()

		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.entries, sorted[i])
			}
			k.mu.Unlock()
		}
	}
}
