package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/memory"
)

// MemoryRepository stores agent memories and the relationship graph
type MemoryRepository interface {
	// Create inserts a new memory
	Create(ctx context.Context, m *memory.Memory) error

	// Find retrieves a memory by ID
	Find(ctx context.Context, id string) (*memory.Memory, error)

	// Update overwrites a stored memory
	Update(ctx context.Context, m *memory.Memory) error

	// ListByAgent returns every memory owned by the agent
	ListByAgent(ctx context.Context, agentName string) ([]*memory.Memory, error)

	// DeleteExpired removes memories whose expiry is before now and returns how many
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// SaveRelationship upserts an edge keyed by (source, target, type)
	SaveRelationship(ctx context.Context, rel *memory.Relationship) error

	// ListRelationshipsFrom returns outgoing edges of a memory
	ListRelationshipsFrom(ctx context.Context, sourceID string) ([]*memory.Relationship, error)

	// ListRelationshipsByAgent returns edges whose source belongs to the agent
	ListRelationshipsByAgent(ctx context.Context, agentName string) ([]*memory.Relationship, error)
}
