package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/memory"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
)

const memoryColumns = `id, agent_name, memory_type, content, tags, relevance_score,
	use_count, created_at, last_used, expires_at`

const relationshipColumns = `source_id, target_id, relation_type, weight, created_by, created_at`

// MemoryRepositoryImpl implements repository.MemoryRepository with SQLite
type MemoryRepositoryImpl struct {
	db *sql.DB
}

// NewMemoryRepository creates a new SQLite-based memory repository
func NewMemoryRepository(db *sql.DB) repository.MemoryRepository {
	return &MemoryRepositoryImpl{db: db}
}

// Create inserts a new memory
func (r *MemoryRepositoryImpl) Create(ctx context.Context, m *memory.Memory) error {
	tags, err := marshalJSON(m.Tags, "tags")
	if err != nil {
		return err
	}

	_, err = executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO memories (`+memoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentName, m.MemoryType, m.Content, tags, m.RelevanceScore,
		m.UseCount, toNanos(m.CreatedAt), toNanos(m.LastUsed), nullableNanos(m.ExpiresAt),
	)
	if err != nil {
		return model.StorageError(err, "failed to insert memory", goerr.V("id", m.ID))
	}
	return nil
}

// Find retrieves a memory by ID
func (r *MemoryRepositoryImpl) Find(ctx context.Context, id string) (*memory.Memory, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)

	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("memory", id)
	}
	if err != nil {
		return nil, model.StorageError(err, "failed to load memory", goerr.V("id", id))
	}
	return m, nil
}

// Update overwrites a stored memory
func (r *MemoryRepositoryImpl) Update(ctx context.Context, m *memory.Memory) error {
	tags, err := marshalJSON(m.Tags, "tags")
	if err != nil {
		return err
	}

	result, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE memories SET
			agent_name = ?, memory_type = ?, content = ?, tags = ?, relevance_score = ?,
			use_count = ?, created_at = ?, last_used = ?, expires_at = ?
		WHERE id = ?`,
		m.AgentName, m.MemoryType, m.Content, tags, m.RelevanceScore,
		m.UseCount, toNanos(m.CreatedAt), toNanos(m.LastUsed), nullableNanos(m.ExpiresAt),
		m.ID,
	)
	if err != nil {
		return model.StorageError(err, "failed to update memory", goerr.V("id", m.ID))
	}
	return requireAffected(result, "memory", m.ID)
}

// ListByAgent returns every memory owned by the agent, oldest first
func (r *MemoryRepositoryImpl) ListByAgent(ctx context.Context, agentName string) ([]*memory.Memory, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE agent_name = ? ORDER BY created_at ASC, id ASC`,
		agentName)
	if err != nil {
		return nil, model.StorageError(err, "failed to list memories", goerr.V("agent", agentName))
	}
	defer rows.Close()

	var result []*memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, model.StorageError(err, "failed to scan memory")
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError(err, "failed to iterate memories")
	}
	return result, nil
}

// DeleteExpired removes memories whose expiry is before now together with
// every edge touching them
func (r *MemoryRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	exec := executor(ctx, r.db)
	cutoff := toNanos(now)

	if _, err := exec.ExecContext(ctx, `
		DELETE FROM memory_relationships
		WHERE source_id IN (SELECT id FROM memories WHERE expires_at IS NOT NULL AND expires_at < ?)
		   OR target_id IN (SELECT id FROM memories WHERE expires_at IS NOT NULL AND expires_at < ?)`,
		cutoff, cutoff,
	); err != nil {
		return 0, model.StorageError(err, "failed to delete expired memory relationships")
	}

	result, err := exec.ExecContext(ctx,
		"DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at < ?", cutoff)
	if err != nil {
		return 0, model.StorageError(err, "failed to delete expired memories")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, model.StorageError(err, "failed to read rows affected")
	}
	return int(n), nil
}

// SaveRelationship upserts an edge keyed by (source, target, type)
func (r *MemoryRepositoryImpl) SaveRelationship(ctx context.Context, rel *memory.Relationship) error {
	_, err := executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO memory_relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relation_type) DO UPDATE SET
			weight = excluded.weight,
			created_by = excluded.created_by`,
		rel.SourceID, rel.TargetID, rel.RelationType, rel.Weight, rel.CreatedBy, toNanos(rel.CreatedAt),
	)
	if err != nil {
		return model.StorageError(err, "failed to save relationship",
			goerr.V("source", rel.SourceID), goerr.V("target", rel.TargetID))
	}
	return nil
}

// ListRelationshipsFrom returns outgoing edges of a memory
func (r *MemoryRepositoryImpl) ListRelationshipsFrom(ctx context.Context, sourceID string) ([]*memory.Relationship, error) {
	return r.queryRelationships(ctx,
		`SELECT `+relationshipColumns+` FROM memory_relationships
		WHERE source_id = ? ORDER BY weight DESC, target_id ASC`,
		sourceID)
}

// ListRelationshipsByAgent returns edges whose source belongs to the agent
func (r *MemoryRepositoryImpl) ListRelationshipsByAgent(ctx context.Context, agentName string) ([]*memory.Relationship, error) {
	return r.queryRelationships(ctx,
		`SELECT r.source_id, r.target_id, r.relation_type, r.weight, r.created_by, r.created_at
		FROM memory_relationships r
		JOIN memories m ON m.id = r.source_id
		WHERE m.agent_name = ?
		ORDER BY r.source_id ASC, r.target_id ASC, r.relation_type ASC`,
		agentName)
}

func (r *MemoryRepositoryImpl) queryRelationships(ctx context.Context, query string, arg string) ([]*memory.Relationship, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, model.StorageError(err, "failed to list relationships")
	}
	defer rows.Close()

	var result []*memory.Relationship
	for rows.Next() {
		var (
			rel       memory.Relationship
			createdAt int64
		)
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.RelationType, &rel.Weight, &rel.CreatedBy, &createdAt); err != nil {
			return nil, model.StorageError(err, "failed to scan relationship")
		}
		rel.CreatedAt = fromNanos(createdAt)
		result = append(result, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError(err, "failed to iterate relationships")
	}
	return result, nil
}

func scanMemory(row rowScanner) (*memory.Memory, error) {
	var (
		m                   memory.Memory
		tags                string
		createdAt, lastUsed int64
		expiresAt           sql.NullInt64
	)
	if err := row.Scan(
		&m.ID, &m.AgentName, &m.MemoryType, &m.Content, &tags, &m.RelevanceScore,
		&m.UseCount, &createdAt, &lastUsed, &expiresAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory tags", goerr.V("id", m.ID))
	}

	m.CreatedAt = fromNanos(createdAt)
	m.LastUsed = fromNanos(lastUsed)
	if expiresAt.Valid {
		exp := fromNanos(expiresAt.Int64)
		m.ExpiresAt = &exp
	}
	return &m, nil
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}
