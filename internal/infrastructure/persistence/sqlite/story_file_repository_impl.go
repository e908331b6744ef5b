package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
)

const storyFileColumns = `id, version, current_agent, previous_agents, phase, status, context,
	completed_work, pending_work, decisions, handover_notes, priority, tags,
	rollback_plan, ttl_ms, created_at, updated_at`

// StoryFileRepositoryImpl implements repository.StoryFileRepository with SQLite.
// List-valued fields and the context bundle are stored as JSON columns.
type StoryFileRepositoryImpl struct {
	db *sql.DB
}

// NewStoryFileRepository creates a new SQLite-based story file repository
func NewStoryFileRepository(db *sql.DB) repository.StoryFileRepository {
	return &StoryFileRepositoryImpl{db: db}
}

// Create inserts a new story file
func (r *StoryFileRepositoryImpl) Create(ctx context.Context, sf *story.StoryFile) error {
	row, err := encodeStoryFile(sf)
	if err != nil {
		return err
	}

	_, err = executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO story_files (`+storyFileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row...,
	)
	if err != nil {
		return model.StorageError(err, "failed to insert story file", goerr.V("id", sf.ID))
	}
	return nil
}

// Find retrieves a story file by ID
func (r *StoryFileRepositoryImpl) Find(ctx context.Context, id string) (*story.StoryFile, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+storyFileColumns+` FROM story_files WHERE id = ?`, id)

	sf, err := scanStoryFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("story file", id)
	}
	if err != nil {
		return nil, model.StorageError(err, "failed to load story file", goerr.V("id", id))
	}
	return sf, nil
}

// Update overwrites every column of an existing story file
func (r *StoryFileRepositoryImpl) Update(ctx context.Context, sf *story.StoryFile) error {
	row, err := encodeStoryFile(sf)
	if err != nil {
		return err
	}

	// id moves to the WHERE clause
	args := append(row[1:], sf.ID)
	result, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE story_files SET
			version = ?, current_agent = ?, previous_agents = ?, phase = ?, status = ?,
			context = ?, completed_work = ?, pending_work = ?, decisions = ?,
			handover_notes = ?, priority = ?, tags = ?, rollback_plan = ?, ttl_ms = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?`,
		args...,
	)
	if err != nil {
		return model.StorageError(err, "failed to update story file", goerr.V("id", sf.ID))
	}
	return requireAffected(result, "story file", sf.ID)
}

// List scans story files matching the filter, oldest first
func (r *StoryFileRepositoryImpl) List(ctx context.Context, filter repository.StoryFileFilter) ([]*story.StoryFile, error) {
	query := `SELECT ` + storyFileColumns + ` FROM story_files WHERE 1=1`
	var args []any

	if filter.CurrentAgent != "" {
		query += " AND current_agent = ?"
		args = append(args, filter.CurrentAgent)
	}
	if len(filter.Statuses) > 0 {
		query += " AND status IN (" + placeholders(len(filter.Statuses)) + ")"
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}
	if len(filter.Phases) > 0 {
		query += " AND phase IN (" + placeholders(len(filter.Phases)) + ")"
		for _, p := range filter.Phases {
			args = append(args, string(p))
		}
	}
	if filter.CreatedBefore != nil {
		query += " AND created_at < ?"
		args = append(args, toNanos(*filter.CreatedBefore))
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.StorageError(err, "failed to list story files")
	}
	defer rows.Close()

	var result []*story.StoryFile
	for rows.Next() {
		sf, err := scanStoryFile(rows)
		if err != nil {
			return nil, model.StorageError(err, "failed to scan story file")
		}
		result = append(result, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError(err, "failed to iterate story files")
	}
	return result, nil
}

// Delete removes a story file
func (r *StoryFileRepositoryImpl) Delete(ctx context.Context, id string) error {
	result, err := executor(ctx, r.db).ExecContext(ctx, "DELETE FROM story_files WHERE id = ?", id)
	if err != nil {
		return model.StorageError(err, "failed to delete story file", goerr.V("id", id))
	}
	return requireAffected(result, "story file", id)
}

func encodeStoryFile(sf *story.StoryFile) ([]any, error) {
	previous, err := marshalJSON(sf.PreviousAgents, "previous_agents")
	if err != nil {
		return nil, err
	}
	storyCtx, err := marshalJSON(sf.Context, "context")
	if err != nil {
		return nil, err
	}
	completed, err := marshalJSON(sf.CompletedWork, "completed_work")
	if err != nil {
		return nil, err
	}
	pending, err := marshalJSON(sf.PendingWork, "pending_work")
	if err != nil {
		return nil, err
	}
	decisions, err := marshalJSON(sf.Decisions, "decisions")
	if err != nil {
		return nil, err
	}
	tags, err := marshalJSON(sf.Tags, "tags")
	if err != nil {
		return nil, err
	}

	return []any{
		sf.ID, sf.Version, sf.CurrentAgent, previous, string(sf.Phase), string(sf.Status),
		storyCtx, completed, pending, decisions, sf.HandoverNotes, sf.Priority, tags,
		sf.RollbackPlan, sf.TTL.Milliseconds(), toNanos(sf.CreatedAt), toNanos(sf.UpdatedAt),
	}, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoryFile(row rowScanner) (*story.StoryFile, error) {
	var (
		sf                                                      story.StoryFile
		phase, status                                           string
		previous, storyCtx, completed, pending, decisions, tags string
		ttlMillis, createdAt, updatedAt                         int64
	)
	if err := row.Scan(
		&sf.ID, &sf.Version, &sf.CurrentAgent, &previous, &phase, &status, &storyCtx,
		&completed, &pending, &decisions, &sf.HandoverNotes, &sf.Priority, &tags,
		&sf.RollbackPlan, &ttlMillis, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw  string
		dest any
	}{
		{previous, &sf.PreviousAgents},
		{storyCtx, &sf.Context},
		{completed, &sf.CompletedWork},
		{pending, &sf.PendingWork},
		{decisions, &sf.Decisions},
		{tags, &sf.Tags},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return nil, goerr.Wrap(err, "failed to decode story file column", goerr.V("id", sf.ID))
		}
	}

	sf.Phase = model.Phase(phase)
	sf.Status = model.Status(status)
	sf.TTL = time.Duration(ttlMillis) * time.Millisecond
	sf.CreatedAt = fromNanos(createdAt)
	sf.UpdatedAt = fromNanos(updatedAt)
	if sf.Context.Original == nil {
		sf.Context.Original = map[string]any{}
	}
	if sf.Context.Current == nil {
		sf.Context.Current = map[string]any{}
	}
	return &sf, nil
}

func marshalJSON(v any, column string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", goerr.Wrap(model.ErrStorage, "failed to encode column", goerr.V("column", column), goerr.V("cause", err.Error()))
	}
	return string(b), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// requireAffected turns a zero-row write into ErrNotFound
func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return model.StorageError(err, "failed to read rows affected", goerr.V("id", id))
	}
	if n == 0 {
		return model.NotFound(kind, id)
	}
	return nil
}
