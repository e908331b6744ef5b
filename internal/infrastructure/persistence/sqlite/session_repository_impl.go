package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/session"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
)

const sessionColumns = `id, agent_name, session_type, parent_session_id, state_data, state_sealed,
	context_data, operations_log, created_at, updated_at, expires_at`

// StateSealer encrypts session state. The session ID is bound as associated
// data so a blob cannot be moved to another row.
type StateSealer interface {
	Seal(plaintext, associated []byte) ([]byte, error)
	Open(sealed, associated []byte) ([]byte, error)
}

// SessionRepositoryImpl implements repository.SessionRepository with SQLite.
// StateData is sealed when a sealer is configured and stored as plain JSON otherwise.
type SessionRepositoryImpl struct {
	db     *sql.DB
	sealer StateSealer
}

// NewSessionRepository creates a new SQLite-based session repository; sealer may be nil
func NewSessionRepository(db *sql.DB, sealer StateSealer) repository.SessionRepository {
	return &SessionRepositoryImpl{db: db, sealer: sealer}
}

// Create inserts a new session
func (r *SessionRepositoryImpl) Create(ctx context.Context, s *session.Session) error {
	row, err := r.encode(s)
	if err != nil {
		return err
	}

	_, err = executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row...,
	)
	if err != nil {
		return model.StorageError(err, "failed to insert session", goerr.V("id", s.ID))
	}
	return nil
}

// Find retrieves a session by ID
func (r *SessionRepositoryImpl) Find(ctx context.Context, id string) (*session.Session, error) {
	row := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	s, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("session", id)
	}
	if err != nil {
		return nil, model.StorageError(err, "failed to load session", goerr.V("id", id))
	}
	return s, nil
}

// Update overwrites a stored session
func (r *SessionRepositoryImpl) Update(ctx context.Context, s *session.Session) error {
	row, err := r.encode(s)
	if err != nil {
		return err
	}

	args := append(row[1:], s.ID)
	result, err := executor(ctx, r.db).ExecContext(ctx, `
		UPDATE sessions SET
			agent_name = ?, session_type = ?, parent_session_id = ?, state_data = ?, state_sealed = ?,
			context_data = ?, operations_log = ?, created_at = ?, updated_at = ?, expires_at = ?
		WHERE id = ?`,
		args...,
	)
	if err != nil {
		return model.StorageError(err, "failed to update session", goerr.V("id", s.ID))
	}
	return requireAffected(result, "session", s.ID)
}

// Delete removes a session
func (r *SessionRepositoryImpl) Delete(ctx context.Context, id string) error {
	result, err := executor(ctx, r.db).ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return model.StorageError(err, "failed to delete session", goerr.V("id", id))
	}
	return requireAffected(result, "session", id)
}

// ListChildren returns sessions whose parent is parentID
func (r *SessionRepositoryImpl) ListChildren(ctx context.Context, parentID string) ([]*session.Session, error) {
	return r.query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE parent_session_id = ? ORDER BY created_at ASC, id ASC`,
		parentID)
}

// ListExpired returns sessions whose expiry is not after now
func (r *SessionRepositoryImpl) ListExpired(ctx context.Context, now time.Time) ([]*session.Session, error) {
	return r.query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE expires_at <= ? ORDER BY expires_at ASC, id ASC`,
		toNanos(now))
}

func (r *SessionRepositoryImpl) query(ctx context.Context, query string, args ...any) ([]*session.Session, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.StorageError(err, "failed to list sessions")
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, model.StorageError(err, "failed to scan session")
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError(err, "failed to iterate sessions")
	}
	return result, nil
}

func (r *SessionRepositoryImpl) encode(s *session.Session) ([]any, error) {
	state, err := json.Marshal(s.StateData)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorage, "failed to encode session state",
			goerr.V("id", s.ID), goerr.V("cause", err.Error()))
	}
	sealed := false
	if r.sealer != nil {
		if state, err = r.sealer.Seal(state, []byte(s.ID)); err != nil {
			return nil, model.StorageError(err, "failed to seal session state", goerr.V("id", s.ID))
		}
		sealed = true
	}

	contextData, err := marshalJSON(s.ContextData, "context_data")
	if err != nil {
		return nil, err
	}
	opsLog, err := marshalJSON(s.OperationsLog, "operations_log")
	if err != nil {
		return nil, err
	}

	return []any{
		s.ID, s.AgentName, s.SessionType, s.ParentSessionID, state, sealed,
		contextData, opsLog, toNanos(s.CreatedAt), toNanos(s.UpdatedAt), toNanos(s.ExpiresAt),
	}, nil
}

func (r *SessionRepositoryImpl) scan(row rowScanner) (*session.Session, error) {
	var (
		s                               session.Session
		state                           []byte
		sealed                          bool
		contextData, opsLog             string
		createdAt, updatedAt, expiresAt int64
	)
	if err := row.Scan(
		&s.ID, &s.AgentName, &s.SessionType, &s.ParentSessionID, &state, &sealed,
		&contextData, &opsLog, &createdAt, &updatedAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	if sealed {
		if r.sealer == nil {
			return nil, goerr.New("session state is sealed but no sealer is configured", goerr.V("id", s.ID))
		}
		plain, err := r.sealer.Open(state, []byte(s.ID))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open session state", goerr.V("id", s.ID))
		}
		state = plain
	}

	if err := json.Unmarshal(state, &s.StateData); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session state", goerr.V("id", s.ID))
	}
	if err := json.Unmarshal([]byte(contextData), &s.ContextData); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session context", goerr.V("id", s.ID))
	}
	if err := json.Unmarshal([]byte(opsLog), &s.OperationsLog); err != nil {
		return nil, goerr.Wrap(err, "failed to decode operations log", goerr.V("id", s.ID))
	}
	if s.StateData == nil {
		s.StateData = map[string]any{}
	}
	if s.ContextData == nil {
		s.ContextData = map[string]any{}
	}

	s.CreatedAt = fromNanos(createdAt)
	s.UpdatedAt = fromNanos(updatedAt)
	s.ExpiresAt = fromNanos(expiresAt)
	return &s, nil
}
