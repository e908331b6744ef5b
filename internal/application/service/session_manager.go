package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/app"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/session"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
)

// DefaultSessionLifetime applies when a create request names no expiry
const DefaultSessionLifetime = 24 * time.Hour

// ErrManagerClosed is returned by a session manager after Shutdown
var ErrManagerClosed = errors.New("session manager is shut down")

// CreateSessionInput describes a new session
type CreateSessionInput struct {
	AgentName       string
	SessionType     string
	ExpirationHours int           // 0 => manager default
	ExpiresIn       time.Duration // overrides ExpirationHours when positive
	InitialState    map[string]any
	InitialContext  map[string]any
}

// UpdateSessionInput is a shallow merge plus one log entry
type UpdateSessionInput struct {
	SessionID      string
	StateUpdates   map[string]any
	ContextUpdates map[string]any
	OperationType  string
	OperationData  map[string]any
}

// SessionAnalytics summarises a session
type SessionAnalytics struct {
	TotalOperations        int            `json:"totalOperations"`
	SessionDurationMinutes float64        `json:"sessionDurationMinutes"`
	OperationTypeCounts    map[string]int `json:"operationTypeCounts"`
	ChildSessionCount      int            `json:"childSessionCount"`
	IsExpired              bool           `json:"isExpired"`
	RemainingMinutes       float64        `json:"remainingMinutes"`
}

// SessionManager owns agent sessions and their expiry timers
type SessionManager struct {
	repo       repository.SessionRepository
	metrics    output.MetricsRecorder
	logger     app.Logger
	now        func() time.Time
	defaultTTL time.Duration
	locks      *keyedMutex

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup // in-flight expiry callbacks
}

// SessionManagerOption configures optional collaborators
type SessionManagerOption func(*SessionManager)

// WithSessionMetrics attaches a metrics recorder
func WithSessionMetrics(metrics output.MetricsRecorder) SessionManagerOption {
	return func(m *SessionManager) { m.metrics = metrics }
}

// WithSessionLogger sets the logger
func WithSessionLogger(logger app.Logger) SessionManagerOption {
	return func(m *SessionManager) { m.logger = logger }
}

// WithSessionClock overrides the clock used for expiry checks
func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) { m.now = now }
}

// WithDefaultSessionLifetime changes the lifetime used when none is requested
func WithDefaultSessionLifetime(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.defaultTTL = d
		}
	}
}

// NewSessionManager creates a new session manager. Call Shutdown to stop its timers.
func NewSessionManager(repo repository.SessionRepository, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		repo:       repo,
		metrics:    nopMetrics{},
		logger:     app.NopLogger,
		now:        func() time.Time { return time.Now().UTC() },
		defaultTTL: DefaultSessionLifetime,
		locks:      newKeyedMutex(),
		timers:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession stores a new session and schedules its expiry
func (m *SessionManager) CreateSession(ctx context.Context, in CreateSessionInput) (string, error) {
	if m.isClosed() {
		return "", ErrManagerClosed
	}
	if in.ExpirationHours < 0 || in.ExpiresIn < 0 {
		return "", model.InvalidArgument("session expiry cannot be negative")
	}

	ttl := m.defaultTTL
	if in.ExpirationHours > 0 {
		ttl = time.Duration(in.ExpirationHours) * time.Hour
	}
	if in.ExpiresIn > 0 {
		ttl = in.ExpiresIn
	}

	s, err := session.New(in.AgentName, in.SessionType, "", ttl, in.InitialState, in.InitialContext)
	if err != nil {
		return "", err
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return "", model.StorageError(err, "failed to create session", goerr.V("agent", in.AgentName))
	}

	m.schedule(s.ID, ttl)
	m.metrics.RecordSessionOp(ctx, "create")
	m.logger.With("session", *s).Debug("session %s created for %s (expires %s)", s.ID, s.AgentName, s.ExpiresAt.Format(time.RFC3339))
	return s.ID, nil
}

// GetSession loads a session by ID
func (m *SessionManager) GetSession(ctx context.Context, id string) (*session.Session, error) {
	s, err := m.repo.Find(ctx, id)
	if err != nil {
		return nil, model.StorageError(err, "failed to load session", goerr.V("session_id", id))
	}
	return s, nil
}

// UpdateSession shallow-merges state and context and appends one log entry
func (m *SessionManager) UpdateSession(ctx context.Context, in UpdateSessionInput) (bool, error) {
	if in.OperationType == "" {
		return false, model.InvalidArgument("operation type cannot be empty", goerr.V("session_id", in.SessionID))
	}

	unlock := m.locks.lock(in.SessionID)
	defer unlock()

	s, err := m.repo.Find(ctx, in.SessionID)
	if err != nil {
		return false, model.StorageError(err, "failed to load session", goerr.V("session_id", in.SessionID))
	}
	if s.IsExpired(m.now()) {
		return false, goerr.Wrap(model.ErrSessionExpired, "session expired",
			goerr.V("session_id", in.SessionID), goerr.V("expires_at", s.ExpiresAt))
	}

	s.Apply(in.StateUpdates, in.ContextUpdates, in.OperationType, in.OperationData)
	if err := m.repo.Update(ctx, s); err != nil {
		return false, model.StorageError(err, "failed to save session", goerr.V("session_id", in.SessionID))
	}

	m.metrics.RecordSessionOp(ctx, "update")
	return true, nil
}

// CreateChildSession opens a session under parentID that expires with its parent
func (m *SessionManager) CreateChildSession(ctx context.Context, parentID, agentName, sessionType string, inheritedContext map[string]any) (string, error) {
	if m.isClosed() {
		return "", ErrManagerClosed
	}

	parent, err := m.repo.Find(ctx, parentID)
	if err != nil {
		return "", model.StorageError(err, "failed to load parent session", goerr.V("session_id", parentID))
	}
	remaining := parent.ExpiresAt.Sub(m.now())
	if remaining <= 0 {
		return "", goerr.Wrap(model.ErrSessionExpired, "parent session expired", goerr.V("session_id", parentID))
	}

	child, err := session.New(agentName, sessionType, parentID, remaining, nil, inheritedContext)
	if err != nil {
		return "", err
	}
	if err := m.repo.Create(ctx, child); err != nil {
		return "", model.StorageError(err, "failed to create child session", goerr.V("parent_id", parentID))
	}

	m.schedule(child.ID, remaining)
	m.metrics.RecordSessionOp(ctx, "child")
	return child.ID, nil
}

// GetSessionAnalytics summarises operations, timing and children of a session
func (m *SessionManager) GetSessionAnalytics(ctx context.Context, id string) (SessionAnalytics, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return SessionAnalytics{}, err
	}
	children, err := m.repo.ListChildren(ctx, id)
	if err != nil {
		return SessionAnalytics{}, model.StorageError(err, "failed to list child sessions", goerr.V("session_id", id))
	}

	now := m.now()
	end := now
	if s.ExpiresAt.Before(end) {
		end = s.ExpiresAt
	}

	a := SessionAnalytics{
		TotalOperations:        len(s.OperationsLog),
		SessionDurationMinutes: end.Sub(s.CreatedAt).Minutes(),
		OperationTypeCounts:    map[string]int{},
		ChildSessionCount:      len(children),
		IsExpired:              s.IsExpired(now),
	}
	if !a.IsExpired {
		a.RemainingMinutes = s.ExpiresAt.Sub(now).Minutes()
	}
	for _, op := range s.OperationsLog {
		a.OperationTypeCounts[op.OperationType]++
	}
	return a, nil
}

// EndSession deletes a session and cancels its timer
func (m *SessionManager) EndSession(ctx context.Context, id string) error {
	m.cancel(id)
	if err := m.repo.Delete(ctx, id); err != nil {
		return model.StorageError(err, "failed to end session", goerr.V("session_id", id))
	}
	m.metrics.RecordSessionOp(ctx, "end")
	return nil
}

// CleanupExpired deletes every session past its expiry
func (m *SessionManager) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := m.repo.ListExpired(ctx, m.now())
	if err != nil {
		return 0, model.StorageError(err, "failed to list expired sessions")
	}

	removed := 0
	for _, s := range expired {
		m.cancel(s.ID)
		if err := m.repo.Delete(ctx, s.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			return removed, model.StorageError(err, "failed to delete expired session", goerr.V("session_id", s.ID))
		}
		removed++
	}

	m.metrics.RecordSessionOp(ctx, "cleanup")
	return removed, nil
}

// Shutdown stops every pending timer and waits for running expiry callbacks
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.closed = true
	for id, t := range m.timers {
		if t.Stop() {
			m.wg.Done()
		}
		delete(m.timers, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// PendingTimers reports how many expiry timers are scheduled
func (m *SessionManager) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *SessionManager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *SessionManager) schedule(id string, after time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.wg.Add(1)
	m.timers[id] = time.AfterFunc(after, func() {
		defer m.wg.Done()
		m.expire(id)
	})
}

// cancel stops a pending timer; a timer that already fired finishes on its own
func (m *SessionManager) cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[id]
	if !ok {
		return
	}
	delete(m.timers, id)
	if t.Stop() {
		m.wg.Done()
	}
}

func (m *SessionManager) expire(id string) {
	m.mu.Lock()
	delete(m.timers, id)
	m.mu.Unlock()

	ctx := context.Background()
	if err := m.repo.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		m.logger.With("session_id", id, "error", err).Warn("failed to delete expired session %s", id)
		return
	}
	m.metrics.RecordSessionOp(ctx, "expire")
	m.logger.Debug("session %s expired", id)
}
