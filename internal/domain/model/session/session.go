package session

import (
	"maps"
	"slices"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// Session is short-lived, agent-scoped working state
type Session struct {
	ID              string           `json:"id" yaml:"id"`
	AgentName       string           `json:"agentName" yaml:"agentName"`
	SessionType     string           `json:"sessionType" yaml:"sessionType"`
	ParentSessionID string           `json:"parentSessionId,omitempty" yaml:"parentSessionId,omitempty"`
	StateData       map[string]any   `json:"stateData" yaml:"stateData"`
	ContextData     map[string]any   `json:"contextData" yaml:"contextData"`
	OperationsLog   []OperationEntry `json:"operationsLog" yaml:"operationsLog"`
	CreatedAt       time.Time        `json:"createdAt" yaml:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt" yaml:"updatedAt"`
	ExpiresAt       time.Time        `json:"expiresAt" yaml:"expiresAt"`
}

// OperationEntry is one append-only log line
type OperationEntry struct {
	Timestamp     time.Time      `json:"timestamp" yaml:"timestamp"`
	OperationType string         `json:"operationType" yaml:"operationType"`
	OperationData map[string]any `json:"operationData,omitempty" yaml:"operationData,omitempty"`
}

// New creates a session expiring after ttl
func New(agentName, sessionType, parentID string, ttl time.Duration, state, ctx map[string]any) (*Session, error) {
	if agentName == "" {
		return nil, model.InvalidArgument("session agent name cannot be empty")
	}
	if ttl <= 0 {
		return nil, model.InvalidArgument("session lifetime must be positive")
	}

	now := time.Now().UTC()
	return &Session{
		ID:              model.NewID(),
		AgentName:       agentName,
		SessionType:     sessionType,
		ParentSessionID: parentID,
		StateData:       copyMap(state),
		ContextData:     copyMap(ctx),
		OperationsLog:   []OperationEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}, nil
}

// Clone returns a copy whose maps and log can be changed independently
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.StateData = copyMap(s.StateData)
	c.ContextData = copyMap(s.ContextData)
	c.OperationsLog = slices.Clone(s.OperationsLog)
	return &c
}

// IsExpired reports whether the session is past its expiry
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Apply shallow-merges updates and appends a log entry.
// Nested maps are replaced, not merged: callers supply the whole subtree.
func (s *Session) Apply(stateUpdates, contextUpdates map[string]any, opType string, opData map[string]any) {
	if s.StateData == nil {
		s.StateData = map[string]any{}
	}
	if s.ContextData == nil {
		s.ContextData = map[string]any{}
	}
	maps.Copy(s.StateData, stateUpdates)
	maps.Copy(s.ContextData, contextUpdates)

	now := time.Now().UTC()
	s.OperationsLog = append(s.OperationsLog, OperationEntry{
		Timestamp:     now,
		OperationType: opType,
		OperationData: opData,
	})
	s.UpdatedAt = now
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
