package memory

import (
	"math"
	"slices"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// Memory is a lesson an agent stored for later retrieval
type Memory struct {
	ID             string     `json:"id" yaml:"id"`
	AgentName      string     `json:"agentName" yaml:"agentName"`
	MemoryType     string     `json:"memoryType" yaml:"memoryType"`
	Content        string     `json:"content" yaml:"content"`
	Tags           []string   `json:"tags" yaml:"tags"`
	RelevanceScore float64    `json:"relevanceScore" yaml:"relevanceScore"`
	UseCount       int        `json:"useCount" yaml:"useCount"`
	CreatedAt      time.Time  `json:"createdAt" yaml:"createdAt"`
	LastUsed       time.Time  `json:"lastUsed" yaml:"lastUsed"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// DefaultMemoryType is used when the caller does not classify a memory
const DefaultMemoryType = "general"

// New creates a memory with full relevance and no recorded use
func New(agentName, memoryType, content string, tags []string, expiresIn time.Duration) (*Memory, error) {
	if agentName == "" {
		return nil, model.InvalidArgument("memory agent name cannot be empty")
	}
	if content == "" {
		return nil, model.InvalidArgument("memory content cannot be empty")
	}
	if memoryType == "" {
		memoryType = DefaultMemoryType
	}

	now := time.Now().UTC()
	m := &Memory{
		ID:             model.NewID(),
		AgentName:      agentName,
		MemoryType:     memoryType,
		Content:        content,
		Tags:           dedupe(tags),
		RelevanceScore: 1.0,
		UseCount:       0,
		CreatedAt:      now,
		LastUsed:       now,
	}
	if expiresIn > 0 {
		exp := now.Add(expiresIn)
		m.ExpiresAt = &exp
	}
	return m, nil
}

// Clone returns a deep copy
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = slices.Clone(m.Tags)
	if m.ExpiresAt != nil {
		exp := *m.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}

// IsExpired reports whether the memory passed its expiry
func (m *Memory) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// Strengthen multiplies the relevance score, clamped to [0, 1]
func (m *Memory) Strengthen(factor float64) {
	m.RelevanceScore = clamp01(m.RelevanceScore * factor)
}

// MarkUsed records one retrieval
func (m *Memory) MarkUsed(now time.Time) {
	m.UseCount++
	m.LastUsed = now
}

// Relationship is a directed weighted edge between two memories
type Relationship struct {
	SourceID     string    `json:"sourceId" yaml:"sourceId"`
	TargetID     string    `json:"targetId" yaml:"targetId"`
	RelationType string    `json:"relationType" yaml:"relationType"`
	Weight       float64   `json:"weight" yaml:"weight"`
	CreatedBy    string    `json:"createdBy" yaml:"createdBy"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}

// NewRelationship validates the edge weight and endpoints
func NewRelationship(sourceID, targetID, relationType string, weight float64, createdBy string) (*Relationship, error) {
	if sourceID == "" || targetID == "" {
		return nil, model.InvalidArgument("relationship endpoints cannot be empty")
	}
	if relationType == "" {
		return nil, model.InvalidArgument("relationship type cannot be empty")
	}
	if !IsFinite(weight) || weight < 0 || weight > 1 {
		return nil, model.InvalidArgument("relationship weight must be within [0, 1]")
	}
	return &Relationship{
		SourceID:     sourceID,
		TargetID:     targetID,
		RelationType: relationType,
		Weight:       weight,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
