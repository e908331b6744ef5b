package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/app"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/dto"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/input"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// maxLatencySamples is how many escalation durations GetMetrics reports
const maxLatencySamples = 100

// escalationContextKey is where the latest escalation lands in Context.Current
const escalationContextKey = "lastEscalation"

// CommunicationMetrics is a snapshot of the manager's counters
type CommunicationMetrics struct {
	ActiveStoryFiles  int             `json:"activeStoryFiles"`
	StoryFileHitRatio float64         `json:"storyFileHitRatio"`
	EscalationLatency []time.Duration `json:"escalationLatency"`
	CacheHits         int64           `json:"cacheHits"`
	CacheMisses       int64           `json:"cacheMisses"`
}

// registeredAgent pairs an agent with its optional escalation capability,
// resolved once at registration
type registeredAgent struct {
	agent     input.Agent
	escalator input.Escalator
}

// CommunicationManager turns escalations into story file operations and
// fronts the story file manager with a bounded read cache
type CommunicationManager struct {
	stories *StoryFileManager
	cache   *storyCache
	metrics output.MetricsRecorder
	logger  app.Logger

	agentsMu sync.RWMutex
	agents   []registeredAgent

	latencyMu sync.Mutex
	latencies []time.Duration
}

// CommunicationManagerOption configures optional collaborators
type CommunicationManagerOption func(*communicationConfig)

type communicationConfig struct {
	cacheSize int
	metrics   output.MetricsRecorder
	logger    app.Logger
}

// WithCacheSize bounds the story cache
func WithCacheSize(size int) CommunicationManagerOption {
	return func(c *communicationConfig) { c.cacheSize = size }
}

// WithCommunicationMetrics attaches a metrics recorder
func WithCommunicationMetrics(metrics output.MetricsRecorder) CommunicationManagerOption {
	return func(c *communicationConfig) { c.metrics = metrics }
}

// WithCommunicationLogger sets the logger
func WithCommunicationLogger(logger app.Logger) CommunicationManagerOption {
	return func(c *communicationConfig) { c.logger = logger }
}

// NewCommunicationManager creates a manager routing escalations between agents
func NewCommunicationManager(
	stories *StoryFileManager,
	agents []input.Agent,
	opts ...CommunicationManagerOption,
) (*CommunicationManager, error) {
	cfg := communicationConfig{
		cacheSize: DefaultStoryCacheSize,
		metrics:   nopMetrics{},
		logger:    app.NopLogger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := newStoryCache(cfg.cacheSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create story cache", goerr.V("size", cfg.cacheSize))
	}

	m := &CommunicationManager{
		stories:   stories,
		cache:     cache,
		metrics:   cfg.metrics,
		logger:    cfg.logger,
		latencies: make([]time.Duration, 0, maxLatencySamples),
	}
	for _, a := range agents {
		if err := m.RegisterAgent(a); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterAgent adds an agent to the routing table
func (m *CommunicationManager) RegisterAgent(agent input.Agent) error {
	if agent == nil || agent.Name() == "" {
		return model.InvalidArgument("agent must have a name")
	}

	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	for _, ra := range m.agents {
		if ra.agent.Name() == agent.Name() {
			return model.InvalidArgument("agent already registered", goerr.V("agent", agent.Name()))
		}
	}
	ra := registeredAgent{agent: agent}
	if esc, ok := agent.(input.Escalator); ok {
		ra.escalator = esc
	}
	m.agents = append(m.agents, ra)
	return nil
}

// OptimizedEscalation attaches the request to a story file and routes it to a handler.
// It never panics or retries; failures come back with Success=false and the error text.
// When an existing story is updated and the handover then fails, the update
// (new version and lastEscalation entry) stays persisted.
func (m *CommunicationManager) OptimizedEscalation(ctx context.Context, req dto.EscalationRequest) dto.EscalationResponse {
	start := time.Now()
	resp := m.escalate(ctx, req)
	elapsed := time.Since(start)

	m.recordLatency(elapsed)
	m.metrics.RecordEscalation(ctx, resp.Success, elapsed)
	log := m.logger.With("agent", req.SourceAgent, "tool", req.OriginalToolName, "story_id", resp.StoryFileID)
	if resp.Success {
		log.Info("escalation from %s for %s handled by %s", req.SourceAgent, req.OriginalToolName, resp.HandledBy)
	} else {
		log.Warn("escalation from %s for %s failed: %s", req.SourceAgent, req.OriginalToolName, resp.Message)
	}
	return resp
}

func (m *CommunicationManager) escalate(ctx context.Context, req dto.EscalationRequest) dto.EscalationResponse {
	var (
		resp dto.EscalationResponse
		sf   *story.StoryFile
		err  error
	)

	switch {
	case req.StoryFileID != "":
		if _, err = m.GetStoryFile(ctx, req.StoryFileID); err != nil {
			return failed(resp, err)
		}
		sf, err = m.UpdateStoryFile(ctx, req.StoryFileID, StoryFileUpdate{
			CompletedWork:    req.CompletedWork,
			PendingWork:      req.PendingWork,
			TechnicalContext: req.TechnicalContext,
			CurrentContext:   map[string]any{escalationContextKey: escalationRecord(req)},
		})
		if err != nil {
			return failed(resp, err)
		}
		resp.StoryUpdates.Updated = true

	case req.RequiresNewStory:
		priority := req.Urgency.Priority()
		sf, err = m.createStory(ctx, CreateStoryFileInput{
			AgentName: req.SourceAgent,
			Context: story.Context{
				Original:  req.OriginalContext,
				Current:   map[string]any{escalationContextKey: escalationRecord(req)},
				Technical: req.TechnicalContext,
			},
			PendingWork: req.PendingWork,
			Priority:    &priority,
		})
		if err != nil {
			return failed(resp, err)
		}
		resp.StoryUpdates.Created = true
	}

	if sf != nil {
		resp.StoryFileID = sf.ID
		setStoryState(&resp, sf)
	}

	handler, err := m.resolveHandler(req)
	if err != nil {
		return failed(resp, err)
	}
	resp.HandledBy = handler

	if sf != nil && handler != sf.CurrentAgent {
		sf, err = m.HandoverStoryFile(ctx, sf.ID, handler, handoverNotes(req))
		if err != nil {
			return failed(resp, err)
		}
		resp.StoryUpdates.HandedOver = true
		setStoryState(&resp, sf)
	}

	resp.Success = true
	resp.Message = fmt.Sprintf("escalation for %s handled by %s", req.OriginalToolName, handler)
	return resp
}

// resolveHandler picks the explicit target, or the best registered agent for the tool
func (m *CommunicationManager) resolveHandler(req dto.EscalationRequest) (string, error) {
	if req.TargetAgent != "" {
		return req.TargetAgent, nil
	}

	m.agentsMu.RLock()
	defer m.agentsMu.RUnlock()

	var candidates []input.Agent
	for _, ra := range m.agents {
		a := ra.agent
		if a.Name() == req.SourceAgent || !a.CanHandle(req.OriginalToolName) {
			continue
		}
		if !hasCapabilities(a.Capabilities(), req.RequiredCapabilities) {
			continue
		}
		if ra.escalator != nil && (!ra.escalator.CanEscalate() || ra.escalator.ShouldEscalate(req)) {
			continue
		}
		candidates = append(candidates, a)
	}

	if len(candidates) == 0 {
		return "", goerr.Wrap(model.ErrNotFound,
			"no agent available to handle tool "+req.OriginalToolName,
			goerr.V("tool", req.OriginalToolName),
			goerr.V("required_capabilities", req.RequiredCapabilities))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority() != candidates[j].Priority() {
			return candidates[i].Priority() > candidates[j].Priority()
		}
		if candidates[i].Tier() != candidates[j].Tier() {
			return candidates[i].Tier() < candidates[j].Tier()
		}
		return candidates[i].Name() < candidates[j].Name()
	})
	return candidates[0].Name(), nil
}

// CreateStoryFile opens a story file and caches it
func (m *CommunicationManager) CreateStoryFile(ctx context.Context, agent string, sctx story.Context, pendingWork []string) (*story.StoryFile, error) {
	return m.createStory(ctx, CreateStoryFileInput{
		AgentName:   agent,
		Context:     sctx,
		PendingWork: pendingWork,
	})
}

func (m *CommunicationManager) createStory(ctx context.Context, in CreateStoryFileInput) (*story.StoryFile, error) {
	sf, err := m.stories.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	m.cache.put(sf)
	return sf, nil
}

// GetStoryFile serves from the cache, falling back to the store
func (m *CommunicationManager) GetStoryFile(ctx context.Context, id string) (*story.StoryFile, error) {
	if sf, ok := m.cache.get(id); ok {
		m.metrics.RecordCacheLookup(ctx, true)
		return sf, nil
	}
	m.metrics.RecordCacheLookup(ctx, false)

	sf, err := m.stories.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cache.put(sf)
	return sf, nil
}

// UpdateStoryFile updates through the manager and refreshes the cache
func (m *CommunicationManager) UpdateStoryFile(ctx context.Context, id string, update StoryFileUpdate) (*story.StoryFile, error) {
	return m.writeThrough(id, func() (*story.StoryFile, error) {
		return m.stories.Update(ctx, id, update)
	})
}

// HandoverStoryFile hands over through the manager and refreshes the cache
func (m *CommunicationManager) HandoverStoryFile(ctx context.Context, id, targetAgent, notes string) (*story.StoryFile, error) {
	return m.writeThrough(id, func() (*story.StoryFile, error) {
		return m.stories.Handover(ctx, id, targetAgent, notes)
	})
}

// TransitionStoryPhase changes phase through the manager and refreshes the cache
func (m *CommunicationManager) TransitionStoryPhase(ctx context.Context, id string, target model.Phase) (*story.StoryFile, error) {
	return m.writeThrough(id, func() (*story.StoryFile, error) {
		return m.stories.TransitionPhase(ctx, id, target)
	})
}

// AddStoryDecision records a decision through the manager and refreshes the cache
func (m *CommunicationManager) AddStoryDecision(ctx context.Context, id string, decision DecisionInput) (*story.StoryFile, error) {
	return m.writeThrough(id, func() (*story.StoryFile, error) {
		return m.stories.AddDecision(ctx, id, decision)
	})
}

// CleanupStoryFiles runs cleanup and drops every cached entry
func (m *CommunicationManager) CleanupStoryFiles(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := m.stories.Cleanup(ctx, maxAge)
	m.cache.purge()
	return removed, err
}

// writeThrough caches successful writes; a failed write evicts the entry
// so the next read goes back to the store
func (m *CommunicationManager) writeThrough(id string, write func() (*story.StoryFile, error)) (*story.StoryFile, error) {
	sf, err := write()
	if err != nil {
		m.cache.remove(id)
		return nil, err
	}
	m.cache.put(sf)
	return sf, nil
}

// GetMetrics returns a snapshot of cache and latency metrics
func (m *CommunicationManager) GetMetrics() CommunicationMetrics {
	m.latencyMu.Lock()
	latencies := slices.Clone(m.latencies)
	m.latencyMu.Unlock()

	return CommunicationMetrics{
		ActiveStoryFiles:  m.cache.len(),
		StoryFileHitRatio: m.cache.hitRatio(),
		EscalationLatency: latencies,
		CacheHits:         m.cache.hits.Load(),
		CacheMisses:       m.cache.misses.Load(),
	}
}

func (m *CommunicationManager) recordLatency(d time.Duration) {
	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()

	if len(m.latencies) == maxLatencySamples {
		copy(m.latencies, m.latencies[1:])
		m.latencies = m.latencies[:maxLatencySamples-1]
	}
	m.latencies = append(m.latencies, d)
}

func failed(resp dto.EscalationResponse, err error) dto.EscalationResponse {
	resp.Success = false
	resp.Message = err.Error()
	return resp
}

func setStoryState(resp *dto.EscalationResponse, sf *story.StoryFile) {
	resp.StoryUpdates.Version = sf.Version
	resp.StoryUpdates.Phase = sf.Phase
	resp.StoryUpdates.Status = sf.Status
}

func hasCapabilities(have, need []string) bool {
	for _, c := range need {
		if !slices.Contains(have, c) {
			return false
		}
	}
	return true
}

func escalationRecord(req dto.EscalationRequest) map[string]any {
	rec := map[string]any{
		"toolName":    req.OriginalToolName,
		"reason":      req.Reason,
		"urgency":     string(req.Urgency),
		"sourceAgent": req.SourceAgent,
		"message":     req.Message,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(req.AttemptedActions) > 0 {
		rec["attemptedActions"] = slices.Clone(req.AttemptedActions)
	}
	if len(req.RequiredCapabilities) > 0 {
		rec["requiredCapabilities"] = slices.Clone(req.RequiredCapabilities)
	}
	return rec
}

func handoverNotes(req dto.EscalationRequest) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(req.Reason); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(req.Message); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ": ")
}
