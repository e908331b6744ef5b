package service

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/YoshitsuguKoike/storyrelay/internal/app"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
	domainservice "github.com/YoshitsuguKoike/storyrelay/internal/domain/service"
)

// DefaultStoryPriority is used when a create request carries no priority
const DefaultStoryPriority = 5

// archiveConcurrency bounds parallel archive uploads during cleanup
const archiveConcurrency = 4

// ListStrategy selects how list-valued fields are applied by Update
type ListStrategy int

const (
	// ListReplace replaces supplied lists wholesale
	ListReplace ListStrategy = iota
	// ListAppend appends work items and unions tags
	ListAppend
)

// CreateStoryFileInput holds everything needed to open a story file
type CreateStoryFileInput struct {
	AgentName    string
	Context      story.Context
	PendingWork  []string
	Priority     *int // nil => DefaultStoryPriority
	Tags         []string
	RollbackPlan string
	TTL          time.Duration
}

// StoryFileUpdate is a partial update. nil fields are left untouched;
// a non-nil empty list clears the field under ListReplace.
type StoryFileUpdate struct {
	Status           *model.Status
	CurrentContext   map[string]any // shallow-merged into Context.Current
	TechnicalContext *story.TechnicalContext
	CompletedWork    []string
	PendingWork      []string
	HandoverNotes    *string
	Priority         *int
	Tags             []string
	RollbackPlan     *string
	TTL              *time.Duration

	ListStrategy    ListStrategy
	ExpectedVersion *int
}

// DecisionInput describes a decision to append to the audit trail
type DecisionInput struct {
	AgentName    string
	DecisionType model.DecisionType
	Description  string
	Rationale    string
	Impact       model.Impact
	Reversible   bool
	Alternatives []string
	Dependencies []string
}

// StoryFileManager owns the story file lifecycle
type StoryFileManager struct {
	repo      repository.StoryFileRepository
	txManager output.TransactionManager
	archive   output.ArchiveGateway
	metrics   output.MetricsRecorder
	logger    app.Logger
	now       func() time.Time
}

// StoryFileManagerOption configures optional collaborators
type StoryFileManagerOption func(*StoryFileManager)

// WithArchiveGateway archives story files before cleanup deletes them
func WithArchiveGateway(archive output.ArchiveGateway) StoryFileManagerOption {
	return func(m *StoryFileManager) { m.archive = archive }
}

// WithStoryMetrics attaches a metrics recorder
func WithStoryMetrics(metrics output.MetricsRecorder) StoryFileManagerOption {
	return func(m *StoryFileManager) { m.metrics = metrics }
}

// WithStoryLogger sets the logger
func WithStoryLogger(logger app.Logger) StoryFileManagerOption {
	return func(m *StoryFileManager) { m.logger = logger }
}

// WithStoryClock overrides the clock used by cleanup
func WithStoryClock(now func() time.Time) StoryFileManagerOption {
	return func(m *StoryFileManager) { m.now = now }
}

// NewStoryFileManager creates a new story file manager
func NewStoryFileManager(
	repo repository.StoryFileRepository,
	txManager output.TransactionManager,
	opts ...StoryFileManagerOption,
) *StoryFileManager {
	m := &StoryFileManager{
		repo:      repo,
		txManager: txManager,
		metrics:   nopMetrics{},
		logger:    app.NopLogger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a new story file in PLANNING / DRAFT at version 1
func (m *StoryFileManager) Create(ctx context.Context, input CreateStoryFileInput) (*story.StoryFile, error) {
	priority := DefaultStoryPriority
	if input.Priority != nil {
		priority = *input.Priority
	}

	sf, err := story.New(input.AgentName, input.Context, input.PendingWork, priority)
	if err != nil {
		return nil, err
	}
	sf.Tags = story.NormalizeTags(input.Tags)
	sf.RollbackPlan = input.RollbackPlan
	if input.TTL < 0 {
		return nil, model.InvalidArgument("ttl cannot be negative")
	}
	sf.TTL = input.TTL

	if err := m.repo.Create(ctx, sf); err != nil {
		return nil, model.StorageError(err, "failed to create story file", goerr.V("story_file_id", sf.ID))
	}

	m.metrics.RecordStoryOp(ctx, "create")
	m.logger.Debug("story file %s created by %s", sf.ID, sf.CurrentAgent)
	return sf.Clone(), nil
}

// Retrieve loads a story file by ID
func (m *StoryFileManager) Retrieve(ctx context.Context, id string) (*story.StoryFile, error) {
	sf, err := m.repo.Find(ctx, id)
	if err != nil {
		return nil, model.StorageError(err, "failed to retrieve story file", goerr.V("story_file_id", id))
	}
	return sf, nil
}

// Update merges the supplied fields and bumps the version
func (m *StoryFileManager) Update(ctx context.Context, id string, update StoryFileUpdate) (*story.StoryFile, error) {
	return m.mutate(ctx, id, "update", func(sf *story.StoryFile) error {
		if update.ExpectedVersion != nil && *update.ExpectedVersion != sf.Version {
			return goerr.Wrap(model.ErrVersionConflict, "story file was modified concurrently",
				goerr.V("story_file_id", id),
				goerr.V("expected_version", *update.ExpectedVersion),
				goerr.V("actual_version", sf.Version))
		}
		return applyUpdate(sf, update)
	})
}

// Handover validates the story and, if it passes, reassigns it to targetAgent
func (m *StoryFileManager) Handover(ctx context.Context, id, targetAgent, notes string) (*story.StoryFile, error) {
	if strings.TrimSpace(targetAgent) == "" {
		return nil, model.InvalidArgument("target agent cannot be empty", goerr.V("story_file_id", id))
	}

	var previous string
	sf, err := m.mutate(ctx, id, "handover", func(sf *story.StoryFile) error {
		if sf.CurrentAgent == targetAgent {
			return model.NewValidationError(id, []string{"Target agent " + targetAgent + " already owns this story file"})
		}

		candidate := sf.Clone()
		candidate.HandoverNotes = notes
		result := domainservice.ValidateHandover(candidate)
		if !result.IsValid {
			return model.NewValidationError(id, result.Errors)
		}

		previous = sf.CurrentAgent
		sf.HandOver(targetAgent, notes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.With("story_id", id, "agent", targetAgent).Info("story file %s handed over from %s to %s", id, previous, targetAgent)
	return sf, nil
}

// TransitionPhase moves the story along the phase graph
func (m *StoryFileManager) TransitionPhase(ctx context.Context, id string, target model.Phase) (*story.StoryFile, error) {
	if !target.IsValid() {
		return nil, model.InvalidArgument("unknown phase: "+string(target), goerr.V("story_file_id", id))
	}
	return m.mutate(ctx, id, "transition", func(sf *story.StoryFile) error {
		return sf.TransitionTo(target)
	})
}

// AddDecision appends an immutable decision record
func (m *StoryFileManager) AddDecision(ctx context.Context, id string, input DecisionInput) (*story.StoryFile, error) {
	record, err := story.NewDecisionRecord(
		input.AgentName,
		input.DecisionType,
		input.Description,
		input.Rationale,
		input.Impact,
		input.Reversible,
	)
	if err != nil {
		return nil, err
	}
	record.Alternatives = append([]string(nil), input.Alternatives...)
	record.Dependencies = append([]string(nil), input.Dependencies...)

	return m.mutate(ctx, id, "decision", func(sf *story.StoryFile) error {
		sf.AppendDecision(record)
		return nil
	})
}

// Validate runs the handover validator against the stored record
func (m *StoryFileManager) Validate(ctx context.Context, id string) (domainservice.HandoverValidation, error) {
	sf, err := m.Retrieve(ctx, id)
	if err != nil {
		return domainservice.HandoverValidation{}, err
	}
	return domainservice.ValidateHandover(sf), nil
}

// List scans story files matching the filter
func (m *StoryFileManager) List(ctx context.Context, filter repository.StoryFileFilter) ([]*story.StoryFile, error) {
	files, err := m.repo.List(ctx, filter)
	if err != nil {
		return nil, model.StorageError(err, "failed to list story files")
	}
	return files, nil
}

// Cleanup removes story files older than maxAge (maxAge 0 removes everything)
// and those past their own TTL. With an archive gateway configured every
// record is archived first; if any archive fails nothing is deleted.
func (m *StoryFileManager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge < 0 {
		return 0, model.InvalidArgument("max age cannot be negative")
	}

	all, err := m.repo.List(ctx, repository.StoryFileFilter{})
	if err != nil {
		return 0, model.StorageError(err, "failed to scan story files for cleanup")
	}

	now := m.now()
	var victims []*story.StoryFile
	for _, sf := range all {
		if maxAge == 0 || sf.Age(now) > maxAge || sf.IsExpired(now) {
			victims = append(victims, sf)
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}

	if m.archive != nil {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(archiveConcurrency)
		for _, sf := range victims {
			eg.Go(func() error {
				rec, err := m.archive.Archive(egCtx, sf)
				if err != nil {
					return goerr.Wrap(err, "failed to archive story file", goerr.V("story_file_id", sf.ID))
				}
				m.logger.Debug("story file %s archived to %s", sf.ID, rec.Location)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return 0, err
		}
	}

	removed := 0
	for _, sf := range victims {
		if err := m.repo.Delete(ctx, sf.ID); err != nil {
			return removed, model.StorageError(err, "failed to delete story file", goerr.V("story_file_id", sf.ID))
		}
		removed++
	}

	m.metrics.RecordStoryOp(ctx, "cleanup")
	m.logger.Info("cleanup removed %d story files", removed)
	return removed, nil
}

// mutate runs a read-modify-write inside a transaction. fn sees a private
// copy; the version is bumped and the record persisted only if fn succeeds.
func (m *StoryFileManager) mutate(ctx context.Context, id, op string, fn func(sf *story.StoryFile) error) (*story.StoryFile, error) {
	var result *story.StoryFile
	err := m.txManager.InTransaction(ctx, func(txCtx context.Context) error {
		sf, err := m.repo.Find(txCtx, id)
		if err != nil {
			return model.StorageError(err, "failed to load story file", goerr.V("story_file_id", id))
		}

		if err := fn(sf); err != nil {
			return err
		}

		sf.Touch()
		if err := m.repo.Update(txCtx, sf); err != nil {
			return model.StorageError(err, "failed to save story file", goerr.V("story_file_id", id))
		}
		result = sf
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.RecordStoryOp(ctx, op)
	return result.Clone(), nil
}

func applyUpdate(sf *story.StoryFile, u StoryFileUpdate) error {
	if u.Status != nil {
		if !u.Status.IsValid() {
			return model.InvalidArgument("unknown status: " + string(*u.Status))
		}
		sf.Status = *u.Status
	}
	if u.Priority != nil {
		if *u.Priority < model.MinPriority || *u.Priority > model.MaxPriority {
			return model.InvalidArgument("priority must be between 0 and 10")
		}
		sf.Priority = *u.Priority
	}
	if u.TTL != nil {
		if *u.TTL < 0 {
			return model.InvalidArgument("ttl cannot be negative")
		}
		sf.TTL = *u.TTL
	}
	if u.CurrentContext != nil {
		sf.Context.Current = story.MergeMap(sf.Context.Current, u.CurrentContext)
	}
	if u.TechnicalContext != nil {
		sf.Context.Technical = u.TechnicalContext.Clone()
	}
	if u.HandoverNotes != nil {
		sf.HandoverNotes = *u.HandoverNotes
	}
	if u.RollbackPlan != nil {
		sf.RollbackPlan = *u.RollbackPlan
	}

	switch u.ListStrategy {
	case ListAppend:
		sf.CompletedWork = append(sf.CompletedWork, u.CompletedWork...)
		sf.PendingWork = append(sf.PendingWork, u.PendingWork...)
		if u.Tags != nil {
			sf.Tags = story.NormalizeTags(append(sf.Tags, u.Tags...))
		}
	default:
		if u.CompletedWork != nil {
			sf.CompletedWork = append([]string{}, u.CompletedWork...)
		}
		if u.PendingWork != nil {
			sf.PendingWork = append([]string{}, u.PendingWork...)
		}
		if u.Tags != nil {
			sf.Tags = story.NormalizeTags(u.Tags)
		}
	}
	return nil
}

// nopMetrics is used when no recorder is configured
type nopMetrics struct{}

func (nopMetrics) RecordEscalation(context.Context, bool, time.Duration) {}
func (nopMetrics) RecordCacheLookup(context.Context, bool)               {}
func (nopMetrics) RecordStoryOp(context.Context, string)                 {}
func (nopMetrics) RecordMemoryOp(context.Context, string)                {}
func (nopMetrics) RecordSessionOp(context.Context, string)               {}
