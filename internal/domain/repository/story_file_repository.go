package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// StoryFileRepository is the persistent store contract for story files.
// Implementations return model.ErrNotFound for missing ids and wrap every
// other failure with model.ErrStorage.
type StoryFileRepository interface {
	// Create inserts a new story file
	Create(ctx context.Context, sf *story.StoryFile) error

	// Find retrieves a story file by ID
	Find(ctx context.Context, id string) (*story.StoryFile, error)

	// Update overwrites the stored record with sf
	Update(ctx context.Context, sf *story.StoryFile) error

	// List scans story files matching the filter
	List(ctx context.Context, filter StoryFileFilter) ([]*story.StoryFile, error)

	// Delete removes a story file
	Delete(ctx context.Context, id string) error
}

// StoryFileFilter defines criteria for scanning story files
type StoryFileFilter struct {
	CurrentAgent  string
	Statuses      []model.Status
	Phases        []model.Phase
	CreatedBefore *time.Time
	Limit         int
}
