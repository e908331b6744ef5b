package output

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// ArchiveGateway keeps a copy of story files removed by cleanup.
// Supports local filesystem and object storage (S3).
type ArchiveGateway interface {
	// Archive stores the story file and returns where it went
	Archive(ctx context.Context, sf *story.StoryFile) (*ArchiveRecord, error)

	// Restore loads a previously archived story file
	Restore(ctx context.Context, storyFileID string) (*story.StoryFile, error)

	// List returns the IDs of archived story files
	List(ctx context.Context) ([]string, error)
}

// ArchiveRecord describes one archived story file
type ArchiveRecord struct {
	StoryFileID string    // Archived story file
	Location    string    // Storage path (e.g., s3://bucket/key)
	Size        int64     // Size in bytes
	ArchivedAt  time.Time // Archive timestamp
}
