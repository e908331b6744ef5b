package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// MemoryArchiveGateway keeps archived documents in process memory.
// It stores the encoded document, so a restore goes through the same codec
// as the durable backends.
type MemoryArchiveGateway struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryArchiveGateway creates an empty in-memory archive
func NewMemoryArchiveGateway() *MemoryArchiveGateway {
	return &MemoryArchiveGateway{docs: make(map[string][]byte)}
}

func (g *MemoryArchiveGateway) Archive(ctx context.Context, sf *story.StoryFile) (*output.ArchiveRecord, error) {
	name, err := archiveName(sf.ID)
	if err != nil {
		return nil, err
	}
	archivedAt := time.Now().UTC()
	data, err := encodeArchive(sf, archivedAt)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.docs[sf.ID] = data

	return &output.ArchiveRecord{
		StoryFileID: sf.ID,
		Location:    "memory://" + name,
		Size:        int64(len(data)),
		ArchivedAt:  archivedAt,
	}, nil
}

func (g *MemoryArchiveGateway) Restore(ctx context.Context, storyFileID string) (*story.StoryFile, error) {
	g.mu.RLock()
	data, ok := g.docs[storyFileID]
	g.mu.RUnlock()
	if !ok {
		return nil, model.NotFound("archived story file", storyFileID)
	}
	return decodeArchive(data, storyFileID)
}

func (g *MemoryArchiveGateway) List(ctx context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.docs))
	for id := range g.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ output.ArchiveGateway = (*MemoryArchiveGateway)(nil)
