package storage

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// LocalArchiveGateway writes archived story files under a directory.
// Layout: <dir>/<storyFileID>.yaml
type LocalArchiveGateway struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewLocalArchiveGateway creates the archive directory if needed
func NewLocalArchiveGateway(fsys afero.Fs, dir string) (*LocalArchiveGateway, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create archive directory", goerr.V("dir", dir))
	}
	return &LocalArchiveGateway{
		fs:  fsys,
		dir: dir,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Archive writes the story file atomically
func (g *LocalArchiveGateway) Archive(ctx context.Context, sf *story.StoryFile) (*output.ArchiveRecord, error) {
	name, err := archiveName(sf.ID)
	if err != nil {
		return nil, err
	}
	archivedAt := g.now()
	data, err := encodeArchive(sf, archivedAt)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(g.dir, name)
	if err := writeFileAtomic(g.fs, path, data); err != nil {
		return nil, err
	}

	return &output.ArchiveRecord{
		StoryFileID: sf.ID,
		Location:    path,
		Size:        int64(len(data)),
		ArchivedAt:  archivedAt,
	}, nil
}

// Restore reads an archived story file back
func (g *LocalArchiveGateway) Restore(ctx context.Context, storyFileID string) (*story.StoryFile, error) {
	name, err := archiveName(storyFileID)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(g.fs, filepath.Join(g.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NotFound("archived story file", storyFileID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read archive", goerr.V("story_file_id", storyFileID))
	}
	return decodeArchive(data, storyFileID)
}

// List returns archived IDs in lexical order
func (g *LocalArchiveGateway) List(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(g.fs, g.dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read archive directory", goerr.V("dir", g.dir))
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := archiveID(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// writeFileAtomic writes data to a temp file in the same directory, syncs it
// and renames it over path, so readers never see a partial document
func writeFileAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create directory", goerr.V("dir", dir))
	}

	tmpFile, err := afero.TempFile(fsys, dir, ".tmp-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp file", goerr.V("dir", dir))
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = fsys.Remove(tmpPath) }()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return goerr.Wrap(err, "failed to write temp file", goerr.V("path", tmpPath))
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return goerr.Wrap(err, "failed to sync temp file", goerr.V("path", tmpPath))
	}
	if err := tmpFile.Close(); err != nil {
		return goerr.Wrap(err, "failed to close temp file", goerr.V("path", tmpPath))
	}

	if err := fsys.Rename(tmpPath, path); err != nil {
		return goerr.Wrap(err, "failed to rename temp file", goerr.V("path", path))
	}
	return nil
}

var _ output.ArchiveGateway = (*LocalArchiveGateway)(nil)
