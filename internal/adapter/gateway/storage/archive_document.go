// Package storage archives story files removed by cleanup.
// Every backend stores the same YAML document, one object per story file.
package storage

import (
	"path"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

const archiveExt = ".yaml"

// archiveDocument is the on-disk/object layout of an archived story file
type archiveDocument struct {
	ArchivedAt time.Time        `yaml:"archivedAt"`
	StoryFile  *story.StoryFile `yaml:"storyFile"`
}

func encodeArchive(sf *story.StoryFile, archivedAt time.Time) ([]byte, error) {
	data, err := yaml.Marshal(archiveDocument{ArchivedAt: archivedAt, StoryFile: sf})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode archive document", goerr.V("story_file_id", sf.ID))
	}
	return data, nil
}

func decodeArchive(data []byte, id string) (*story.StoryFile, error) {
	var doc archiveDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode archive document", goerr.V("story_file_id", id))
	}
	if doc.StoryFile == nil || doc.StoryFile.ID != id {
		return nil, goerr.New("archive document does not match its key", goerr.V("story_file_id", id))
	}
	return doc.StoryFile, nil
}

// archiveName maps a story file ID onto a single path segment
func archiveName(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", model.InvalidArgument("invalid story file id for archive", goerr.V("story_file_id", id))
	}
	return id + archiveExt, nil
}

// archiveID reverses archiveName; ok is false for foreign objects
func archiveID(name string) (string, bool) {
	base := path.Base(name)
	if !strings.HasSuffix(base, archiveExt) || strings.HasPrefix(base, ".") {
		return "", false
	}
	return strings.TrimSuffix(base, archiveExt), true
}
