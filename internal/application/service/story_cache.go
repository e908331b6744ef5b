package service

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/story"
)

// DefaultStoryCacheSize bounds the communication manager's read cache
const DefaultStoryCacheSize = 256

// storyCache is a size-bounded story file cache.
// Reads use Peek so a lookup never refreshes an entry; eviction is oldest write first.
// Entries only move forward in version, so a slow writer cannot replace a newer record.
type storyCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *story.StoryFile]
	hits    atomic.Int64
	misses  atomic.Int64
}

func newStoryCache(size int) (*storyCache, error) {
	if size <= 0 {
		size = DefaultStoryCacheSize
	}
	entries, err := lru.New[string, *story.StoryFile](size)
	if err != nil {
		return nil, err
	}
	return &storyCache{entries: entries}, nil
}

// get returns a copy of the cached story file and counts the hit or miss
func (c *storyCache) get(id string) (*story.StoryFile, bool) {
	sf, ok := c.entries.Peek(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return sf.Clone(), true
}

// put stores sf unless the cache already holds the same or a later version
func (c *storyCache) put(sf *story.StoryFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries.Peek(sf.ID); ok && cur.Version >= sf.Version {
		return
	}
	c.entries.Add(sf.ID, sf.Clone())
}

func (c *storyCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(id)
}

func (c *storyCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

func (c *storyCache) len() int {
	return c.entries.Len()
}

// hitRatio is hits / lookups, 0 before the first lookup
func (c *storyCache) hitRatio() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
