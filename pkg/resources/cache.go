// Package resources caches template and static-asset file contents read
// from disk, so repeated requests for the same file never re-read it.
package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressboard/pressboard/pkg/config"
)

// Cache is an on-demand, fixed-capacity file content cache keyed by
// filename. It is fatal (by design, mirroring the reference
// implementation) to ask for more distinct filenames than its capacity,
// or for a filename that does not exist on disk: both are considered
// configuration errors caught at startup, not request-time failures to
// recover from.
type Cache struct {
	mu      sync.Mutex
	baseDir string
	entries map[string][]byte
	order   []string
}

// New returns a Cache that resolves filenames relative to baseDir.
func New(baseDir string) *Cache {
	return &Cache{
		baseDir: baseDir,
		entries: make(map[string][]byte, config.ResourceCacheCapacity),
	}
}

// Get returns the contents of filename, reading it from disk and
// caching it the first time it's requested. It panics if filename
// exceeds the maximum tracked filename length, if the cache is full and
// filename is not already cached, or if the file cannot be read — these
// are all unrecoverable at request time.
func (c *Cache) Get(filename string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if buf, ok := c.entries[filename]; ok {
		return buf
	}

	if len(filename)+1 > config.ResourceNameMaxLen {
		panic(fmt.Sprintf("resources: filename too long: %q", filename))
	}
	if len(c.order) == config.ResourceCacheCapacity {
		panic("resources: cache capacity exceeded")
	}

	buf, err := os.ReadFile(filepath.Join(c.baseDir, filename))
	if err != nil {
		panic(fmt.Sprintf("resources: failed to load %q: %v", filename, err))
	}

	c.entries[filename] = buf
	c.order = append(c.order, filename)
	return buf
}

// Len reports how many distinct files are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
