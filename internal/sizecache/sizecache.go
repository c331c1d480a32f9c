// Package sizecache orders scan candidates smallest-first using a
// per-cycle cache of file sizes. The cache is a scheduling heuristic
// only: it is rebuilt every cycle and never trusted stale.
package sizecache

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"courier/internal/logging"
	"courier/internal/persist"
)

// Cache maps file paths to their last observed byte size.
type Cache struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	sizes  map[string]int64
}

// Open loads the persisted cache from path. Missing or corrupt files
// degrade to an empty cache.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	cache := &Cache{path: path, logger: logger, sizes: make(map[string]int64)}
	if err := persist.LoadJSON(path, &cache.sizes, logger); err != nil {
		return nil, err
	}
	if cache.sizes == nil {
		cache.sizes = make(map[string]int64)
	}
	return cache, nil
}

// Rebuild replaces the cache with the current sizes of every regular
// file under the given folders and persists the result. Unreadable
// entries are skipped; enumeration continues.
func (c *Cache) Rebuild(folders []string) error {
	sizes := make(map[string]int64)
	for _, folder := range folders {
		_ = filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if entry.IsDir() {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return nil
			}
			sizes[path] = info.Size()
			return nil
		})
	}

	c.mu.Lock()
	c.sizes = sizes
	c.mu.Unlock()
	return persist.SaveJSON(c.path, sizes)
}

// Ordered returns all cached paths sorted ascending by size, then by
// path for a stable order among equal sizes.
func (c *Cache) Ordered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.sizes))
	for path := range c.sizes {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		si, sj := c.sizes[paths[i]], c.sizes[paths[j]]
		if si != sj {
			return si < sj
		}
		return paths[i] < paths[j]
	})
	return paths
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sizes)
}

// Reset empties the cache and persists the empty state.
func (c *Cache) Reset() error {
	c.mu.Lock()
	c.sizes = make(map[string]int64)
	c.mu.Unlock()
	return persist.SaveJSON(c.path, map[string]int64{})
}
