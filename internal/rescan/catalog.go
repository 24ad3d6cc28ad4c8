// Package rescan provides the mergeable rescan task that keeps a file
// catalog in sync with the project tree.
package rescan

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is the catalogued state of one file.
type Entry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Catalog is an in-memory path -> Entry map.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Put records e.
func (c *Catalog) Put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Path] = e
}

// Remove forgets path.
func (c *Catalog) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// RemoveTree forgets dir and every path below it. It returns the number of
// entries removed.
func (c *Catalog) RemoveTree(dir string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := dir + string(filepath.Separator)
	removed := 0
	for p := range c.entries {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(c.entries, p)
			removed++
		}
	}
	return removed
}

// Get returns the entry for path.
func (c *Catalog) Get(path string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// Len returns the number of catalogued files.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Paths returns every catalogued path, sorted.
func (c *Catalog) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
