package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation is a file system change kind.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a single change below the watched root.
type FileEvent struct {
	// Path is relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Signal receives the scanning state. *async.Flag implements it.
type Signal interface {
	Set(v bool) bool
}

// Options configures the watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted.
	// Default: 500ms
	Debounce time.Duration

	// Buffer is the number of batches that may wait for the refresher.
	// Default: 64
	Buffer int

	// Exclude lists glob patterns matched against each path element.
	Exclude []string

	// Signal, if set, is raised while changes are pending or being refreshed.
	Signal Signal
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce: 500 * time.Millisecond,
		Buffer:   64,
		Exclude:  []string{".git", ".indexmode", "node_modules"},
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.Buffer <= 0 {
		o.Buffer = defaults.Buffer
	}
	if o.Exclude == nil {
		o.Exclude = defaults.Exclude
	}
	return o
}

// excluded reports whether any element of rel matches an exclude pattern.
func excluded(patterns []string, rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	for _, elem := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, elem); ok {
				return true
			}
		}
	}
	return false
}
