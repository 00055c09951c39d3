package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation is a file system operation.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

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

// FileEvent is one change to a file under the watched root.
type FileEvent struct {
	// Path is relative to the watched root, slash separated.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long a path must be quiet before its coalesced
	// event is emitted. Default: 500ms
	DebounceWindow time.Duration

	// EventBufferSize is the capacity of the batch channel. Default: 64
	EventBufferSize int

	// Extensions limits events to these file extensions, lower case with
	// the leading dot. Empty accepts every file.
	Extensions []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		EventBufferSize: 64,
		Extensions:      []string{".txt", ".md", ".pdf", ".png", ".jpg", ".jpeg", ".mp3", ".wav"},
	}
}

// WithDefaults fills zero values from DefaultOptions. Extensions are kept
// as given.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}

// accepts reports whether relPath names a file worth ingesting: not
// hidden, not an editor temp file, and with an allowed extension.
func (o Options) accepts(relPath string) bool {
	if relPath == "" || relPath == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	base := filepath.Base(relPath)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range o.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
