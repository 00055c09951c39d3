package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/registry"
)

// Engine is what the ingestor needs from the knowledge base.
type Engine interface {
	Add(ctx context.Context, content []byte, filename, mediaType string) (string, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]registry.SourceInfo, error)
}

// Ingestor applies file events to the engine. Sources are named by their
// slash-separated path relative to the root, which is how a restart finds
// files ingested earlier.
type Ingestor struct {
	engine Engine
	root   string
	opts   Options

	mu     sync.Mutex
	byPath map[string]string // relative path -> source id
}

// NewIngestor creates an ingestor for files under root.
func NewIngestor(engine Engine, root string, opts Options) *Ingestor {
	return &Ingestor{
		engine: engine,
		root:   root,
		opts:   opts.WithDefaults(),
		byPath: make(map[string]string),
	}
}

// Sync catches up with files already in root: a file whose path is
// already a source filename is adopted, any other file is added, in path
// order. Sources are never removed here.
func (i *Ingestor) Sync(ctx context.Context) error {
	sources, err := i.engine.List(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	known := make(map[string]string, len(sources))
	for _, s := range sources {
		known[s.Filename] = s.SourceID
	}

	var present []string
	err = filepath.WalkDir(i.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(i.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !i.opts.accepts(rel) {
			return nil
		}
		present = append(present, rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", i.root, err)
	}

	var errs []error
	for _, rel := range present {
		if id, ok := known[rel]; ok {
			i.track(rel, id)
			continue
		}
		if err := i.add(ctx, rel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run applies batches until ctx is done or events is closed.
func (i *Ingestor) Run(ctx context.Context, events <-chan []FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			for _, ev := range batch {
				if err := i.Apply(ctx, ev); err != nil {
					attrs := append([]any{"path", ev.Path, "op", ev.Operation.String()}, terrors.LogAttrs(err)...)
					slog.Warn("ingest_failed", attrs...)
				}
			}
		}
	}
}

// Apply handles one event.
func (i *Ingestor) Apply(ctx context.Context, ev FileEvent) error {
	switch ev.Operation {
	case OpCreate:
		if _, ok := i.lookup(ev.Path); ok {
			return i.replace(ctx, ev.Path)
		}
		return i.add(ctx, ev.Path)
	case OpModify:
		return i.replace(ctx, ev.Path)
	case OpDelete, OpRename:
		return i.remove(ctx, ev.Path)
	default:
		return nil
	}
}

// SourceID returns the id tracked for rel.
func (i *Ingestor) SourceID(rel string) (string, bool) {
	return i.lookup(rel)
}

func (i *Ingestor) add(ctx context.Context, rel string) error {
	_, err := i.ingest(ctx, rel)
	return err
}

// ingest reads rel and adds it as a new source. A file that vanished
// before it could be read reports ok=false and no error.
func (i *Ingestor) ingest(ctx context.Context, rel string) (ok bool, err error) {
	content, err := os.ReadFile(filepath.Join(i.root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		// gone before we got to it
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rel, err)
	}

	id, err := i.engine.Add(ctx, content, rel, "")
	if err != nil {
		return false, err
	}
	i.track(rel, id)
	slog.Info("inbox_file_added", slog.String("path", rel), slog.String("source_id", id))
	return true, nil
}

// replace adds the new content before removing the old source, so a
// failed add leaves the previous version searchable.
func (i *Ingestor) replace(ctx context.Context, rel string) error {
	oldID, tracked := i.lookup(rel)

	added, err := i.ingest(ctx, rel)
	if err != nil {
		return err
	}
	if !tracked {
		return nil
	}
	if !added {
		// the file is gone, so is its source
		return i.remove(ctx, rel)
	}

	if err := i.engine.Remove(ctx, oldID); err != nil {
		return fmt.Errorf("remove previous version of %s: %w", rel, err)
	}
	slog.Info("inbox_file_replaced",
		slog.String("path", rel),
		slog.String("previous_source_id", oldID))
	return nil
}

func (i *Ingestor) remove(ctx context.Context, rel string) error {
	id, ok := i.lookup(rel)
	if !ok {
		return nil
	}
	if err := i.engine.Remove(ctx, id); err != nil {
		return err
	}
	i.mu.Lock()
	delete(i.byPath, rel)
	i.mu.Unlock()
	slog.Info("inbox_file_removed", slog.String("path", rel), slog.String("source_id", id))
	return nil
}

func (i *Ingestor) track(rel, id string) {
	i.mu.Lock()
	i.byPath[rel] = id
	i.mu.Unlock()
}

func (i *Ingestor) lookup(rel string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.byPath[rel]
	return id, ok
}
