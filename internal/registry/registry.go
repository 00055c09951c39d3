// Package registry tracks which sources exist and which passages they own.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source is one ingested document, image, or audio clip.
type Source struct {
	ID         string
	Filename   string
	Passages   []string
	AttachedAt time.Time
}

// SourceInfo is the listing view of a source.
type SourceInfo struct {
	SourceID    string `json:"source_id"`
	Filename    string `json:"filename"`
	TotalLength int    `json:"total_length"`
}

// LengthAggregator reports durable per-source passage lengths.
type LengthAggregator interface {
	AggregateLengths(ctx context.Context) (map[string]int, error)
}

// Registry maps source ids to filenames and passages.
//
// A source is pending between Register and Attach: it has an id but owns
// no passages, and it is invisible to Corpus and Resolve. Registry is
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Source
	order   []string // attach order, drives corpus order
	pending map[string]string
	lengths LengthAggregator
	newID   func() string
}

// New creates an empty registry. lengths supplies List's totals.
func New(lengths LengthAggregator) *Registry {
	return &Registry{
		sources: make(map[string]*Source),
		pending: make(map[string]string),
		lengths: lengths,
		newID:   func() string { return uuid.NewString() },
	}
}

// Register mints a fresh random id for filename. No passages are bound yet.
func (r *Registry) Register(filename string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for r.exists(id) {
		id = r.newID()
	}
	r.pending[id] = filename
	return id
}

// must hold r.mu
func (r *Registry) exists(id string) bool {
	_, live := r.sources[id]
	_, pending := r.pending[id]
	return live || pending
}

// Attach binds passages to a registered id, making the source live.
// It reports false if id was never registered or was already forgotten.
func (r *Registry) Attach(id string, passages []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	filename, ok := r.pending[id]
	if !ok {
		return false
	}
	delete(r.pending, id)

	r.sources[id] = &Source{
		ID:         id,
		Filename:   filename,
		Passages:   append([]string(nil), passages...),
		AttachedAt: time.Now(),
	}
	r.order = append(r.order, id)
	return true
}

// Restore inserts an already-persisted source, used during recovery.
func (r *Registry) Restore(id, filename string, passages []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[id]; !ok {
		r.order = append(r.order, id)
	}
	delete(r.pending, id)
	r.sources[id] = &Source{
		ID:         id,
		Filename:   filename,
		Passages:   append([]string(nil), passages...),
		AttachedAt: time.Now(),
	}
}

// Forget drops id and its passages. It reports whether anything was removed.
func (r *Registry) Forget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		delete(r.pending, id)
		return true
	}
	if _, ok := r.sources[id]; !ok {
		return false
	}
	delete(r.sources, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of a live source.
func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok {
		return Source{}, false
	}
	cp := *s
	cp.Passages = append([]string(nil), s.Passages...)
	return cp, true
}

// Has reports whether id is live.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[id]
	return ok
}

// Len returns the number of live sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// PassageCount returns the number of passages across live sources.
func (r *Registry) PassageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sources {
		n += len(s.Passages)
	}
	return n
}

// Corpus concatenates every live source's passages in attach order.
func (r *Registry) Corpus() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var corpus []string
	for _, id := range r.order {
		corpus = append(corpus, r.sources[id].Passages...)
	}
	return corpus
}

// Resolve finds the source owning passage by exact text match. A passage
// shared by several sources resolves to the earliest attached one.
func (r *Registry) Resolve(passage string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		s := r.sources[id]
		for _, p := range s.Passages {
			if p == passage {
				return Source{ID: s.ID, Filename: s.Filename}, true
			}
		}
	}
	return Source{}, false
}

// List returns every live source sorted by filename then id. Totals come
// from the durable store so they survive restarts; a live source the
// store knows nothing about is reported with its in-memory total.
func (r *Registry) List(ctx context.Context) ([]SourceInfo, error) {
	var lengths map[string]int
	if r.lengths != nil {
		var err error
		if lengths, err = r.lengths.AggregateLengths(ctx); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	out := make([]SourceInfo, 0, len(r.sources))
	for _, s := range r.sources {
		total, ok := lengths[s.ID]
		if !ok {
			for _, p := range s.Passages {
				total += len([]rune(p))
			}
		}
		out = append(out, SourceInfo{SourceID: s.ID, Filename: s.Filename, TotalLength: total})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Filename != out[j].Filename {
			return out[i].Filename < out[j].Filename
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out, nil
}
