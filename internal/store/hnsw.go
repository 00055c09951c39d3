package store

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig configures the ANN accelerator.
type HNSWConfig struct {
	Dimensions int
	M          int // default 16
	EfSearch   int // default 20
}

// HNSWAccelerator is an in-memory HNSW graph over passage record ids.
// It only proposes candidates; PassageStore re-scores them exactly.
// Deleted ids are dropped lazily from results rather than removed from the graph.
type HNSWAccelerator struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int64]
	dims    int
	live    map[int64]struct{}
	deleted int
}

// NewHNSWAccelerator creates an empty graph using Euclidean distance.
func NewHNSWAccelerator(cfg HNSWConfig) *HNSWAccelerator {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	g := hnsw.NewGraph[int64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25

	return &HNSWAccelerator{
		graph: g,
		dims:  cfg.Dimensions,
		live:  make(map[int64]struct{}),
	}
}

// Add inserts one vector under id.
func (a *HNSWAccelerator) Add(id int64, vec []float32) error {
	if len(vec) != a.dims {
		return ErrDimensionMismatch{Expected: a.dims, Got: len(vec)}
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.graph.Add(hnsw.MakeNode(id, cp))
	a.live[id] = struct{}{}
	return nil
}

// Delete marks ids as gone.
func (a *HNSWAccelerator) Delete(ids ...int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if _, ok := a.live[id]; ok {
			delete(a.live, id)
			a.deleted++
		}
	}
}

// Len returns the number of live vectors.
func (a *HNSWAccelerator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.live)
}

// Search returns up to k live ids near query. The graph is asked for
// extra candidates to make up for lazily deleted nodes.
func (a *HNSWAccelerator) Search(query []float32, k int) []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.live) == 0 || k <= 0 {
		return nil
	}
	want := k + a.deleted
	if want > a.graph.Len() {
		want = a.graph.Len()
	}

	nodes := a.graph.Search(query, want)
	ids := make([]int64, 0, k)
	for _, n := range nodes {
		if _, ok := a.live[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		if len(ids) == k {
			break
		}
	}
	return ids
}
