// Package telemetry keeps local statistics about search queries: volume,
// latency, failures, zero-result queries and the most frequent terms.
// Nothing leaves the process.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is one bar of the latency histogram.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one finished search.
type QueryEvent struct {
	Query    string
	Passages int
	Latency  time.Duration
	Failed   bool
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	FailedQueries       int64                   `json:"failed_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultRate is the share of successful queries that returned nothing.
func (s *Snapshot) ZeroResultRate() float64 {
	ok := s.TotalQueries - s.FailedQueries
	if ok <= 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(ok)
}

// Config bounds the memory the metrics use.
type Config struct {
	TopTermsCapacity      int // distinct terms tracked (default: 100)
	ZeroResultsCapacity   int // zero-result queries kept (default: 20)
	RecentQueriesCapacity int // query hashes kept for repeat detection (default: 500)
}

// DefaultConfig returns the default capacities.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   20,
		RecentQueriesCapacity: 500,
	}
}

// QueryMetrics aggregates QueryEvents. It is safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	terms   *lru.Cache[string, int64]
	recent  *lru.Cache[string, struct{}]
	zero    *ring[string]
	buckets map[LatencyBucket]int64

	total, failed, zeroCount, repeats int64
	since                             time.Time
}

// NewQueryMetrics creates empty metrics. Non-positive capacities take
// their defaults.
func NewQueryMetrics(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	// lru.New only fails for a non-positive size.
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &QueryMetrics{
		terms:   terms,
		recent:  recent,
		zero:    newRing[string](cfg.ZeroResultsCapacity),
		buckets: make(map[LatencyBucket]int64),
		since:   time.Now(),
	}
}

// Record adds one search to the metrics.
func (m *QueryMetrics) Record(ev QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.buckets[LatencyToBucket(ev.Latency)]++

	hash := hashQuery(ev.Query)
	if m.recent.Contains(hash) {
		m.repeats++
	}
	m.recent.Add(hash, struct{}{})

	for _, term := range ExtractTerms(ev.Query) {
		n, _ := m.terms.Get(term)
		m.terms.Add(term, n+1)
	}

	switch {
	case ev.Failed:
		m.failed++
	case ev.Passages == 0:
		m.zeroCount++
		m.zero.add(strings.TrimSpace(ev.Query))
	}
}

// Snapshot copies the metrics, with at most topN terms ordered by count.
func (m *QueryMetrics) Snapshot(topN int) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	buckets := make(map[LatencyBucket]int64, len(m.buckets))
	for b, n := range m.buckets {
		buckets[b] = n
	}

	terms := make([]TermCount, 0, m.terms.Len())
	for _, t := range m.terms.Keys() {
		if n, ok := m.terms.Peek(t); ok {
			terms = append(terms, TermCount{Term: t, Count: n})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if topN > 0 && len(terms) > topN {
		terms = terms[:topN]
	}

	return Snapshot{
		TotalQueries:        m.total,
		FailedQueries:       m.failed,
		ZeroResultCount:     m.zeroCount,
		ExactRepeatCount:    m.repeats,
		LatencyDistribution: buckets,
		TopTerms:            terms,
		ZeroResultQueries:   m.zero.items(),
		Since:               m.since,
	}
}

// Reset clears everything and restarts the Since clock.
func (m *QueryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.terms.Purge()
	m.recent.Purge()
	m.zero.clear()
	m.buckets = make(map[LatencyBucket]int64)
	m.total, m.failed, m.zeroCount, m.repeats = 0, 0, 0, 0
	m.since = time.Now()
}

// ExtractTerms lower-cases query and returns its words of three or more
// letters, with surrounding punctuation stripped.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(query), " "))))
	return hex.EncodeToString(sum[:16])
}

// ring keeps the last cap items, oldest first. Callers hold the lock.
type ring[T any] struct {
	buf  []T
	head int
	size int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) add(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring[T]) items() []T {
	out := make([]T, 0, r.size)
	start := (r.head - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *ring[T]) clear() {
	r.head, r.size = 0, 0
}
