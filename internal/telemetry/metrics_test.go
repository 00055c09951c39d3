package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"what", "photosynthesis"}, ExtractTerms("What is Photosynthesis?"))
	assert.Equal(t, []string{"1789"}, ExtractTerms("in 1789"))
	assert.Empty(t, ExtractTerms("  a an  "))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: metrics with room for two zero-result queries
	m := NewQueryMetrics(Config{ZeroResultsCapacity: 2})

	// When: recording a mix of searches
	m.Record(QueryEvent{Query: "cell membrane", Passages: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "Cell  Membrane", Passages: 3, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "quantum gravity", Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "string theory", Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "dark matter", Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "membrane potential", Failed: true, Latency: time.Second})

	// Then: the snapshot reflects them
	s := m.Snapshot(2)
	assert.EqualValues(t, 6, s.TotalQueries)
	assert.EqualValues(t, 1, s.FailedQueries)
	assert.EqualValues(t, 3, s.ZeroResultCount)
	assert.EqualValues(t, 1, s.ExactRepeatCount, "case and spacing are normalized")
	assert.Equal(t, []string{"string theory", "dark matter"}, s.ZeroResultQueries)
	assert.EqualValues(t, 4, s.LatencyDistribution[BucketP10])
	assert.EqualValues(t, 1, s.LatencyDistribution[BucketP50])
	assert.EqualValues(t, 1, s.LatencyDistribution[BucketP1000])

	require.Len(t, s.TopTerms, 2)
	assert.Equal(t, TermCount{Term: "membrane", Count: 3}, s.TopTerms[0])
	assert.Equal(t, TermCount{Term: "cell", Count: 2}, s.TopTerms[1])

	assert.InDelta(t, 0.6, s.ZeroResultRate(), 1e-9)
}

func TestQueryMetrics_SnapshotIsACopy(t *testing.T) {
	m := NewQueryMetrics(DefaultConfig())
	m.Record(QueryEvent{Query: "osmosis", Passages: 1})

	s := m.Snapshot(0)
	s.LatencyDistribution[BucketP10] = 99

	assert.EqualValues(t, 1, m.Snapshot(0).LatencyDistribution[BucketP10])
}

func TestQueryMetrics_Reset(t *testing.T) {
	m := NewQueryMetrics(DefaultConfig())
	m.Record(QueryEvent{Query: "osmosis"})
	before := m.Snapshot(0).Since

	time.Sleep(time.Millisecond)
	m.Reset()

	s := m.Snapshot(0)
	assert.Zero(t, s.TotalQueries)
	assert.Empty(t, s.TopTerms)
	assert.Empty(t, s.ZeroResultQueries)
	assert.True(t, s.Since.After(before))
	assert.Zero(t, (&Snapshot{}).ZeroResultRate())
}

func TestQueryMetrics_Concurrent(t *testing.T) {
	m := NewQueryMetrics(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Record(QueryEvent{Query: "enzyme kinetics", Passages: 1})
				_ = m.Snapshot(5)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 400, m.Snapshot(0).TotalQueries)
}
