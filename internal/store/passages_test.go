package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

func openTestStore(t *testing.T, cfg PassageStoreConfig) *PassageStore {
	t.Helper()
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 3
	}
	s, err := OpenPassageStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(source, file, text string, vec ...float32) Record {
	return Record{SourceID: source, Filename: file, Text: text, Length: len([]rune(text)), Embedding: vec}
}

func TestOpenPassageStore_RejectsZeroDimensions(t *testing.T) {
	_, err := OpenPassageStore(context.Background(), PassageStoreConfig{})
	require.Error(t, err)
	assert.Equal(t, terrors.ErrCodeConfigInvalid, terrors.GetCode(err))
}

func TestPassageStore_InsertRejectsWrongShape(t *testing.T) {
	s := openTestStore(t, PassageStoreConfig{})

	_, err := s.Insert(context.Background(), []Record{
		rec("a", "a.txt", "ok", 1, 0, 0),
		rec("a", "a.txt", "bad", 1, 0),
	})

	require.Error(t, err)
	assert.True(t, terrors.IsKind(err, terrors.KindShapeMismatch))

	// nothing from the batch was stored
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPassageStore_NearestK(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, PassageStoreConfig{})

	_, err := s.Insert(ctx, []Record{
		rec("a", "a.txt", "far", 10, 0, 0),
		rec("a", "a.txt", "near", 1, 0, 0),
		rec("b", "b.txt", "tie-first", 0, 2, 0),
		rec("b", "b.txt", "tie-second", 0, 2, 0),
	})
	require.NoError(t, err)

	hits, err := s.NearestK(ctx, []float32{0, 0, 0}, 3, 0)

	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "near", hits[0].Text)
	assert.Equal(t, "tie-first", hits[1].Text)
	assert.Equal(t, "tie-second", hits[2].Text)
	assert.InDelta(t, 1.0, hits[0].Distance, 1e-6)
	assert.Equal(t, "b.txt", hits[1].Filename)
}

func TestPassageStore_NearestK_MaxDistance(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, PassageStoreConfig{})

	_, err := s.Insert(ctx, []Record{
		rec("a", "a.txt", "close", 0.5, 0, 0),
		rec("a", "a.txt", "distant", 5, 0, 0),
	})
	require.NoError(t, err)

	hits, err := s.NearestK(ctx, []float32{0, 0, 0}, 5, 1.0)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "close", hits[0].Text)
}

func TestPassageStore_NearestK_QueryShape(t *testing.T) {
	s := openTestStore(t, PassageStoreConfig{})

	_, err := s.NearestK(context.Background(), []float32{1}, 1, 0)
	assert.True(t, terrors.IsKind(err, terrors.KindShapeMismatch))
}

func TestPassageStore_DeleteSourceAndAggregate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, PassageStoreConfig{})

	_, err := s.Insert(ctx, []Record{
		rec("a", "a.txt", "hello", 1, 0, 0),
		rec("a", "a.txt", "world!", 0, 1, 0),
		rec("b", "b.txt", "other", 0, 0, 1),
	})
	require.NoError(t, err)

	lengths, err := s.AggregateLengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 11, "b": 5}, lengths)

	n, err := s.DeleteSource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// unknown source is fine
	n, err = s.DeleteSource(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)

	lengths, err = s.AggregateLengths(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"b": 5}, lengths)

	hits, err := s.NearestK(ctx, []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].SourceID)
}

func TestPassageStore_SourcesGroupsInOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, PassageStoreConfig{})

	_, err := s.Insert(ctx, []Record{
		rec("x", "x.txt", "x1", 1, 0, 0),
		rec("y", "y.txt", "y1", 1, 0, 0),
		rec("x", "x.txt", "x2", 1, 0, 0),
	})
	require.NoError(t, err)

	sources, err := s.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []StoredSource{
		{SourceID: "x", Filename: "x.txt", Passages: []string{"x1", "x2"}},
		{SourceID: "y", Filename: "y.txt", Passages: []string{"y1"}},
	}, sources)
}

func TestPassageStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passages.db")

	s, err := OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, rec("a", "a.txt", "durable", 1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopening with another dimension is refused
	_, err = OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 4})
	assert.True(t, terrors.IsKind(err, terrors.KindShapeMismatch))

	s, err = OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3})
	require.NoError(t, err)
	defer s.Close()

	sources, err := s.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, []string{"durable"}, sources[0].Passages)
}

func TestPassageStore_PinsEmbeddingModel(t *testing.T) {
	// Given: a store written by one model
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passages.db")
	s, err := OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3, Model: "nomic-embed-text"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, rec("a", "a.txt", "written by nomic", 1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening with another model of the same size
	_, err = OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3, Model: "static-3"})

	// Then: the open is refused as a shape mismatch naming both models
	require.Error(t, err)
	assert.True(t, terrors.IsKind(err, terrors.KindShapeMismatch))
	te, ok := terrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "nomic-embed-text", te.Details["stored_model"])
	assert.Equal(t, "static-3", te.Details["model"])

	// And the original model still opens it
	s, err = OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3, Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", s.Model())
	require.NoError(t, s.Close())
}

func TestPassageStore_AdoptsModelOnLegacyStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passages.db")
	s, err := OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3, Model: "nomic-embed-text"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenPassageStore(ctx, PassageStoreConfig{Path: path, Dimensions: 3, Model: "other"})
	assert.True(t, terrors.IsKind(err, terrors.KindShapeMismatch))
}

func TestPassageStore_ClosedIsUnavailable(t *testing.T) {
	s, err := OpenPassageStore(context.Background(), PassageStoreConfig{Dimensions: 3})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Ping(context.Background())
	assert.True(t, terrors.IsKind(err, terrors.KindIndexUnavailable))

	_, err = s.Upsert(context.Background(), rec("a", "a.txt", "x", 1, 0, 0))
	assert.True(t, terrors.IsKind(err, terrors.KindIndexUnavailable))
}

func TestPassageStore_ANN(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, PassageStoreConfig{ANN: true})

	_, err := s.Insert(ctx, []Record{
		rec("a", "a.txt", "origin", 0, 0, 0),
		rec("a", "a.txt", "x", 1, 0, 0),
		rec("b", "b.txt", "y", 0, 1, 0),
		rec("b", "b.txt", "far", 9, 9, 9),
	})
	require.NoError(t, err)

	hits, err := s.NearestK(ctx, []float32{0.1, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "origin", hits[0].Text)

	_, err = s.DeleteSource(ctx, "a")
	require.NoError(t, err)

	hits, err = s.NearestK(ctx, []float32{0.1, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "b", h.SourceID)
	}
}
