package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWAccelerator_AddSearchDelete(t *testing.T) {
	a := NewHNSWAccelerator(HNSWConfig{Dimensions: 2})

	require.NoError(t, a.Add(1, []float32{0, 0}))
	require.NoError(t, a.Add(2, []float32{1, 0}))
	require.NoError(t, a.Add(3, []float32{5, 5}))
	assert.Equal(t, 3, a.Len())

	assert.Equal(t, []int64{1}, a.Search([]float32{0.1, 0}, 1))

	a.Delete(1, 99)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []int64{2}, a.Search([]float32{0.1, 0}, 1))
}

func TestHNSWAccelerator_DimensionCheck(t *testing.T) {
	a := NewHNSWAccelerator(HNSWConfig{Dimensions: 2})

	err := a.Add(1, []float32{1, 2, 3})

	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Got)
}

func TestHNSWAccelerator_EmptySearch(t *testing.T) {
	a := NewHNSWAccelerator(HNSWConfig{Dimensions: 2})
	assert.Empty(t, a.Search([]float32{0, 0}, 3))
}
