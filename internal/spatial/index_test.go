package spatial

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointBound(x, y float64) orb.Bound {
	return orb.Point{x, y}.Bound()
}

func TestIndex_Search(t *testing.T) {
	idx := Build([]orb.Bound{
		pointBound(0, 0),
		{Min: orb.Point{5, 5}, Max: orb.Point{10, 10}},
		pointBound(20, 20),
	})
	require.Equal(t, 3, idx.Len())

	assert.Equal(t, []int{0, 1}, idx.Search(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{6, 6}}))
	assert.Equal(t, []int{2}, idx.Search(pointBound(20, 20)))
	assert.Empty(t, idx.Search(pointBound(50, 50)))
}

func TestIndex_Nearest(t *testing.T) {
	var bounds []orb.Bound
	for i := 0; i < 100; i++ {
		bounds = append(bounds, pointBound(float64(i), 0))
	}
	idx := Build(bounds)

	got := idx.Nearest(pointBound(42.1, 3), 3)
	assert.Equal(t, []int{42, 43, 41}, got)

	assert.Equal(t, []int{99, 98}, idx.Nearest(pointBound(500, 0), 2))
	assert.Len(t, idx.Nearest(pointBound(0, 0), 1000), 100)
	assert.Nil(t, idx.Nearest(pointBound(0, 0), 0))
}

func TestIndex_NearestTiesByID(t *testing.T) {
	idx := Build([]orb.Bound{
		pointBound(1, 0),
		pointBound(-1, 0),
		pointBound(0, 1),
		pointBound(10, 10),
	})
	assert.Equal(t, []int{0, 1}, idx.Nearest(pointBound(0, 0), 2))
}

func TestBoxDistance(t *testing.T) {
	a := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	assert.Zero(t, BoxDistance(a, pointBound(0.5, 0.5)))
	assert.Zero(t, BoxDistance(a, pointBound(1, 1)))
	assert.InDelta(t, 5.0, BoxDistance(a, pointBound(4, 5)), 1e-12)
}

func TestIntersectMatches(t *testing.T) {
	base := []orb.Polygon{
		{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}},
	}
	candidates := []orb.Geometry{
		orb.LineString{{11, 9}, {9, 11.5}},
		orb.LineString{{5, 5}, {20, 5}},
		orb.Point{30, 30},
		orb.Point{10, 10},
	}

	assert.Equal(t, []int{1, 3}, IntersectMatches(base, candidates, nil))
	assert.Equal(t, []int{1, 3}, IntersectMatches(base, candidates, BuildFromGeometries(candidates)))
	assert.Empty(t, IntersectMatches(nil, candidates, nil))
}
