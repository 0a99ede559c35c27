// Package spatial wraps an R-tree over geometry bounding boxes and the
// intersection filter built on top of it.
package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// Index is a static R-tree over bounding boxes. Item ids are the positions
// of the boxes passed to Build.
type Index struct {
	tr     rtree.RTreeG[int]
	bounds []orb.Bound
	extent orb.Bound
}

// Build bulk-loads an index over bounds.
func Build(bounds []orb.Bound) *Index {
	idx := &Index{bounds: make([]orb.Bound, len(bounds))}
	copy(idx.bounds, bounds)
	for i, b := range bounds {
		idx.tr.Insert([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]}, i)
		if i == 0 {
			idx.extent = b
		} else {
			idx.extent = idx.extent.Union(b)
		}
	}
	return idx
}

// BuildFromGeometries indexes the bounding box of every geometry. Nil
// geometries get an empty box at the origin.
func BuildFromGeometries(geoms []orb.Geometry) *Index {
	bounds := make([]orb.Bound, len(geoms))
	for i, g := range geoms {
		if g != nil {
			bounds[i] = g.Bound()
		}
	}
	return Build(bounds)
}

// Len returns the number of indexed items.
func (idx *Index) Len() int {
	return len(idx.bounds)
}

// Bound returns the box of item id.
func (idx *Index) Bound(id int) orb.Bound {
	return idx.bounds[id]
}

// Search returns the ids of items whose boxes intersect b, ascending.
func (idx *Index) Search(b orb.Bound) []int {
	var ids []int
	idx.tr.Search([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]},
		func(_, _ [2]float64, id int) bool {
			ids = append(ids, id)
			return true
		})
	sort.Ints(ids)
	return ids
}

// Nearest returns up to k item ids ordered by box distance to b. Equal
// distances are ordered by ascending id.
func (idx *Index) Nearest(b orb.Bound, k int) []int {
	n := idx.Len()
	if k <= 0 || n == 0 {
		return nil
	}
	if k >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return idx.rank(b, all, n)
	}

	radius := math.Hypot(idx.extent.Max[0]-idx.extent.Min[0], idx.extent.Max[1]-idx.extent.Min[1]) / math.Sqrt(float64(n))
	if radius <= 0 {
		radius = 1
	}
	for {
		ids := idx.Search(b.Pad(radius))
		if len(ids) >= k {
			ranked := idx.rank(b, ids, len(ids))
			// every item within the k-th distance has been seen
			kth := BoxDistance(b, idx.bounds[ranked[k-1]])
			if kth <= radius {
				return ranked[:k]
			}
			radius = kth
			continue
		}
		radius *= 2
	}
}

func (idx *Index) rank(b orb.Bound, ids []int, k int) []int {
	dist := make(map[int]float64, len(ids))
	for _, id := range ids {
		dist[id] = BoxDistance(b, idx.bounds[id])
	}
	sort.SliceStable(ids, func(i, j int) bool {
		di, dj := dist[ids[i]], dist[ids[j]]
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})
	if k > len(ids) {
		k = len(ids)
	}
	return ids[:k]
}

// BoxDistance returns the distance between two boxes, zero when they touch
// or overlap.
func BoxDistance(a, b orb.Bound) float64 {
	dx := math.Max(0, math.Max(a.Min[0]-b.Max[0], b.Min[0]-a.Max[0]))
	dy := math.Max(0, math.Max(a.Min[1]-b.Max[1], b.Min[1]-a.Max[1]))
	return math.Hypot(dx, dy)
}
