package spatial

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/sells-group/geodecision/internal/geo"
)

// IntersectMatches returns the positions of candidates that truly intersect
// at least one base polygon. Boxes from idx prune the pairs; geo.Intersects
// decides. A nil idx is built from candidates. The result is sorted.
func IntersectMatches(base []orb.Polygon, candidates []orb.Geometry, idx *Index) []int {
	if len(base) == 0 || len(candidates) == 0 {
		return nil
	}
	if idx == nil {
		idx = BuildFromGeometries(candidates)
	}

	hit := make(map[int]struct{})
	for _, poly := range base {
		if len(poly) == 0 {
			continue
		}
		for _, id := range idx.Search(poly.Bound()) {
			if _, done := hit[id]; done {
				continue
			}
			if geo.Intersects(poly, candidates[id]) {
				hit[id] = struct{}{}
			}
		}
	}

	out := make([]int, 0, len(hit))
	for id := range hit {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
