package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/simplify"
	"github.com/twpayne/go-geos"
)

// Region is a dissolved planar area backed by a GEOS geometry. Regions are
// immutable; every operation returns a new one. The zero value is the
// empty region.
type Region struct {
	g *geos.Geom
}

// NewRegion dissolves the given polygons into one region. Invalid
// polygons are repaired first.
func NewRegion(polys ...orb.Polygon) Region {
	parts := make([]*geos.Geom, 0, len(polys))
	for _, p := range polys {
		if g := polygonGeom(p); g != nil {
			parts = append(parts, g)
		}
	}
	return unaryUnion(parts)
}

// RegionFromMultiPolygon dissolves every polygon of mp.
func RegionFromMultiPolygon(mp orb.MultiPolygon) Region {
	return NewRegion(mp...)
}

func polygonGeom(p orb.Polygon) *geos.Geom {
	var coordss [][][]float64
	for i, ring := range p {
		coords := ringCoords(ring)
		if len(coords) < 4 {
			if i == 0 {
				return nil
			}
			continue
		}
		coordss = append(coordss, coords)
	}
	if len(coordss) == 0 {
		return nil
	}
	g := geos.NewPolygon(coordss)
	if !g.IsValid() {
		g = g.MakeValid()
	}
	if g == nil || g.IsEmpty() {
		return nil
	}
	return g
}

// ringCoords returns the ring as closed GEOS coordinates.
func ringCoords(ring orb.Ring) [][]float64 {
	coords := make([][]float64, 0, len(ring)+1)
	for _, pt := range ring {
		coords = append(coords, []float64{pt[0], pt[1]})
	}
	if n := len(ring); n > 0 && !ring[0].Equal(ring[n-1]) {
		coords = append(coords, []float64{ring[0][0], ring[0][1]})
	}
	return coords
}

func unaryUnion(parts []*geos.Geom) Region {
	switch len(parts) {
	case 0:
		return Region{}
	case 1:
		if parts[0].NumGeometries() <= 1 {
			return wrap(parts[0])
		}
	}
	return wrap(geos.NewCollection(geos.TypeIDGeometryCollection, parts).UnaryUnion())
}

func wrap(g *geos.Geom) Region {
	if g == nil || g.IsEmpty() {
		return Region{}
	}
	return Region{g: g}
}

// IsEmpty reports whether the region covers no area.
func (r Region) IsEmpty() bool {
	return r.g == nil
}

// Union returns the region covering both r and other.
func (r Region) Union(other Region) Region {
	switch {
	case r.IsEmpty():
		return other
	case other.IsEmpty():
		return r
	}
	return unaryUnion([]*geos.Geom{r.g, other.g})
}

// UnionAll dissolves every region in a single cascaded union.
func UnionAll(regions []Region) Region {
	parts := make([]*geos.Geom, 0, len(regions))
	for _, r := range regions {
		if !r.IsEmpty() {
			parts = append(parts, r.g)
		}
	}
	return unaryUnion(parts)
}

// Contains reports whether p lies in the interior of the region.
func (r Region) Contains(p orb.Point) bool {
	if r.IsEmpty() {
		return false
	}
	return r.g.Contains(geos.NewPointFromXY(p[0], p[1]))
}

// Area returns the covered area.
func (r Region) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.g.Area()
}

// Bound returns the bounding box of the region.
func (r Region) Bound() orb.Bound {
	if r.IsEmpty() {
		return orb.Bound{}
	}
	b := r.g.Bounds()
	return orb.Bound{
		Min: orb.Point{b.MinX, b.MinY},
		Max: orb.Point{b.MaxX, b.MaxY},
	}
}

// MultiPolygon returns the polygons of the region. Outer rings are
// counter-clockwise and holes clockwise.
func (r Region) MultiPolygon() orb.MultiPolygon {
	if r.IsEmpty() {
		return nil
	}
	g, err := wkb.Unmarshal(r.g.ToWKB())
	if err != nil {
		return nil
	}

	var out orb.MultiPolygon
	var collect func(orb.Geometry)
	collect = func(g orb.Geometry) {
		switch v := g.(type) {
		case orb.Polygon:
			out = append(out, v)
		case orb.MultiPolygon:
			out = append(out, v...)
		case orb.Collection:
			for _, sub := range v {
				collect(sub)
			}
		}
	}
	collect(g)

	for _, p := range out {
		for i, ring := range p {
			if (i == 0) != (ring.Orientation() == orb.CCW) {
				ring.Reverse()
			}
		}
	}
	return out
}

// Simplify runs Douglas-Peucker over every ring and dissolves the result.
// Rings that collapse are dropped.
func (r Region) Simplify(tolerance float64) Region {
	if tolerance <= 0 || r.IsEmpty() {
		return r
	}
	return NewRegion(SimplifyMultiPolygon(r.MultiPolygon(), tolerance)...)
}

// SimplifyMultiPolygon simplifies every polygon of mp, dropping rings with
// fewer than four vertices after simplification.
func SimplifyMultiPolygon(mp orb.MultiPolygon, tolerance float64) orb.MultiPolygon {
	if tolerance <= 0 {
		return mp
	}
	s := simplify.DouglasPeucker(tolerance)
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, p := range mp {
		simplified, ok := s.Simplify(orb.Clone(p)).(orb.Polygon)
		if !ok {
			continue
		}
		var kept orb.Polygon
		for i, ring := range simplified {
			if len(ring) < 4 {
				if i == 0 {
					break
				}
				continue
			}
			kept = append(kept, ring)
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
