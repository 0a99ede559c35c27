package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Intersects reports whether g shares at least one point with poly.
// Boundary contact counts. Unsupported geometry types never intersect.
func Intersects(poly orb.Polygon, g orb.Geometry) bool {
	if len(poly) == 0 || g == nil {
		return false
	}
	if !poly.Bound().Intersects(g.Bound()) {
		return false
	}

	switch v := g.(type) {
	case orb.Point:
		return covers(poly, v)
	case orb.MultiPoint:
		for _, p := range v {
			if covers(poly, p) {
				return true
			}
		}
	case orb.LineString:
		return lineIntersects(poly, v)
	case orb.MultiLineString:
		for _, ls := range v {
			if lineIntersects(poly, ls) {
				return true
			}
		}
	case orb.Ring:
		return polygonIntersects(poly, orb.Polygon{v})
	case orb.Polygon:
		return polygonIntersects(poly, v)
	case orb.MultiPolygon:
		for _, p := range v {
			if polygonIntersects(poly, p) {
				return true
			}
		}
	case orb.Collection:
		for _, sub := range v {
			if Intersects(poly, sub) {
				return true
			}
		}
	}
	return false
}

// covers is point-in-polygon with the boundary counted as inside.
func covers(poly orb.Polygon, p orb.Point) bool {
	for _, ring := range poly {
		if onRing(ring, p) {
			return true
		}
	}
	return planar.PolygonContains(poly, p)
}

func onRing(ring orb.Ring, p orb.Point) bool {
	const eps = 1e-9
	for i := 0; i < len(ring)-1; i++ {
		if planar.DistanceFromSegment(ring[i], ring[i+1], p) <= eps {
			return true
		}
	}
	return false
}

func lineIntersects(poly orb.Polygon, ls orb.LineString) bool {
	for _, p := range ls {
		if covers(poly, p) {
			return true
		}
	}
	for _, ring := range poly {
		if chainsCross(ring, ls) {
			return true
		}
	}
	return false
}

func polygonIntersects(a, b orb.Polygon) bool {
	if len(b) == 0 {
		return false
	}
	for _, p := range b[0] {
		if covers(a, p) {
			return true
		}
	}
	for _, p := range a[0] {
		if covers(b, p) {
			return true
		}
	}
	for _, ra := range a {
		for _, rb := range b {
			if chainsCross(ra, orb.LineString(rb)) {
				return true
			}
		}
	}
	return false
}

func chainsCross(ring orb.Ring, ls orb.LineString) bool {
	for i := 0; i < len(ring)-1; i++ {
		for j := 0; j < len(ls)-1; j++ {
			if segmentsIntersect(ring[i], ring[i+1], ls[j], ls[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}
