// Package geo holds the planar geometry primitives shared by the pipeline
// stages: line projection and splitting, segment buffers, dissolved regions,
// intersection tests and CRS transforms. All metric operations assume a
// projected coordinate system.
package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Length returns the planar length of a polyline.
func Length(line orb.LineString) float64 {
	return planar.Length(line)
}

// ProjectOnLine returns the point of line closest to p together with its
// distance along the line from the first vertex. On ties the earliest
// segment wins.
func ProjectOnLine(line orb.LineString, p orb.Point) (orb.Point, float64) {
	switch len(line) {
	case 0:
		return p, 0
	case 1:
		return line[0], 0
	}

	best := line[0]
	bestDist := math.Inf(1)
	bestAlong := 0.0
	walked := 0.0
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		seg := planar.Distance(a, b)
		c, t := closestOnSegment(a, b, p)
		if d := planar.Distance(c, p); d < bestDist {
			bestDist = d
			best = c
			bestAlong = walked + t*seg
		}
		walked += seg
	}
	return best, bestAlong
}

// DistanceToLine returns the planar distance between p and the polyline.
func DistanceToLine(line orb.LineString, p orb.Point) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return planar.Distance(line[0], p)
	}
	min := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := planar.DistanceFromSegment(line[i], line[i+1], p); d < min {
			min = d
		}
	}
	return min
}

// InterpolateAt returns the point located dist units along the line. The
// distance is clamped to the line extent.
func InterpolateAt(line orb.LineString, dist float64) orb.Point {
	if len(line) == 0 {
		return orb.Point{}
	}
	if dist <= 0 {
		return line[0]
	}
	walked := 0.0
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		seg := planar.Distance(a, b)
		if seg > 0 && walked+seg >= dist {
			t := (dist - walked) / seg
			return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
		}
		walked += seg
	}
	return line[len(line)-1]
}

// Interpolate returns the point at the normalized position (0..1) of the line.
func Interpolate(line orb.LineString, normalized float64) orb.Point {
	return InterpolateAt(line, normalized*planar.Length(line))
}

type cut struct {
	along float64
	p     orb.Point
}

// SplitLine cuts line at every point lying within tolerance of it. Points
// are snapped first, so cut vertices carry their exact coordinates. Points
// at or near an endpoint do not cut, and neither do points farther than
// tolerance from the line. The result is ordered from the first vertex and
// holds the original line alone when nothing cuts.
func SplitLine(line orb.LineString, points []orb.Point, tolerance float64) []orb.LineString {
	if len(line) < 2 {
		return []orb.LineString{line}
	}
	total := planar.Length(line)

	cuts := make([]cut, 0, len(points))
	for _, p := range points {
		q, along := ProjectOnLine(line, p)
		if planar.Distance(q, p) > tolerance {
			continue
		}
		if along <= tolerance || along >= total-tolerance {
			continue
		}
		cuts = append(cuts, cut{along: along, p: p})
	}
	if len(cuts) == 0 {
		return []orb.LineString{line}
	}
	sort.SliceStable(cuts, func(i, j int) bool { return cuts[i].along < cuts[j].along })

	uniq := cuts[:1]
	for _, c := range cuts[1:] {
		if c.along-uniq[len(uniq)-1].along > tolerance {
			uniq = append(uniq, c)
		}
	}

	var out []orb.LineString
	current := orb.LineString{line[0]}
	next := 0
	walked := 0.0
	for i := 0; i < len(line)-1; i++ {
		end := walked + planar.Distance(line[i], line[i+1])
		for next < len(uniq) && uniq[next].along <= end {
			current = appendVertex(current, uniq[next].p, tolerance, true)
			out = append(out, current)
			current = orb.LineString{uniq[next].p}
			next++
		}
		current = appendVertex(current, line[i+1], tolerance, false)
		walked = end
	}
	if len(current) >= 2 {
		out = append(out, current)
	}
	return out
}

// appendVertex appends p unless it coincides with the last vertex. When it
// does, replace decides which of the two coordinates survives.
func appendVertex(ls orb.LineString, p orb.Point, tolerance float64, replace bool) orb.LineString {
	if len(ls) > 0 && planar.Distance(ls[len(ls)-1], p) <= tolerance {
		if replace && len(ls) > 1 {
			ls[len(ls)-1] = p
		}
		return ls
	}
	return append(ls, p)
}

// closestOnSegment returns the point of segment ab closest to p and its
// parameter along the segment.
func closestOnSegment(a, b, p orb.Point) (orb.Point, float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a, 0
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / l2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}, t
}
