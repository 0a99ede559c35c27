package geo

import (
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

// DefaultQuadSegs is the number of segments used to approximate a quarter
// circle in round caps and joins.
const DefaultQuadSegs = 8

// BufferLine returns the round-capped, round-joined buffer of a polyline.
// A single vertex yields a disc. A non-positive distance yields the empty
// region.
func BufferLine(line orb.LineString, dist float64, quadSegs int) Region {
	if len(line) == 0 || dist <= 0 {
		return Region{}
	}
	if quadSegs <= 0 {
		quadSegs = DefaultQuadSegs
	}

	var g *geos.Geom
	if len(line) == 1 || lineIsPoint(line) {
		g = geos.NewPointFromXY(line[0][0], line[0][1])
	} else {
		coords := make([][]float64, len(line))
		for i, p := range line {
			coords[i] = []float64{p[0], p[1]}
		}
		g = geos.NewLineString(coords)
	}
	return wrap(g.Buffer(dist, quadSegs))
}

func lineIsPoint(line orb.LineString) bool {
	for _, p := range line[1:] {
		if !p.Equal(line[0]) {
			return false
		}
	}
	return true
}
