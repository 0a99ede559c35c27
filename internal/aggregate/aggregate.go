// Package aggregate dissolves per trip time isochrone unions into nested
// accessibility bands.
package aggregate

import (
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/isochrone"
)

// Options configures Dissolve.
type Options struct {
	// Tolerance simplifies each trip time's polygons before they are
	// unioned. Zero keeps them as is.
	Tolerance float64
	// SourceCRS is the CRS of the inputs and OutputCRS the one band
	// geometries are returned in. Zero on either side skips reprojection.
	SourceCRS, OutputCRS int
}

// Band is everywhere reachable within TripTime, base polygons included.
type Band struct {
	TripTime int
	// Region is in the source CRS.
	Region geo.Region
	// Geometry is Region in the output CRS.
	Geometry orb.MultiPolygon
}

// Dissolve accumulates unions by ascending trip time on top of the base
// polygons. Each band contains every smaller one. Unions for trip times
// not listed are ignored.
func Dissolve(tripTimes []int, base []orb.Polygon, unions []isochrone.Union, opts Options) ([]Band, error) {
	if len(tripTimes) == 0 {
		return nil, eris.New("aggregate: at least one trip time is required")
	}
	if opts.Tolerance < 0 {
		return nil, eris.Errorf("aggregate: tolerance must not be negative, got %v", opts.Tolerance)
	}
	tr, err := geo.NewTransformer(opts.SourceCRS, opts.OutputCRS)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: output transform")
	}

	times := slices.Clone(tripTimes)
	slices.Sort(times)
	times = slices.Compact(times)

	byTime := make(map[int][]geo.Region, len(times))
	for _, u := range unions {
		r := u.Region
		if opts.Tolerance > 0 {
			r = r.Simplify(opts.Tolerance)
		}
		byTime[u.TripTime] = append(byTime[u.TripTime], r)
	}

	log := zap.L().With(zap.String("component", "aggregate"))
	acc := geo.NewRegion(base...)
	bands := make([]Band, 0, len(times))
	for _, t := range times {
		start := time.Now()
		acc = geo.UnionAll(append([]geo.Region{acc}, byTime[t]...))

		mp := acc.MultiPolygon()
		if !tr.IsIdentity() {
			if g, ok := tr.Geometry(mp).(orb.MultiPolygon); ok {
				mp = g
			}
		}
		bands = append(bands, Band{TripTime: t, Region: acc, Geometry: mp})
		log.Info("band dissolved",
			zap.Int("trip_time", t),
			zap.Int("polygons", len(mp)),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return bands, nil
}
