// Package splitter turns polygon boundaries into evenly spaced sample
// points, each with an id unique across the whole output.
package splitter

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/layer"
)

// UniqueIDColumn is the property carrying the sample id in point layers.
const UniqueIDColumn = "unique_id"

// DefaultMinSegments is the smallest number of boundary segments, so even
// a tiny polygon yields two sample points.
const DefaultMinSegments = 3

// Options configures a split run.
type Options struct {
	// Distance is the target spacing along the boundary, in CRS units.
	Distance float64
	// IDColumn names the polygon identifier property.
	IDColumn string
	// Columns selects the carried properties; empty carries all of them.
	Columns []string
	// MinSegments forces at least this many segments per boundary.
	MinSegments int
}

// Sample is one point on a polygon boundary.
type Sample struct {
	PolygonID string
	Seq       int
	UniqueID  string
	Point     orb.Point
	Attrs     map[string]any
}

// Split samples the exterior boundary of every polygon feature. Geometry
// must already be in a metric CRS. Empty and non-polygon geometries yield
// no samples.
func Split(features []layer.Feature, opts Options) ([]Sample, error) {
	if opts.Distance <= 0 {
		return nil, eris.Errorf("splitter: distance must be positive, got %v", opts.Distance)
	}
	if opts.IDColumn == "" {
		return nil, eris.New("splitter: id column is required")
	}
	if opts.MinSegments <= 0 {
		opts.MinSegments = DefaultMinSegments
	}
	log := zap.L().With(zap.String("component", "splitter"))

	var out []Sample
	var empty int
	for i, f := range features {
		raw, ok := f.Properties[opts.IDColumn]
		if !ok || raw == nil {
			return nil, eris.Errorf("splitter: feature %d has no %q value", i, opts.IDColumn)
		}
		polygonID := formatID(raw)

		boundary := exterior(f.Geometry)
		length := geo.Length(boundary)
		if len(boundary) < 2 || length == 0 {
			empty++
			continue
		}

		n := Segments(length, opts.Distance, opts.MinSegments)
		for k := 1; k < n; k++ {
			seq := len(out)
			out = append(out, Sample{
				PolygonID: polygonID,
				Seq:       seq,
				UniqueID:  polygonID + "_" + strconv.Itoa(seq),
				Point:     geo.Interpolate(boundary, float64(k)/float64(n)),
				Attrs:     carry(f.Properties, opts.Columns),
			})
		}
	}

	if empty > 0 {
		log.Info("polygons without boundary yield no points", zap.Int("polygons", empty))
	}
	log.Debug("split boundaries",
		zap.Int("polygons", len(features)),
		zap.Int("points", len(out)),
		zap.Float64("distance", opts.Distance),
	)
	return out, nil
}

// Segments returns how many equal segments a boundary of the given length
// is cut into.
func Segments(length, distance float64, minSegments int) int {
	n := int(math.Floor(length / distance))
	if n < minSegments {
		n = minSegments
	}
	return n
}

// exterior returns the exterior ring of a polygon, or of the first part of
// a multipolygon, as a line.
func exterior(g orb.Geometry) orb.LineString {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 0 {
			return orb.LineString(v[0])
		}
	case orb.MultiPolygon:
		if len(v) > 0 && len(v[0]) > 0 {
			return orb.LineString(v[0][0])
		}
	}
	return nil
}

func carry(props map[string]any, columns []string) map[string]any {
	out := make(map[string]any, len(props))
	if len(columns) == 0 {
		for k, v := range props {
			out[k] = v
		}
		return out
	}
	for _, c := range columns {
		if v, ok := props[c]; ok {
			out[c] = v
		}
	}
	return out
}

// formatID renders an identifier, dropping the fraction of integral floats
// decoded from JSON.
func formatID(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatInt(int64(n), 10)
		}
	}
	return fmt.Sprint(v)
}

// Layer turns samples into a point layer carrying their attributes and
// unique id.
func Layer(name string, samples []Sample) *layer.Layer {
	features := make([]layer.Feature, 0, len(samples))
	for _, s := range samples {
		props := make(map[string]any, len(s.Attrs)+1)
		for k, v := range s.Attrs {
			props[k] = v
		}
		props[UniqueIDColumn] = s.UniqueID
		features = append(features, layer.Feature{Geometry: s.Point, Properties: props})
	}
	return layer.New(name, features)
}
