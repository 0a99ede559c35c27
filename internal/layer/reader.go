package layer

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Read loads a layer from a GeoJSON (.geojson, .json) or shapefile (.shp).
// The layer is named after the file.
func Read(path string) (*Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return ReadGeoJSON(path)
	case ".shp":
		return ReadShapefile(path)
	}
	return nil, eris.Errorf("layer: unsupported input format %s", path)
}

func layerName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// ReadGeoJSON loads a feature collection.
func ReadGeoJSON(path string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: read %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: decode %s", path)
	}

	l := &Layer{Name: layerName(path), Features: make([]Feature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		props := make(map[string]any, len(f.Properties)+1)
		for k, v := range f.Properties {
			props[k] = v
		}
		if _, ok := props["id"]; !ok && f.ID != nil {
			props["id"] = f.ID
		}
		l.Features = append(l.Features, Feature{Geometry: f.Geometry, Properties: props})
	}
	return l, nil
}

// ReadShapefile loads a shapefile with its dBASE attributes. Numeric
// attributes are parsed; everything else stays a trimmed string.
func ReadShapefile(path string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	l := &Layer{Name: layerName(path)}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		g := shapeGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		props := make(map[string]any, len(fields))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				props[name] = nil
				continue
			}
			switch fields[i].Fieldtype {
			case 'N', 'F':
				if f, err := strconv.ParseFloat(val, 64); err == nil {
					props[name] = f
					continue
				}
			}
			props[name] = val
		}
		l.Features = append(l.Features, Feature{Geometry: g, Properties: props})
	}

	if skipped > 0 {
		zap.L().With(zap.String("component", "layer")).Debug("skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return l, nil
}

// shapeGeometry converts a go-shp shape into orb geometry. Polygon parts
// are grouped into shells and holes by ring orientation: shapefiles store
// shells clockwise.
func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PolyLine:
		parts := splitParts(s.Parts, s.Points)
		if len(parts) == 0 {
			return nil
		}
		if len(parts) == 1 {
			return orb.LineString(parts[0])
		}
		mls := make(orb.MultiLineString, 0, len(parts))
		for _, p := range parts {
			mls = append(mls, orb.LineString(p))
		}
		return mls
	case *shp.Polygon:
		return polygonGeometry(splitParts(s.Parts, s.Points))
	}
	return nil
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	var out [][]orb.Point
	for i := range parts {
		start := parts[i]
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		pts := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			pts = append(pts, orb.Point{p.X, p.Y})
		}
		out = append(out, pts)
	}
	return out
}

func polygonGeometry(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	var holes []orb.Ring
	for _, p := range parts {
		ring := orb.Ring(p)
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{reversed(ring)})
		} else {
			holes = append(holes, reversed(ring))
		}
	}
	for _, h := range holes {
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				break
			}
		}
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}

func reversed(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}
