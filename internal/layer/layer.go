// Package layer holds named feature tables: a geometry plus a property map
// per row, the shape every pipeline output takes before it is written.
package layer

import (
	"reflect"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"
)

// Feature is one row of a layer.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

// Layer is a named table of features.
type Layer struct {
	Name     string
	Features []Feature
}

// New returns a layer named name.
func New(name string, features []Feature) *Layer {
	return &Layer{Name: name, Features: features}
}

// Len returns the number of features.
func (l *Layer) Len() int {
	return len(l.Features)
}

// Columns returns property names in first-seen order.
func (l *Layer) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, f := range l.Features {
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// GeometryType returns the orb type name shared by all features, "" for
// an empty layer and "Geometry" when types are mixed.
func (l *Layer) GeometryType() string {
	t := ""
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		gt := f.Geometry.GeoJSONType()
		switch {
		case t == "":
			t = gt
		case t != gt:
			return "Geometry"
		}
	}
	return t
}

// DropListColumns returns a copy of the layer without the columns holding
// a list value in any row.
func (l *Layer) DropListColumns() *Layer {
	drop := make(map[string]bool)
	for _, f := range l.Features {
		for k, v := range f.Properties {
			if isList(v) {
				drop[k] = true
			}
		}
	}
	if len(drop) > 0 {
		cols := make([]string, 0, len(drop))
		for k := range drop {
			cols = append(cols, k)
		}
		sort.Strings(cols)
		zap.L().With(zap.String("component", "layer")).Debug("dropping list columns",
			zap.String("layer", l.Name),
			zap.Strings("columns", cols),
		)
	}

	out := &Layer{Name: l.Name, Features: make([]Feature, len(l.Features))}
	for i, f := range l.Features {
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			if !drop[k] {
				props[k] = v
			}
		}
		out.Features[i] = Feature{Geometry: f.Geometry, Properties: props}
	}
	return out
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Transform returns a copy of the layer with every geometry passed through fn.
func (l *Layer) Transform(fn func(orb.Geometry) orb.Geometry) *Layer {
	out := &Layer{Name: l.Name, Features: make([]Feature, len(l.Features))}
	for i, f := range l.Features {
		out.Features[i] = Feature{Geometry: fn(f.Geometry), Properties: f.Properties}
	}
	return out
}

// DedupGeometries drops features whose geometry repeats an earlier one.
func DedupGeometries(l *Layer) *Layer {
	seen := make(map[string]bool, len(l.Features))
	out := &Layer{Name: l.Name}
	for _, f := range l.Features {
		key := ""
		if f.Geometry != nil {
			key = wkt.MarshalString(f.Geometry)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Features = append(out.Features, f)
	}
	if dropped := len(l.Features) - len(out.Features); dropped > 0 {
		zap.L().With(zap.String("component", "layer")).Info("dropped duplicate geometries",
			zap.String("layer", l.Name),
			zap.Int("dropped", dropped),
		)
	}
	return out
}

// Polygons flattens every polygonal geometry of the layer.
func Polygons(l *Layer) []orb.Polygon {
	var out []orb.Polygon
	for _, f := range l.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			out = append(out, g)
		case orb.MultiPolygon:
			out = append(out, g...)
		}
	}
	return out
}
