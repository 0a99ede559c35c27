package writer

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geodecision/internal/layer"
)

// WriteGeoJSON writes l as a FeatureCollection, replacing any file at
// path. Features without geometry get an empty GeometryCollection.
func WriteGeoJSON(path string, l *layer.Layer) error {
	if err := erase(path); err != nil {
		return err
	}
	fc := geojson.NewFeatureCollection()
	for _, f := range l.Features {
		g := f.Geometry
		if g == nil {
			g = orb.Collection{}
		}
		feat := geojson.NewFeature(g)
		feat.Properties = geojson.Properties(f.Properties)
		if feat.Properties == nil {
			feat.Properties = geojson.Properties{}
		}
		fc.Append(feat)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrapf(err, "geojson: marshal %s", l.Name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geojson: write %s", path)
	}
	return nil
}
