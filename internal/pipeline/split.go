package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/geodecision/internal/config"
	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/layer"
	"github.com/sells-group/geodecision/internal/splitter"
)

// SplitPoints reads the polygon layer and returns its boundary points as
// a layer in the output CRS.
func SplitPoints(cfg *config.Config) (*layer.Layer, error) {
	if err := cfg.Validate("split"); err != nil {
		return nil, err
	}
	polygons, err := ReadPolygons(cfg)
	if err != nil {
		return nil, err
	}
	samples, err := splitter.Split(polygons.Features, splitOptions(cfg))
	if err != nil {
		return nil, err
	}
	tr, err := geo.NewTransformer(cfg.CRS.Metric, cfg.Output.CRS)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: output transform")
	}
	return splitter.Layer(LayerPoints, samples).Transform(tr.Geometry), nil
}
