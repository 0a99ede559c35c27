package pipeline

import (
	"strconv"

	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/graph"
	"github.com/sells-group/geodecision/internal/layer"
	"github.com/sells-group/geodecision/internal/splitter"
)

// Fixed layer names.
const (
	LayerPoints       = "points"
	LayerNodes        = "nodes"
	LayerEdges        = "edges"
	LayerProblemNodes = "problematic_nodes"
)

// Property names of the output layers.
const (
	PropID       = "osmid"
	PropSource   = "source"
	PropTarget   = "target"
	PropKey      = "key"
	PropLength   = "length"
	PropTime     = "time"
	PropWeight   = "weight"
	PropCategory = "iso_cat"
	PropColor    = "color"
	PropNeutral  = "neutral"
)

// Layers returns every output layer in the output CRS: points, nodes,
// edges, isolines, their buffered union, one band per trip time and the
// problematic nodes.
func (r *Result) Layers() []*layer.Layer {
	tr := r.toOut
	if tr == nil {
		tr, _ = geo.NewTransformer(0, 0)
	}

	out := []*layer.Layer{
		splitter.Layer(LayerPoints, r.Points).Transform(tr.Geometry),
		NodeLayer(LayerNodes, r.Nodes).Transform(tr.Geometry),
	}
	if r.Graph != nil {
		out = append(out, EdgeLayer(LayerEdges, r.Graph).Transform(tr.Geometry))
	}
	out = append(out,
		r.isolineLayer().Transform(tr.Geometry),
		r.unionLayer().Transform(tr.Geometry),
	)
	for _, b := range r.Bands {
		out = append(out, layer.New(r.agg.LayerPrefix+strconv.Itoa(b.TripTime), []layer.Feature{{
			Geometry:   b.Geometry,
			Properties: map[string]any{PropCategory: b.TripTime},
		}}))
	}
	out = append(out, NodeLayer(LayerProblemNodes, r.ProblemNodes).Transform(tr.Geometry))
	return out
}

func (r *Result) isolineLayer() *layer.Layer {
	features := make([]layer.Feature, len(r.IsoLines))
	for i, l := range r.IsoLines {
		features[i] = layer.Feature{
			Geometry: l.Geometry,
			Properties: map[string]any{
				PropSource:   string(l.Source),
				PropTarget:   string(l.Target),
				PropWeight:   l.Weight,
				PropCategory: l.Category,
				PropColor:    l.Color,
				PropNeutral:  l.Neutral,
			},
		}
	}
	return layer.New(r.layerName(r.out.IsolinesLayer, "isolines"), features)
}

func (r *Result) unionLayer() *layer.Layer {
	features := make([]layer.Feature, len(r.IsoUnion))
	for i, u := range r.IsoUnion {
		features[i] = layer.Feature{
			Geometry: u.Region.MultiPolygon(),
			Properties: map[string]any{
				PropCategory: u.TripTime,
				PropColor:    u.Color,
			},
		}
	}
	return layer.New(r.layerName(r.out.UnionLayer, "isolines_union"), features)
}

func (r *Result) layerName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// NodeLayer turns nodes into a point layer with their id and attributes.
func NodeLayer(name string, nodes []graph.Node) *layer.Layer {
	features := make([]layer.Feature, len(nodes))
	for i, n := range nodes {
		props := make(map[string]any, len(n.Attrs)+1)
		for k, v := range n.Attrs {
			props[k] = v
		}
		props[PropID] = string(n.ID)
		features[i] = layer.Feature{Geometry: n.Point(), Properties: props}
	}
	return layer.New(name, features)
}

// EdgeLayer turns graph edges into a line layer. Edges without geometry
// use the segment between their endpoints.
func EdgeLayer(name string, g *graph.Graph) *layer.Layer {
	edges := g.Edges()
	features := make([]layer.Feature, len(edges))
	for i, e := range edges {
		props := make(map[string]any, len(e.Attrs)+7)
		for k, v := range e.Attrs {
			props[k] = v
		}
		props[PropSource] = string(e.Source)
		props[PropTarget] = string(e.Target)
		props[PropKey] = e.Key
		props[PropLength] = e.Length
		props[PropTime] = e.Time
		if e.Categorized {
			props[PropCategory] = e.Category
			props[PropColor] = e.Color
		}
		features[i] = layer.Feature{Geometry: g.EdgeLine(i), Properties: props}
	}
	return layer.New(name, features)
}
