// Package pipeline runs the accessibility analysis end to end: polygons
// are split into boundary points, connected into the network, reached
// from every access node and dissolved into nested trip time bands.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/aggregate"
	"github.com/sells-group/geodecision/internal/config"
	"github.com/sells-group/geodecision/internal/connect"
	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/graph"
	"github.com/sells-group/geodecision/internal/isochrone"
	"github.com/sells-group/geodecision/internal/layer"
	"github.com/sells-group/geodecision/internal/splitter"
)

// Phase records how long one stage of a run took.
type Phase struct {
	Name     string
	Duration time.Duration
}

// Result holds every product of a run. Geometries are in the metric CRS
// except band geometries, which are already in the output CRS.
type Result struct {
	RunID string
	// Polygons is the deduplicated input layer.
	Polygons *layer.Layer
	Points   []splitter.Sample
	// Nodes and Edges are the network with the points connected.
	Nodes        []graph.Node
	Edges        []graph.Edge
	Rejected     []string
	IsoLines     []isochrone.Line
	IsoUnion     []isochrone.Union
	Bands        []aggregate.Band
	ProblemNodes []graph.Node
	// Graph is the connected network with merged categories.
	Graph  *graph.Graph
	Colors map[int]string
	Phases []Phase

	out   config.OutputConfig
	agg   config.AggregateConfig
	toOut *geo.Transformer
}

type tracker struct {
	log    *zap.Logger
	phases []Phase
}

func (t *tracker) track(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	t.phases = append(t.phases, Phase{Name: name, Duration: d})
	if err != nil {
		t.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return err
	}
	t.log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Duration("duration", d),
	)
	return nil
}

// Run executes the analysis described by cfg. Nothing is written.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, err
	}
	res := &Result{RunID: uuid.New().String(), out: cfg.Output, agg: cfg.Aggregate}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", res.RunID))
	t := &tracker{log: log}
	start := time.Now()
	defer func() { res.Phases = t.phases }()

	var err error
	res.toOut, err = geo.NewTransformer(cfg.CRS.Metric, cfg.Output.CRS)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: output transform")
	}

	if err := t.track("read_polygons", func() error {
		res.Polygons, err = ReadPolygons(cfg)
		return err
	}); err != nil {
		return nil, err
	}

	if err := t.track("split", func() error {
		res.Points, err = splitter.Split(res.Polygons.Features, splitOptions(cfg))
		return err
	}); err != nil {
		return nil, err
	}

	var nodes []graph.Node
	var edges []graph.Edge
	if err := t.track("read_graph", func() error {
		nodes, edges, err = ReadNetwork(cfg)
		return err
	}); err != nil {
		return nil, err
	}

	var connected *connect.Result
	if err := t.track("connect", func() error {
		connected, err = connect.Connect(res.Points, nodes, edges, connect.Options{
			AccessType:    cfg.Connect.AccessType,
			Threshold:     cfg.Connect.Threshold,
			KNN:           cfg.Connect.KNN,
			Distance:      cfg.Connect.Distance,
			SnapTolerance: cfg.Connect.SnapTolerance,
			IDOffset:      cfg.Connect.IDOffset,
		})
		return err
	}); err != nil {
		return nil, err
	}
	res.Nodes, res.Edges, res.Rejected = connected.Nodes, connected.Edges, connected.Rejected

	var iso *isochrone.Result
	reference := layer.Polygons(res.Polygons)
	if err := t.track("isochrones", func() error {
		g := graph.FromEdgeList(connected.Nodes, connected.Bidirectional())
		origins := Origins(connected.Nodes, cfg.Connect.AccessType)
		log.Info("pipeline: starting nodes", zap.Int("origins", len(origins)))
		iso, err = isochrone.Compute(ctx, g, isochrone.Options{
			TripTimes:      cfg.Isochrone.TripTimes,
			DistanceBuffer: cfg.Isochrone.DistanceBuffer,
			Weight:         cfg.Isochrone.Weight,
			Origins:        origins,
			Reference:      reference,
			Undirected:     cfg.Isochrone.Undirected,
			Workers:        cfg.Isochrone.Workers,
			QuadSegs:       cfg.Isochrone.QuadSegs,
		})
		return err
	}); err != nil {
		return nil, err
	}
	res.IsoLines, res.IsoUnion, res.Graph, res.Colors = iso.Lines, iso.Unions, iso.Graph, iso.Colors
	res.ProblemNodes = problemNodes(connected.Nodes, iso.ProblemNodes)

	if err := t.track("aggregate", func() error {
		res.Bands, err = aggregate.Dissolve(cfg.Isochrone.TripTimes, reference, iso.Unions, aggregate.Options{
			Tolerance: cfg.Aggregate.Tolerance,
			SourceCRS: cfg.CRS.Metric,
			OutputCRS: cfg.Output.CRS,
		})
		return err
	}); err != nil {
		return nil, err
	}

	log.Info("pipeline: run complete",
		zap.Int("points", len(res.Points)),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("isolines", len(res.IsoLines)),
		zap.Int("bands", len(res.Bands)),
		zap.Int("problem_nodes", len(res.ProblemNodes)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func splitOptions(cfg *config.Config) splitter.Options {
	return splitter.Options{
		Distance:    cfg.Split.Distance,
		IDColumn:    cfg.Input.IDColumn,
		Columns:     cfg.Input.ColumnsToKeep,
		MinSegments: cfg.Split.MinSegments,
	}
}

// ReadPolygons loads the polygon layer, drops repeated geometries and
// reprojects it to the metric CRS.
func ReadPolygons(cfg *config.Config) (*layer.Layer, error) {
	l, err := layer.Read(cfg.Input.Polygons)
	if err != nil {
		return nil, err
	}
	tr, err := geo.NewTransformer(cfg.CRS.Input, cfg.CRS.Metric)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: polygon transform")
	}
	return layer.DedupGeometries(l).Transform(tr.Geometry), nil
}

// ReadNetwork loads the graph JSON pair and returns its nodes and edges
// in the metric CRS. Missing lengths are measured and, for the time
// weight, missing times derived from the walking distance.
func ReadNetwork(cfg *config.Config) ([]graph.Node, []graph.Edge, error) {
	g, err := graph.ReadJSON(cfg.Input.GraphEdges, cfg.Input.GraphNodes)
	if err != nil {
		return nil, nil, err
	}
	tr, err := geo.NewTransformer(cfg.CRS.Graph, cfg.CRS.Metric)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: graph transform")
	}

	nodes := make([]graph.Node, len(g.Nodes()))
	pos := make(map[graph.NodeID]orb.Point, len(nodes))
	for i, n := range g.Nodes() {
		p := tr.Point(n.Point())
		n.X, n.Y = p[0], p[1]
		nodes[i] = n
		pos[n.ID] = p
	}

	fillTime := cfg.Isochrone.Weight == "" || cfg.Isochrone.Weight == graph.WeightTime
	var measured, timed int
	edges := make([]graph.Edge, len(g.Edges()))
	for i, e := range g.Edges() {
		if len(e.Geometry) >= 2 {
			e.Geometry = tr.Geometry(e.Geometry).(orb.LineString)
		}
		if e.Length <= 0 {
			line := e.Geometry
			if len(line) < 2 {
				line = orb.LineString{pos[e.Source], pos[e.Target]}
			}
			e.Length = planar.Length(line)
			measured++
		}
		if fillTime && e.Time <= 0 && e.Length > 0 {
			e.Time = graph.TravelTime(e.Length, cfg.Connect.Distance)
			timed++
		}
		edges[i] = e
	}
	if measured > 0 || timed > 0 {
		zap.L().With(zap.String("component", "pipeline")).Info("pipeline: derived edge weights",
			zap.Int("lengths", measured),
			zap.Int("times", timed),
		)
	}
	return nodes, edges, nil
}

// Origins returns the ids of the nodes whose access type matches.
func Origins(nodes []graph.Node, accessType string) []graph.NodeID {
	var out []graph.NodeID
	for _, n := range nodes {
		if n.Attrs.String(connect.AttrAccessType) == accessType {
			out = append(out, n.ID)
		}
	}
	return out
}

func problemNodes(nodes []graph.Node, ids []graph.NodeID) []graph.Node {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[graph.NodeID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []graph.Node
	for _, n := range nodes {
		if want[n.ID] {
			out = append(out, n)
		}
	}
	return out
}
