// Package isochrone computes travel-time isochrones from a set of origins:
// ego-graphs per origin and trip time, merged by minimum trip time per
// physical segment, then buffered and dissolved per trip time.
package isochrone

import (
	"context"
	"runtime"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/graph"
	"github.com/sells-group/geodecision/internal/spatial"
)

// NeutralCategory marks edges inside a reference polygon.
const NeutralCategory = 0

// Stage is a step of a computation, logged as it starts.
type Stage int

// Stages in execution order.
const (
	StageInit Stage = iota
	StageSubgraphExtraction
	StageDeduplication
	StageGeometryBuild
	StageNeutralize
	StageBuffer
	StageUnion
	StageDone
)

var stageNames = [...]string{
	"INIT",
	"SUBGRAPH_EXTRACTION",
	"DEDUPLICATION",
	"GEOMETRY_BUILD",
	"NEUTRALIZE",
	"BUFFER",
	"UNION",
	"DONE",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "UNKNOWN"
}

// Options configures Compute.
type Options struct {
	// TripTimes are the thresholds, in units of Weight.
	TripTimes []int
	// DistanceBuffer inflates every line, in metric CRS units.
	DistanceBuffer float64
	// Weight names the edge weight; "time" by default.
	Weight  string
	Origins []graph.NodeID
	// Reference polygons, in the metric CRS, mark neutral edges.
	Reference []orb.Polygon
	// Palette overrides Colors(TripTimes).
	Palette map[int]string
	// SourceCRS is the CRS of node coordinates; MetricCRS the one lines
	// and polygons are built in. Zero means no reprojection.
	SourceCRS, MetricCRS int
	// Undirected traverses edges in both directions.
	Undirected bool
	// Workers bounds concurrent ego-graph extraction; 0 uses every CPU.
	Workers  int
	QuadSegs int
}

// Line is a deduplicated segment with its merged category.
type Line struct {
	Source, Target graph.NodeID
	Weight         float64
	Category       int
	Color          string
	Neutral        bool
	Geometry       orb.LineString
}

// Buffered is a line inflated by the distance buffer.
type Buffered struct {
	Source, Target graph.NodeID
	Category       int
	Color          string
	Region         geo.Region
}

// Union is the dissolved area of every buffered line of one trip time.
type Union struct {
	TripTime int
	Color    string
	Region   geo.Region
}

// Result is the outcome of Compute.
type Result struct {
	Lines    []Line
	Buffered []Buffered
	// Unions are ordered by ascending trip time.
	Unions []Union
	// ProblemNodes are the origins missing from the graph.
	ProblemNodes []graph.NodeID
	// Graph is a copy of the input with merged categories on every edge
	// of each reached segment.
	Graph  *graph.Graph
	Colors map[int]string
}

type job struct {
	tripTime int
	origin   graph.NodeID
}

type merged struct {
	edge     int
	category int
}

// Compute runs the isochrone pipeline on g. The graph is not modified.
func Compute(ctx context.Context, g *graph.Graph, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "isochrone"))
	stage := func(s Stage) { log.Debug("stage", zap.Stringer("stage", s)) }
	start := time.Now()

	stage(StageInit)
	if len(opts.TripTimes) == 0 {
		return nil, eris.New("isochrone: at least one trip time is required")
	}
	for _, t := range opts.TripTimes {
		if t <= 0 {
			return nil, eris.Errorf("isochrone: trip time must be positive, got %d", t)
		}
	}
	if opts.DistanceBuffer <= 0 {
		return nil, eris.Errorf("isochrone: distance buffer must be positive, got %v", opts.DistanceBuffer)
	}
	if opts.Weight == "" {
		opts.Weight = graph.WeightTime
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	colors := opts.Palette
	if colors == nil {
		colors = Colors(opts.TripTimes)
	}
	tr, err := geo.NewTransformer(opts.SourceCRS, opts.MetricCRS)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: metric transform")
	}
	res := &Result{Colors: colors}

	stage(StageSubgraphExtraction)
	var jobs []job
	missing := make(map[graph.NodeID]bool)
	for _, t := range opts.TripTimes {
		for _, o := range opts.Origins {
			if !g.HasNode(o) {
				if !missing[o] {
					missing[o] = true
					res.ProblemNodes = append(res.ProblemNodes, o)
				}
				continue
			}
			jobs = append(jobs, job{tripTime: t, origin: o})
		}
	}
	if len(res.ProblemNodes) > 0 {
		log.Warn("origins missing from graph", zap.Int("problem_nodes", len(res.ProblemNodes)))
	}

	reached := make([][]int, len(jobs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for i, j := range jobs {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ego, err := g.EgoGraph(j.origin, float64(j.tripTime), opts.Weight, opts.Undirected)
			if err != nil {
				return eris.Wrapf(err, "isochrone: ego graph from %s within %d", j.origin, j.tripTime)
			}
			reached[i] = ego.Edges
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	stage(StageDeduplication)
	// jobs are merged in order once every contribution is in, so the
	// outcome does not depend on scheduling
	pairs := make(map[string]*merged)
	var order []string
	for i, j := range jobs {
		for _, e := range reached[i] {
			edge := g.Edge(e)
			key := graph.PairKey(edge.Source, edge.Target)
			m, ok := pairs[key]
			if !ok {
				pairs[key] = &merged{edge: e, category: j.tripTime}
				order = append(order, key)
				continue
			}
			if j.tripTime < m.category {
				m.category = j.tripTime
			}
		}
	}

	stage(StageGeometryBuild)
	res.Lines = make([]Line, 0, len(order))
	for _, key := range order {
		m := pairs[key]
		edge := g.Edge(m.edge)
		s, _ := g.Node(edge.Source)
		t, _ := g.Node(edge.Target)
		line := orb.LineString{tr.Point(s.Point()), tr.Point(t.Point())}
		res.Lines = append(res.Lines, Line{
			Source:   edge.Source,
			Target:   edge.Target,
			Weight:   graph.Weight(edge, opts.Weight),
			Category: m.category,
			Color:    colors[m.category],
			Geometry: line,
		})
	}

	stage(StageNeutralize)
	if len(opts.Reference) > 0 && len(res.Lines) > 0 {
		geoms := make([]orb.Geometry, len(res.Lines))
		for i, l := range res.Lines {
			geoms[i] = l.Geometry
		}
		neutral := spatial.IntersectMatches(opts.Reference, geoms, spatial.BuildFromGeometries(geoms))
		for _, i := range neutral {
			res.Lines[i].Category = NeutralCategory
			res.Lines[i].Color = colors[NeutralCategory]
			res.Lines[i].Neutral = true
			pairs[graph.PairKey(res.Lines[i].Source, res.Lines[i].Target)].category = NeutralCategory
		}
		log.Debug("neutral lines", zap.Int("lines", len(neutral)))
	}

	res.Graph = g.Clone()
	for i, e := range res.Graph.Edges() {
		if m, ok := pairs[graph.PairKey(e.Source, e.Target)]; ok {
			res.Graph.SetCategory(i, m.category, colors[m.category])
		}
	}

	stage(StageBuffer)
	res.Buffered = make([]Buffered, len(res.Lines))
	for i, l := range res.Lines {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "isochrone: buffer")
			}
		}
		res.Buffered[i] = Buffered{
			Source:   l.Source,
			Target:   l.Target,
			Category: l.Category,
			Color:    l.Color,
			Region:   geo.BufferLine(l.Geometry, opts.DistanceBuffer, opts.QuadSegs),
		}
	}

	stage(StageUnion)
	times := uniqueSorted(opts.TripTimes)
	res.Unions = make([]Union, len(times))
	ug, uctx := errgroup.WithContext(ctx)
	ug.SetLimit(opts.Workers)
	for i, t := range times {
		ug.Go(func() error {
			var parts []geo.Region
			for _, b := range res.Buffered {
				if b.Category == t {
					parts = append(parts, b.Region)
				}
			}
			if err := uctx.Err(); err != nil {
				return err
			}
			res.Unions[i] = Union{TripTime: t, Color: colors[t], Region: geo.UnionAll(parts)}
			return nil
		})
	}
	if err := ug.Wait(); err != nil {
		return nil, eris.Wrap(err, "isochrone: union")
	}

	stage(StageDone)
	log.Info("isochrones computed",
		zap.Int("origins", len(opts.Origins)),
		zap.Int("trip_times", len(times)),
		zap.Int("subgraphs", len(jobs)),
		zap.Int("lines", len(res.Lines)),
		zap.Int("problem_nodes", len(res.ProblemNodes)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}
