// Package connect integrates external points into a road network: each
// point becomes an access node linked to its projection on the nearest
// edge, and that edge is split at every projection it received.
package connect

import (
	"math"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/graph"
	"github.com/sells-group/geodecision/internal/spatial"
	"github.com/sells-group/geodecision/internal/splitter"
)

// Highway values stamped on created nodes and edges.
const (
	HighwayAccess    = "access"
	HighwayProjected = "projected_pap"
	HighwayFootway   = "projected_footway"
)

// Attribute keys written by the connector.
const (
	AttrHighway    = "highway"
	AttrAccessType = "access_type"
	AttrOneway     = "oneway"
)

// Defaults.
const (
	DefaultThreshold     = 50.0
	DefaultKNN           = 5
	DefaultDistance      = 5000.0
	DefaultSnapTolerance = 1e-8
	DefaultIDOffset      = int64(9990000000)
)

// ErrMissingUniqueID is returned when a point has no unique id.
var ErrMissingUniqueID = eris.New("connect: point without unique id")

// Options configures Connect. Zero values take the defaults.
type Options struct {
	AccessType string
	// Threshold is the longest accepted connection edge.
	Threshold float64
	// KNN is the number of nearest edges, by bounding box, measured exactly.
	KNN int
	// Distance is walked in 60 minutes and sets edge times.
	Distance      float64
	SnapTolerance float64
	// IDOffset is the first projected point id.
	IDOffset int64
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.KNN <= 0 {
		o.KNN = DefaultKNN
	}
	if o.Distance <= 0 {
		o.Distance = DefaultDistance
	}
	if o.SnapTolerance <= 0 {
		o.SnapTolerance = DefaultSnapTolerance
	}
	if o.IDOffset <= 0 {
		o.IDOffset = DefaultIDOffset
	}
	return o
}

// Result is the integrated network.
type Result struct {
	Nodes []graph.Node
	Edges []graph.Edge
	// Rejected lists the unique ids of points whose connection edge was
	// longer than the threshold.
	Rejected []string
	// Candidates is the number of connection edges built before rejection.
	Candidates      int
	MissingSource   int
	MissingTarget   int
	DuplicateCoords int
}

type coordKey [2]float64

func keyOf(p orb.Point) coordKey { return coordKey{p[0], p[1]} }

// Connect links every point into the network described by nodes and
// edges. Edges without geometry use the straight segment between their
// endpoints. Inputs are not modified.
func Connect(points []splitter.Sample, nodes []graph.Node, edges []graph.Edge, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "connect"))

	for i, p := range points {
		if p.UniqueID == "" {
			return nil, eris.Wrapf(ErrMissingUniqueID, "connect: point %d", i)
		}
	}

	// only edges with a resolvable line are indexed; valid maps index
	// positions back to edge positions
	lines := edgeLines(nodes, edges)
	var valid []int
	var geoms []orb.Geometry
	for i, l := range lines {
		if len(l) >= 2 {
			valid = append(valid, i)
			geoms = append(geoms, l)
		}
	}
	if skipped := len(lines) - len(valid); skipped > 0 {
		log.Warn("edges without geometry or endpoints", zap.Int("edges", skipped))
	}
	idx := spatial.BuildFromGeometries(geoms)

	// nearest edge and projected point per point
	kne := make([]int, len(points))
	pps := make([]orb.Point, len(points))
	for i, p := range points {
		kne[i] = -1
		best := math.Inf(1)
		for _, pos := range idx.Nearest(p.Point.Bound(), opts.KNN) {
			c := valid[pos]
			d := geo.DistanceToLine(lines[c], p.Point)
			if d < best || (d == best && c < kne[i]) {
				best, kne[i] = d, c
			}
		}
		if kne[i] >= 0 {
			pps[i], _ = geo.ProjectOnLine(lines[kne[i]], p.Point)
		} else {
			pps[i] = p.Point
		}
	}

	accessNodes := make([]graph.Node, len(points))
	for i, p := range points {
		attrs := make(graph.Attrs, len(p.Attrs)+2)
		for k, v := range p.Attrs {
			attrs[k] = v
		}
		attrs[AttrAccessType] = opts.AccessType
		attrs[AttrHighway] = HighwayAccess
		accessNodes[i] = graph.Node{ID: graph.NodeID(p.UniqueID), X: p.Point[0], Y: p.Point[1], Attrs: attrs}
	}
	ppNodes := make([]graph.Node, len(points))
	for i, pp := range pps {
		ppNodes[i] = graph.Node{
			ID:    graph.NodeID(strconv.FormatInt(opts.IDOffset+int64(i), 10)),
			X:     pp[0],
			Y:     pp[1],
			Attrs: graph.Attrs{AttrHighway: HighwayProjected},
		}
	}

	res := &Result{}
	coords := make(map[coordKey]graph.NodeID, len(nodes)+2*len(points))
	for _, group := range [][]graph.Node{nodes, accessNodes, ppNodes} {
		for _, n := range group {
			k := keyOf(n.Point())
			if _, dup := coords[k]; dup {
				res.DuplicateCoords++
				continue
			}
			coords[k] = n.ID
		}
	}
	lookup := func(p orb.Point) graph.NodeID { return coords[keyOf(p)] }

	// split every edge that received projected points, all at once
	byEdge := make(map[int][]orb.Point)
	for i := range points {
		if kne[i] >= 0 {
			byEdge[kne[i]] = append(byEdge[kne[i]], pps[i])
		}
	}
	splitIdx := make([]int, 0, len(byEdge))
	for e := range byEdge {
		splitIdx = append(splitIdx, e)
	}
	sort.Ints(splitIdx)

	replaced := make(map[int]bool, len(splitIdx))
	var parts []graph.Edge
	for _, e := range splitIdx {
		parent := edges[e]
		replaced[e] = true
		for _, seg := range geo.SplitLine(lines[e], byEdge[e], opts.SnapTolerance) {
			length := planar.Length(seg)
			parts = append(parts, graph.Edge{
				Source:   lookup(seg[0]),
				Target:   lookup(seg[len(seg)-1]),
				Key:      parent.Key,
				Length:   length,
				Time:     graph.TravelTime(length, opts.Distance),
				Geometry: seg,
				Attrs:    parent.Attrs.Clone(),
			})
		}
	}

	for i, e := range edges {
		if replaced[i] {
			continue
		}
		e.Attrs = e.Attrs.Clone()
		if len(e.Geometry) < 2 && len(lines[i]) >= 2 {
			e.Geometry = lines[i]
		}
		res.Edges = append(res.Edges, e)
	}
	res.Edges = append(res.Edges, parts...)

	rejected := make(map[graph.NodeID]bool)
	for i, p := range points {
		seg := orb.LineString{p.Point, pps[i]}
		length := planar.Length(seg)
		if kne[i] < 0 {
			length = math.Inf(1)
		}
		res.Candidates++
		if length > opts.Threshold {
			res.Rejected = append(res.Rejected, p.UniqueID)
			rejected[graph.NodeID(p.UniqueID)] = true
			continue
		}
		res.Edges = append(res.Edges, graph.Edge{
			Source:   lookup(p.Point),
			Target:   lookup(pps[i]),
			Length:   length,
			Time:     graph.TravelTime(length, opts.Distance),
			Geometry: seg,
			Attrs: graph.Attrs{
				AttrHighway:             HighwayFootway,
				AttrOneway:              false,
				splitter.UniqueIDColumn: p.UniqueID,
			},
		})
	}

	res.Nodes = make([]graph.Node, 0, len(nodes)+2*len(points))
	res.Nodes = append(res.Nodes, nodes...)
	for _, n := range accessNodes {
		if !rejected[n.ID] {
			res.Nodes = append(res.Nodes, n)
		}
	}
	res.Nodes = append(res.Nodes, ppNodes...)

	for _, e := range res.Edges {
		if e.Source == "" {
			res.MissingSource++
		}
		if e.Target == "" {
			res.MissingTarget++
		}
	}

	pct := 0.0
	if res.Candidates > 0 {
		pct = float64(len(res.Rejected)) / float64(res.Candidates) * 100
	}
	log.Info("removed faulty projections",
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("candidates", res.Candidates),
		zap.Float64("pct", pct),
	)
	if res.DuplicateCoords > 0 {
		log.Info("duplicate node coordinates",
			zap.Int("nodes", len(nodes)+2*len(points)),
			zap.Int("coordinate_keys", len(coords)),
		)
	}
	log.Info("missing nodes",
		zap.Int("missing_source", res.MissingSource),
		zap.Int("missing_target", res.MissingTarget),
	)
	if len(res.Rejected) > 0 {
		log.Debug("non-valid nodes", zap.Strings("unique_ids", res.Rejected))
	}
	log.Debug("connected points",
		zap.Int("points", len(points)),
		zap.Int("split_edges", len(splitIdx)),
		zap.Int("edges", len(res.Edges)),
		zap.Int("nodes", len(res.Nodes)),
	)
	return res, nil
}

// Bidirectional returns the result edges with a reversed copy appended for
// every connection edge, which are two-way.
func (r *Result) Bidirectional() []graph.Edge {
	out := make([]graph.Edge, 0, len(r.Edges)+r.Candidates)
	out = append(out, r.Edges...)
	for _, e := range r.Edges {
		if e.Attrs.String(AttrHighway) != HighwayFootway {
			continue
		}
		rev := e
		rev.Source, rev.Target = e.Target, e.Source
		rev.Attrs = e.Attrs.Clone()
		rev.Geometry = make(orb.LineString, len(e.Geometry))
		for i, p := range e.Geometry {
			rev.Geometry[len(e.Geometry)-1-i] = p
		}
		out = append(out, rev)
	}
	return out
}

func edgeLines(nodes []graph.Node, edges []graph.Edge) []orb.LineString {
	var pos map[graph.NodeID]orb.Point
	lines := make([]orb.LineString, len(edges))
	for i, e := range edges {
		if len(e.Geometry) >= 2 {
			lines[i] = e.Geometry
			continue
		}
		if pos == nil {
			pos = make(map[graph.NodeID]orb.Point, len(nodes))
			for _, n := range nodes {
				if _, ok := pos[n.ID]; !ok {
					pos[n.ID] = n.Point()
				}
			}
		}
		s, okS := pos[e.Source]
		t, okT := pos[e.Target]
		if okS && okT {
			lines[i] = orb.LineString{s, t}
		}
	}
	return lines
}
