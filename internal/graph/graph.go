// Package graph is a directed multigraph of network nodes and edges with
// typed core fields and a free-form attribute side table.
package graph

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NodeID identifies a node. Numeric ids keep their decimal form.
type NodeID string

// Attrs holds the attributes that have no typed field.
type Attrs map[string]any

// Clone returns a shallow copy of a.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// String returns the attribute formatted as a string, or "" when absent.
func (a Attrs) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Float returns a numeric attribute.
func (a Attrs) Float(key string) (float64, bool) {
	return toFloat(a[key])
}

// Node is a network vertex.
type Node struct {
	ID    NodeID
	X, Y  float64
	Attrs Attrs
}

// Point returns the node position.
func (n Node) Point() orb.Point {
	return orb.Point{n.X, n.Y}
}

// Edge is a directed link. Category and Color are set once isochrones
// have been merged back onto the graph.
type Edge struct {
	Source, Target NodeID
	Key            int
	Length         float64
	Time           float64
	Category       int
	Categorized    bool
	Color          string
	Geometry       orb.LineString
	Attrs          Attrs
}

// Graph is a directed multigraph. It is not safe for concurrent mutation;
// concurrent reads are fine.
type Graph struct {
	nodes   []Node
	index   map[NodeID]int
	edges   []Edge
	out     map[NodeID][]int
	in      map[NodeID][]int
	skipped int
}

// New builds a graph holding every node. Duplicate node ids are an error.
// Edges with an empty or unknown endpoint are skipped and counted.
func New(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		index: make(map[NodeID]int, len(nodes)),
		out:   make(map[NodeID][]int),
		in:    make(map[NodeID][]int),
	}
	for _, n := range nodes {
		if _, dup := g.index[n.ID]; dup {
			return nil, eris.Errorf("graph: duplicate node id %q", n.ID)
		}
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	for _, e := range edges {
		g.addEdge(e)
	}
	g.logSkipped()
	return g, nil
}

// FromEdgeList builds a graph from an edge list: only nodes referenced by
// a kept edge are part of it. The node table supplies positions and
// attributes; its first row wins on duplicate ids.
func FromEdgeList(nodes []Node, edges []Edge) *Graph {
	table := make(map[NodeID]int, len(nodes))
	for i, n := range nodes {
		if _, ok := table[n.ID]; !ok {
			table[n.ID] = i
		}
	}

	g := &Graph{
		index: make(map[NodeID]int),
		out:   make(map[NodeID][]int),
		in:    make(map[NodeID][]int),
	}
	for _, e := range edges {
		si, okS := table[e.Source]
		ti, okT := table[e.Target]
		if e.Source == "" || e.Target == "" || !okS || !okT {
			g.skipped++
			continue
		}
		for _, i := range []int{si, ti} {
			if _, ok := g.index[nodes[i].ID]; !ok {
				g.index[nodes[i].ID] = len(g.nodes)
				g.nodes = append(g.nodes, nodes[i])
			}
		}
		g.addEdge(e)
	}
	g.logSkipped()
	return g
}

func (g *Graph) addEdge(e Edge) {
	if e.Source == "" || e.Target == "" || !g.HasNode(e.Source) || !g.HasNode(e.Target) {
		g.skipped++
		return
	}
	i := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[e.Source] = append(g.out[e.Source], i)
	g.in[e.Target] = append(g.in[e.Target], i)
}

func (g *Graph) logSkipped() {
	if g.skipped > 0 {
		zap.L().With(zap.String("component", "graph")).Warn("skipped edges with missing endpoints",
			zap.Int("skipped", g.skipped),
		)
	}
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int { return len(g.edges) }

// SkippedEdges returns how many edges were dropped while building.
func (g *Graph) SkippedEdges() int { return g.skipped }

// Nodes returns the nodes in insertion order. The slice must not be modified.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns the edges in insertion order. The slice must not be modified.
func (g *Graph) Edges() []Edge { return g.edges }

// Edge returns edge i.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// Node looks a node up by id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// HasNode reports whether id is part of the graph.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.index[id]
	return ok
}

// Out returns the indices of edges leaving id.
func (g *Graph) Out(id NodeID) []int { return g.out[id] }

// In returns the indices of edges entering id.
func (g *Graph) In(id NodeID) []int { return g.in[id] }

// EdgeLine returns the geometry of edge i, or the straight segment between
// its endpoints when it has none.
func (g *Graph) EdgeLine(i int) orb.LineString {
	e := g.edges[i]
	if len(e.Geometry) >= 2 {
		return e.Geometry
	}
	s, _ := g.Node(e.Source)
	t, _ := g.Node(e.Target)
	return orb.LineString{s.Point(), t.Point()}
}

// Clone returns a deep copy of the graph structure. Attribute values are
// shared.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:   make([]Node, len(g.nodes)),
		index:   make(map[NodeID]int, len(g.index)),
		edges:   make([]Edge, len(g.edges)),
		out:     make(map[NodeID][]int, len(g.out)),
		in:      make(map[NodeID][]int, len(g.in)),
		skipped: g.skipped,
	}
	for i, n := range g.nodes {
		n.Attrs = n.Attrs.Clone()
		c.nodes[i] = n
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	for i, e := range g.edges {
		e.Attrs = e.Attrs.Clone()
		e.Geometry = append(orb.LineString(nil), e.Geometry...)
		c.edges[i] = e
	}
	for k, v := range g.out {
		c.out[k] = append([]int(nil), v...)
	}
	for k, v := range g.in {
		c.in[k] = append([]int(nil), v...)
	}
	return c
}

// SetCategory stamps a merged isochrone category and its color on edge i.
func (g *Graph) SetCategory(i, category int, color string) {
	g.edges[i].Category = category
	g.edges[i].Categorized = true
	g.edges[i].Color = color
}

// WithTime returns a copy where every edge time is its length walked at
// distancePerHour.
func (g *Graph) WithTime(distancePerHour float64) (*Graph, error) {
	if distancePerHour <= 0 {
		return nil, eris.Errorf("graph: distance per hour must be positive, got %v", distancePerHour)
	}
	c := g.Clone()
	for i := range c.edges {
		c.edges[i].Time = TravelTime(c.edges[i].Length, distancePerHour)
	}
	return c, nil
}

// TravelTime converts a length into minutes at distancePerHour.
func TravelTime(length, distancePerHour float64) float64 {
	return length / (distancePerHour / 60)
}

// PairKey identifies the physical segment between a and b regardless of
// direction.
func PairKey(a, b NodeID) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + "\x00" + string(b)
}

// SortIDs orders ids numerically when both are integers, lexically
// otherwise.
func SortIDs(ids []NodeID) {
	sort.SliceStable(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
}
