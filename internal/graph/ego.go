package graph

import (
	"container/heap"
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

// Weight names with a typed field behind them.
const (
	WeightTime   = "time"
	WeightLength = "length"
)

// ErrNodeNotFound is returned when a requested node is not in the graph.
var ErrNodeNotFound = eris.New("graph: node not found")

// Weight returns the value of the named weight on e. Missing attributes
// weigh 1.
func Weight(e Edge, name string) float64 {
	switch name {
	case WeightTime:
		return e.Time
	case WeightLength:
		return e.Length
	}
	if v, ok := e.Attrs.Float(name); ok {
		return v
	}
	return 1
}

// Ego is the subgraph reached from Center within a weighted radius.
type Ego struct {
	Center NodeID
	// Dist holds the shortest weighted distance of every reached node.
	Dist map[NodeID]float64
	// Edges are the indices of edges whose endpoints were both reached,
	// ascending.
	Edges []int
}

// EgoGraph runs a Dijkstra search bounded by radius from center. With
// undirected set, edges are traversed in both directions.
func (g *Graph) EgoGraph(center NodeID, radius float64, weight string, undirected bool) (*Ego, error) {
	if !g.HasNode(center) {
		return nil, eris.Wrapf(ErrNodeNotFound, "graph: ego graph from %q", center)
	}

	dist := map[NodeID]float64{center: 0}
	done := make(map[NodeID]bool)
	pq := &queue{{id: center, dist: 0}}

	relax := func(base float64, idx int, to NodeID) error {
		w := Weight(g.edges[idx], weight)
		if w < 0 {
			return eris.Errorf("graph: negative %s weight on edge %s->%s", weight, g.edges[idx].Source, g.edges[idx].Target)
		}
		d := base + w
		if d > radius {
			return nil
		}
		if cur, ok := dist[to]; !ok || d < cur {
			dist[to] = d
			heap.Push(pq, item{id: to, dist: d})
		}
		return nil
	}

	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		if done[it.id] {
			continue
		}
		done[it.id] = true
		for _, idx := range g.out[it.id] {
			if err := relax(it.dist, idx, g.edges[idx].Target); err != nil {
				return nil, err
			}
		}
		if undirected {
			for _, idx := range g.in[it.id] {
				if err := relax(it.dist, idx, g.edges[idx].Source); err != nil {
					return nil, err
				}
			}
		}
	}

	ego := &Ego{Center: center, Dist: dist}
	for id := range dist {
		for _, idx := range g.out[id] {
			if _, ok := dist[g.edges[idx].Target]; ok {
				ego.Edges = append(ego.Edges, idx)
			}
		}
	}
	sort.Ints(ego.Edges)
	return ego, nil
}

type item struct {
	id   NodeID
	dist float64
}

type queue []item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(item)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		return 0, false
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// lessID orders numeric ids by value and places them before other ids.
func lessID(a, b NodeID) bool {
	ai, aerr := strconv.ParseInt(string(a), 10, 64)
	bi, berr := strconv.ParseInt(string(b), 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}
