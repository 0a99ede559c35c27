package isochrone

import (
	"context"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geodecision/internal/connect"
	"github.com/sells-group/geodecision/internal/geo"
	"github.com/sells-group/geodecision/internal/graph"
	"github.com/sells-group/geodecision/internal/splitter"
)

func TestPaletteFor(t *testing.T) {
	assert.Nil(t, PaletteFor(0))
	assert.Equal(t, []string{"#440154"}, PaletteFor(1))
	assert.Equal(t, []string{"#440154", "#208F8C"}, PaletteFor(2))
	assert.Equal(t, []string{"#440154", "#3B518A", "#208F8C", "#5BC862", "#FDE724"}, PaletteFor(5))
	assert.Len(t, PaletteFor(11), 11)

	for _, n := range []int{12, 20} {
		p := PaletteFor(n)
		require.Len(t, p, n)
		assert.Equal(t, "#440154", p[0])
		assert.Equal(t, "#FDE724", p[n-1])
		seen := make(map[string]bool)
		for _, c := range p {
			assert.Len(t, c, 7)
			seen[c] = true
		}
		assert.Len(t, seen, n, "colors must stay distinct")
	}

	p := PaletteFor(3)
	p[0] = "mutated"
	assert.Equal(t, "#440154", PaletteFor(3)[0])
}

func TestColors(t *testing.T) {
	got := Colors([]int{5, 1})
	assert.Equal(t, map[int]string{0: "#440154", 1: "#208F8C", 5: "#FDE724"}, got)

	assert.Equal(t, map[int]string{0: "#440154", 10: "#208F8C"}, Colors([]int{10}))
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "SUBGRAPH_EXTRACTION", StageSubgraphExtraction.String())
	assert.Equal(t, "DONE", StageDone.String())
	assert.Equal(t, "UNKNOWN", Stage(99).String())
}

// square is a 100m square walked at 5 km/h: each edge takes 1.2 minutes.
func square(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(
		[]graph.Node{
			{ID: "1", X: 0, Y: 0},
			{ID: "2", X: 100, Y: 0},
			{ID: "3", X: 100, Y: 100},
			{ID: "4", X: 0, Y: 100},
		},
		[]graph.Edge{
			{Source: "1", Target: "2", Length: 100},
			{Source: "2", Target: "3", Length: 100},
			{Source: "3", Target: "4", Length: 100},
			{Source: "4", Target: "1", Length: 100},
		},
	)
	require.NoError(t, err)
	g, err = g.WithTime(5000)
	require.NoError(t, err)
	return g
}

func TestCompute_Square(t *testing.T) {
	res, err := Compute(context.Background(), square(t), Options{
		TripTimes:      []int{1, 5},
		DistanceBuffer: 10,
		Origins:        []graph.NodeID{"1"},
	})
	require.NoError(t, err)

	assert.Empty(t, res.ProblemNodes)
	require.Len(t, res.Unions, 2)
	assert.Equal(t, 1, res.Unions[0].TripTime)
	assert.Equal(t, 5, res.Unions[1].TripTime)
	assert.Equal(t, res.Colors[5], res.Unions[1].Color)

	one, five := res.Unions[0].Region, res.Unions[1].Region
	assert.True(t, one.IsEmpty())
	assert.False(t, five.IsEmpty())
	assert.GreaterOrEqual(t, five.Area(), one.Area())
	assert.True(t, five.Contains(orb.Point{50, 5}))
	assert.True(t, five.Contains(orb.Point{95, 50}))
	assert.False(t, five.Contains(orb.Point{50, 50}))

	require.Len(t, res.Lines, 4)
	for _, l := range res.Lines {
		assert.Equal(t, 5, l.Category)
	}
	assert.Len(t, res.Buffered, 4)
}

func TestCompute_BandsNest(t *testing.T) {
	res, err := Compute(context.Background(), square(t), Options{
		TripTimes:      []int{2, 5},
		DistanceBuffer: 10,
		Origins:        []graph.NodeID{"1"},
	})
	require.NoError(t, err)

	cats := map[string]int{}
	for _, l := range res.Lines {
		cats[graph.PairKey(l.Source, l.Target)] = l.Category
	}
	assert.Equal(t, 2, cats[graph.PairKey("1", "2")])
	assert.Equal(t, 5, cats[graph.PairKey("2", "3")])
	assert.True(t, res.Unions[0].Region.Contains(orb.Point{50, 0}))
}

// corridor is A - X - B with edges in both directions.
func corridor(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(
		[]graph.Node{{ID: "A", X: 0, Y: 0}, {ID: "X", X: 100, Y: 0}, {ID: "B", X: 200, Y: 0}},
		[]graph.Edge{
			{Source: "A", Target: "X", Length: 100},
			{Source: "X", Target: "A", Length: 100},
			{Source: "X", Target: "B", Length: 100},
			{Source: "B", Target: "X", Length: 100},
		},
	)
	require.NoError(t, err)
	g, err = g.WithTime(5000)
	require.NoError(t, err)
	return g
}

func categories(res *Result) map[string]int {
	out := make(map[string]int)
	for _, l := range res.Lines {
		out[graph.PairKey(l.Source, l.Target)] = l.Category
	}
	return out
}

func TestCompute_MinimumMergeIsOrderIndependent(t *testing.T) {
	g := corridor(t)
	var results []map[string]int
	for _, opts := range []Options{
		{TripTimes: []int{5, 2}, Origins: []graph.NodeID{"A", "B"}, Workers: 1},
		{TripTimes: []int{2, 5}, Origins: []graph.NodeID{"B", "A"}, Workers: 1},
		{TripTimes: []int{5, 2}, Origins: []graph.NodeID{"B", "A"}, Workers: 8},
	} {
		opts.DistanceBuffer = 5
		res, err := Compute(context.Background(), g, opts)
		require.NoError(t, err)
		require.Len(t, res.Lines, 2, "both directions collapse into one line")
		results = append(results, categories(res))
	}

	want := map[string]int{
		graph.PairKey("A", "X"): 2,
		graph.PairKey("X", "B"): 2,
	}
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestCompute_SmallerTimeFromOtherOrigin(t *testing.T) {
	g := corridor(t)
	res, err := Compute(context.Background(), g, Options{
		TripTimes:      []int{2, 5},
		DistanceBuffer: 5,
		Origins:        []graph.NodeID{"A"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, categories(res)[graph.PairKey("X", "B")])

	res, err = Compute(context.Background(), g, Options{
		TripTimes:      []int{2, 5},
		DistanceBuffer: 5,
		Origins:        []graph.NodeID{"A", "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, categories(res)[graph.PairKey("X", "B")])
}

func TestCompute_NeutralOverride(t *testing.T) {
	g := corridor(t)
	ref := []orb.Polygon{{{{-10, -10}, {10, -10}, {10, 10}, {-10, 10}, {-10, -10}}}}
	res, err := Compute(context.Background(), g, Options{
		TripTimes:      []int{2, 5},
		DistanceBuffer: 5,
		Origins:        []graph.NodeID{"A", "B"},
		Reference:      ref,
	})
	require.NoError(t, err)

	for _, l := range res.Lines {
		if graph.PairKey(l.Source, l.Target) == graph.PairKey("A", "X") {
			assert.Equal(t, NeutralCategory, l.Category)
			assert.Equal(t, res.Colors[0], l.Color)
			assert.True(t, l.Neutral)
		} else {
			assert.Equal(t, 2, l.Category)
			assert.False(t, l.Neutral)
		}
	}

	for _, b := range res.Buffered {
		if graph.PairKey(b.Source, b.Target) == graph.PairKey("A", "X") {
			assert.Equal(t, NeutralCategory, b.Category)
		}
	}
	// neutral lines never reach a trip time band
	assert.False(t, res.Unions[0].Region.Contains(orb.Point{50, 0}))
	assert.True(t, res.Unions[0].Region.Contains(orb.Point{150, 0}))

	for _, e := range res.Graph.Edges() {
		require.True(t, e.Categorized)
		if e.Source == "A" || e.Target == "A" {
			assert.Equal(t, NeutralCategory, e.Category)
		}
	}
}

func TestCompute_GraphWriteBack(t *testing.T) {
	g := corridor(t)
	res, err := Compute(context.Background(), g, Options{
		TripTimes:      []int{2},
		DistanceBuffer: 5,
		Origins:        []graph.NodeID{"A"},
	})
	require.NoError(t, err)

	for _, e := range g.Edges() {
		assert.False(t, e.Categorized, "input graph must be untouched")
	}
	for _, e := range res.Graph.Edges() {
		if graph.PairKey(e.Source, e.Target) == graph.PairKey("A", "X") {
			assert.True(t, e.Categorized)
			assert.Equal(t, 2, e.Category)
			assert.Equal(t, res.Colors[2], e.Color)
		} else {
			assert.False(t, e.Categorized)
		}
	}
}

func TestCompute_ProblemNodes(t *testing.T) {
	res, err := Compute(context.Background(), square(t), Options{
		TripTimes:      []int{2, 5},
		DistanceBuffer: 10,
		Origins:        []graph.NodeID{"ghost", "1", "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, []graph.NodeID{"ghost"}, res.ProblemNodes)
	assert.NotEmpty(t, res.Lines)
}

func TestCompute_Undirected(t *testing.T) {
	res, err := Compute(context.Background(), square(t), Options{
		TripTimes:      []int{2},
		DistanceBuffer: 10,
		Origins:        []graph.NodeID{"1"},
		Undirected:     true,
	})
	require.NoError(t, err)
	cats := categories(res)
	assert.Contains(t, cats, graph.PairKey("4", "1"))
	assert.Contains(t, cats, graph.PairKey("1", "2"))
}

func TestCompute_Reprojects(t *testing.T) {
	g, err := graph.New(
		[]graph.Node{{ID: "a", X: 4.85, Y: 45.75}, {ID: "b", X: 4.851, Y: 45.75}},
		[]graph.Edge{{Source: "a", Target: "b", Length: 78, Time: 1}},
	)
	require.NoError(t, err)

	res, err := Compute(context.Background(), g, Options{
		TripTimes:      []int{5},
		DistanceBuffer: 10,
		Origins:        []graph.NodeID{"a"},
		SourceCRS:      4326,
		MetricCRS:      2154,
	})
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	line := res.Lines[0].Geometry
	assert.InDelta(t, 842000.0, line[0][0], 5000)
	assert.InDelta(t, 6519000.0, line[0][1], 5000)
	assert.InDelta(t, 77.7, planar.Length(line), 0.5)

	_, err = Compute(context.Background(), g, Options{
		TripTimes: []int{5}, DistanceBuffer: 10, SourceCRS: 4326, MetricCRS: 999999,
	})
	assert.ErrorIs(t, err, geo.ErrUnsupportedCRS)
}

// grid is an n x n street grid with step metre blocks, two-way, walked at
// 5 km/h. Node coordinates are exact multiples of step.
func grid(n int, step float64) ([]graph.Node, []graph.Edge) {
	id := func(i, j int) graph.NodeID { return graph.NodeID(fmt.Sprintf("%d_%d", i, j)) }
	var nodes []graph.Node
	var edges []graph.Edge
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			nodes = append(nodes, graph.Node{ID: id(i, j), X: float64(i) * step, Y: float64(j) * step})
			if i+1 < n {
				edges = append(edges,
					graph.Edge{Source: id(i, j), Target: id(i+1, j), Length: step},
					graph.Edge{Source: id(i+1, j), Target: id(i, j), Length: step},
				)
			}
			if j+1 < n {
				edges = append(edges,
					graph.Edge{Source: id(i, j), Target: id(i, j+1), Length: step},
					graph.Edge{Source: id(i, j+1), Target: id(i, j), Length: step},
				)
			}
		}
	}
	return nodes, edges
}

func requireLinesInUnions(t *testing.T, res *Result) {
	t.Helper()
	unions := make(map[int]geo.Region, len(res.Unions))
	for _, u := range res.Unions {
		unions[u.TripTime] = u.Region
	}
	checked := 0
	for _, l := range res.Lines {
		if l.Category <= 0 {
			continue
		}
		u, ok := unions[l.Category]
		require.True(t, ok, "no union for category %d", l.Category)
		a, b := l.Geometry[0], l.Geometry[len(l.Geometry)-1]
		mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
		assert.True(t, u.Contains(mid), "line %s-%s midpoint %v outside union %d", l.Source, l.Target, mid, l.Category)
		checked++
	}
	assert.Positive(t, checked)
}

func TestCompute_GridLinesInsideUnions(t *testing.T) {
	nodes, edges := grid(12, 100)
	g, err := graph.New(nodes, edges)
	require.NoError(t, err)
	g, err = g.WithTime(5000)
	require.NoError(t, err)

	res, err := Compute(context.Background(), g, Options{
		TripTimes:      []int{3, 6, 10},
		DistanceBuffer: 25,
		Origins:        []graph.NodeID{"0_0", "6_6", "11_3"},
	})
	require.NoError(t, err)
	require.Len(t, res.Unions, 3)
	requireLinesInUnions(t, res)
}

func TestCompute_ConnectedGridLinesInsideUnions(t *testing.T) {
	nodes, edges := grid(6, 100)
	// points beside the streets split edges into collinear parts
	points := []splitter.Sample{
		{UniqueID: "p0", Point: orb.Point{30, 10}},
		{UniqueID: "p1", Point: orb.Point{70, -10}},
		{UniqueID: "p2", Point: orb.Point{250, 190}},
		{UniqueID: "p3", Point: orb.Point{310, 420}},
		{UniqueID: "p4", Point: orb.Point{490, 260}},
	}
	net, err := connect.Connect(points, nodes, edges, connect.Options{AccessType: "park"})
	require.NoError(t, err)
	require.Empty(t, net.Rejected)

	g, err := graph.New(net.Nodes, net.Bidirectional())
	require.NoError(t, err)
	g, err = g.WithTime(5000)
	require.NoError(t, err)

	res, err := Compute(context.Background(), g, Options{
		TripTimes:      []int{2, 4, 8},
		DistanceBuffer: 25,
		Origins:        []graph.NodeID{"p0", "p3"},
		Undirected:     true,
	})
	require.NoError(t, err)
	requireLinesInUnions(t, res)
}

func TestCompute_InvalidOptions(t *testing.T) {
	g := square(t)
	_, err := Compute(context.Background(), g, Options{DistanceBuffer: 10})
	assert.Error(t, err)
	_, err = Compute(context.Background(), g, Options{TripTimes: []int{0}, DistanceBuffer: 10})
	assert.Error(t, err)
	_, err = Compute(context.Background(), g, Options{TripTimes: []int{5}})
	assert.Error(t, err)
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, square(t), Options{
		TripTimes:      []int{5},
		DistanceBuffer: 10,
		Origins:        []graph.NodeID{"1"},
	})
	assert.Error(t, err)
}
