package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// squareGraph is a 100m square walked at 5 km/h, one edge per direction
// of travel around the loop.
func squareGraph(t *testing.T) *Graph {
	t.Helper()
	nodes := []Node{
		{ID: "1", X: 0, Y: 0},
		{ID: "2", X: 100, Y: 0},
		{ID: "3", X: 100, Y: 100},
		{ID: "4", X: 0, Y: 100},
	}
	edges := []Edge{
		{Source: "1", Target: "2", Length: 100},
		{Source: "2", Target: "3", Length: 100},
		{Source: "3", Target: "4", Length: 100},
		{Source: "4", Target: "1", Length: 100},
	}
	g, err := New(nodes, edges)
	require.NoError(t, err)
	g, err = g.WithTime(5000)
	require.NoError(t, err)
	return g
}

func TestNew(t *testing.T) {
	g, err := New(
		[]Node{{ID: "a"}, {ID: "b"}},
		[]Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: ""},
			{Source: "a", Target: "zzz"},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, g.NumNodes())
	assert.Equal(t, 1, g.NumEdges())
	assert.Equal(t, 2, g.SkippedEdges())
	assert.Equal(t, []int{0}, g.Out("a"))
	assert.Equal(t, []int{0}, g.In("b"))

	_, err = New([]Node{{ID: "a"}, {ID: "a"}}, nil)
	assert.Error(t, err)
}

func TestFromEdgeList(t *testing.T) {
	nodes := []Node{{ID: "a"}, {ID: "b"}, {ID: "isolated"}}
	g := FromEdgeList(nodes, []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: ""},
	})
	assert.Equal(t, 2, g.NumNodes())
	assert.False(t, g.HasNode("isolated"))
	assert.Equal(t, 1, g.SkippedEdges())
}

func TestWithTime(t *testing.T) {
	g := squareGraph(t)
	for _, e := range g.Edges() {
		assert.InDelta(t, 1.2, e.Time, 1e-12)
	}

	_, err := g.WithTime(0)
	assert.Error(t, err)
}

func TestWeight(t *testing.T) {
	e := Edge{Length: 10, Time: 2, Attrs: Attrs{"cost": 7.5, "label": "x"}}
	assert.Equal(t, 2.0, Weight(e, WeightTime))
	assert.Equal(t, 10.0, Weight(e, WeightLength))
	assert.Equal(t, 7.5, Weight(e, "cost"))
	assert.Equal(t, 1.0, Weight(e, "label"))
	assert.Equal(t, 1.0, Weight(e, "missing"))
}

func TestEgoGraph(t *testing.T) {
	g := squareGraph(t)

	t.Run("directed", func(t *testing.T) {
		ego, err := g.EgoGraph("1", 2.5, WeightTime, false)
		require.NoError(t, err)
		assert.Len(t, ego.Dist, 3)
		assert.InDelta(t, 2.4, ego.Dist["3"], 1e-12)
		assert.Equal(t, []int{0, 1}, ego.Edges)
	})

	t.Run("undirected", func(t *testing.T) {
		ego, err := g.EgoGraph("1", 1.25, WeightTime, true)
		require.NoError(t, err)
		assert.Len(t, ego.Dist, 3)
		assert.Contains(t, ego.Dist, NodeID("4"))
		assert.Equal(t, []int{0, 3}, ego.Edges)
	})

	t.Run("radius zero keeps center", func(t *testing.T) {
		ego, err := g.EgoGraph("1", 0, WeightTime, true)
		require.NoError(t, err)
		assert.Len(t, ego.Dist, 1)
		assert.Empty(t, ego.Edges)
	})

	t.Run("induced edges", func(t *testing.T) {
		ego, err := g.EgoGraph("1", 5, WeightTime, false)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2, 3}, ego.Edges)
	})

	t.Run("unknown center", func(t *testing.T) {
		_, err := g.EgoGraph("nope", 5, WeightTime, false)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestEdgeLine(t *testing.T) {
	g := squareGraph(t)
	assert.Equal(t, orb.LineString{{0, 0}, {100, 0}}, g.EdgeLine(0))
}

func TestClone(t *testing.T) {
	g := squareGraph(t)
	c := g.Clone()
	c.SetCategory(0, 5, "#fff")

	assert.True(t, c.Edge(0).Categorized)
	assert.False(t, g.Edge(0).Categorized)
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}

func TestSortIDs(t *testing.T) {
	ids := []NodeID{"10", "b", "9", "a", "100"}
	SortIDs(ids)
	assert.Equal(t, []NodeID{"9", "10", "100", "a", "b"}, ids)
}

func TestJSONRoundTrip(t *testing.T) {
	nodes := []Node{
		{ID: "9990000000", X: 1.5, Y: 2.5, Attrs: Attrs{"highway": "projected_pap"}},
		{ID: "park_1", X: 3, Y: 4, Attrs: Attrs{"access_type": "park"}},
		{ID: "42", X: 5, Y: 6, Attrs: Attrs{"street_count": 3.0}},
	}
	edges := []Edge{
		{Source: "park_1", Target: "9990000000", Key: 0, Length: 12.5, Time: 0.15, Attrs: Attrs{"highway": "projected_footway", "oneway": false}},
		{Source: "42", Target: "9990000000", Key: 1, Length: 3, Time: 0.036, Category: 5, Categorized: true, Color: "#440154", Attrs: Attrs{}},
	}
	g, err := New(nodes, edges)
	require.NoError(t, err)

	dir := t.TempDir()
	ep, np := filepath.Join(dir, "edges.json"), filepath.Join(dir, "nodes.json")
	require.NoError(t, g.WriteJSON(ep, np))

	back, err := ReadJSON(ep, np)
	require.NoError(t, err)
	require.Equal(t, 3, back.NumNodes())
	require.Equal(t, 2, back.NumEdges())

	for _, want := range nodes {
		got, ok := back.Node(want.ID)
		require.True(t, ok, want.ID)
		assert.Equal(t, want.X, got.X)
		assert.Equal(t, want.Y, got.Y)
		assert.Equal(t, want.Attrs, got.Attrs)
	}
	assert.Equal(t, []NodeID{"42", "9990000000", "park_1"}, []NodeID{
		back.Nodes()[0].ID, back.Nodes()[1].ID, back.Nodes()[2].ID,
	})

	assert.Equal(t, edges[0].Source, back.Edge(0).Source)
	assert.Equal(t, edges[0].Attrs, back.Edge(0).Attrs)
	assert.Equal(t, 12.5, back.Edge(0).Length)
	assert.False(t, back.Edge(0).Categorized)

	assert.Equal(t, 1, back.Edge(1).Key)
	assert.Equal(t, 5, back.Edge(1).Category)
	assert.True(t, back.Edge(1).Categorized)
	assert.Equal(t, "#440154", back.Edge(1).Color)
}

func TestReadJSON_NormalizesIDs(t *testing.T) {
	dir := t.TempDir()
	ep, np := filepath.Join(dir, "edges.json"), filepath.Join(dir, "nodes.json")
	require.NoError(t, writeFile(ep, `[{"source": 7, "target": "8", "time": 1, "lanes": 2}]`))
	require.NoError(t, writeFile(np, `{"7": {"x": 0, "y": 0}, "08": {"x": 1, "y": 1}}`))

	g, err := ReadJSON(ep, np)
	require.NoError(t, err)
	assert.True(t, g.HasNode("8"))
	require.Equal(t, 1, g.NumEdges())
	assert.Equal(t, NodeID("7"), g.Edge(0).Source)
	assert.Equal(t, 2.0, g.Edge(0).Attrs["lanes"])
	assert.Equal(t, 1.0, g.Edge(0).Time)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
