package graph

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

// Reserved keys of the JSON edge records and node attribute maps.
const (
	keySource   = "source"
	keyTarget   = "target"
	keyKey      = "key"
	keyLength   = "length"
	keyTime     = "time"
	keyCategory = "iso_cat"
	keyColor    = "color"
	keyX        = "x"
	keyY        = "y"
)

// WriteJSON persists the graph as an edge-list array and a node attribute
// map keyed by id.
func (g *Graph) WriteJSON(edgesPath, nodesPath string) error {
	records := make([]map[string]any, 0, len(g.edges))
	for _, e := range g.edges {
		rec := make(map[string]any, len(e.Attrs)+7)
		for k, v := range e.Attrs {
			rec[k] = v
		}
		rec[keySource] = idValue(e.Source)
		rec[keyTarget] = idValue(e.Target)
		rec[keyKey] = e.Key
		rec[keyLength] = e.Length
		rec[keyTime] = e.Time
		if e.Categorized {
			rec[keyCategory] = e.Category
			rec[keyColor] = e.Color
		}
		records = append(records, rec)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "graph: marshal edges")
	}
	if err := os.WriteFile(edgesPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "graph: write edges %s", edgesPath)
	}

	// nodes keep graph order, so the object is assembled by hand
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range g.nodes {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(n.ID))
		if err != nil {
			return eris.Wrap(err, "graph: marshal node id")
		}
		attrs := make(map[string]any, len(n.Attrs)+2)
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		attrs[keyX] = n.X
		attrs[keyY] = n.Y
		val, err := json.Marshal(attrs)
		if err != nil {
			return eris.Wrapf(err, "graph: marshal node %s", n.ID)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	if err := os.WriteFile(nodesPath, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "graph: write nodes %s", nodesPath)
	}
	return nil
}

// ReadJSON loads a graph written by WriteJSON or by any tool emitting the
// same edge-list and node-map layout. Numeric ids are normalized to their
// int64 decimal form and numeric attributes to float64. Nodes are ordered
// by id.
func ReadJSON(edgesPath, nodesPath string) (*Graph, error) {
	var rawNodes map[string]map[string]any
	if err := decodeFile(nodesPath, &rawNodes); err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(rawNodes))
	for key, attrs := range rawNodes {
		n := Node{ID: normalizeID(key), Attrs: Attrs{}}
		for k, v := range attrs {
			v = normalizeValue(v)
			switch k {
			case keyX:
				n.X, _ = toFloat(v)
			case keyY:
				n.Y, _ = toFloat(v)
			default:
				n.Attrs[k] = v
			}
		}
		nodes = append(nodes, n)
	}
	sort.SliceStable(nodes, func(i, j int) bool { return lessID(nodes[i].ID, nodes[j].ID) })

	var records []map[string]any
	if err := decodeFile(edgesPath, &records); err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(records))
	for _, rec := range records {
		e := Edge{Attrs: Attrs{}}
		for k, raw := range rec {
			v := normalizeValue(raw)
			switch k {
			case keySource:
				e.Source = idFromValue(raw)
			case keyTarget:
				e.Target = idFromValue(raw)
			case keyKey:
				f, _ := toFloat(v)
				e.Key = int(f)
			case keyLength:
				e.Length, _ = toFloat(v)
			case keyTime:
				e.Time, _ = toFloat(v)
			case keyCategory:
				f, ok := toFloat(v)
				e.Category, e.Categorized = int(f), ok
			case keyColor:
				e.Color, _ = v.(string)
			default:
				e.Attrs[k] = v
			}
		}
		edges = append(edges, e)
	}

	g, err := New(nodes, edges)
	if err != nil {
		return nil, eris.Wrap(err, "graph: read json")
	}
	return g, nil
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "graph: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(err, "graph: decode %s", path)
	}
	return nil
}

// idValue writes numeric ids as JSON integers.
func idValue(id NodeID) any {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return n
	}
	return string(id)
}

func idFromValue(v any) NodeID {
	switch n := v.(type) {
	case json.Number:
		return normalizeID(n.String())
	case string:
		return normalizeID(n)
	case float64:
		if n == float64(int64(n)) {
			return NodeID(strconv.FormatInt(int64(n), 10))
		}
		return NodeID(strconv.FormatFloat(n, 'f', -1, 64))
	}
	return ""
}

func normalizeID(s string) NodeID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NodeID(strconv.FormatInt(n, 10))
	}
	return NodeID(s)
}

// normalizeValue turns every json.Number, nested ones included, into a
// float64.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case []any:
		for i := range n {
			n[i] = normalizeValue(n[i])
		}
		return n
	case map[string]any:
		for k := range n {
			n[k] = normalizeValue(n[k])
		}
		return n
	}
	return v
}
