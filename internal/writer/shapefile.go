package writer

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geodecision/internal/layer"
)

// dBASE field names are limited to 10 bytes.
const maxFieldName = 10

// WriteShapefile writes l to path (.shp, with .shx and .dbf beside it).
// Every feature must share one shape family: points, lines or polygons.
func WriteShapefile(path string, l *layer.Layer) error {
	shapeType, err := shapeTypeOf(l)
	if err != nil {
		return err
	}
	if err := eraseShapefile(path); err != nil {
		return err
	}

	cols := l.Columns()
	types := columnTypes(l, cols)
	names := fieldNames(cols)
	fields := make([]shp.Field, len(cols))
	for i := range cols {
		switch types[i] {
		case "INTEGER":
			fields[i] = shp.NumberField(names[i], 18)
		case "REAL":
			fields[i] = shp.FloatField(names[i], 24, 8)
		default:
			fields[i] = shp.StringField(names[i], 254)
		}
	}
	if len(fields) == 0 {
		fields = []shp.Field{shp.NumberField("fid", 10)}
	}

	w, err := shp.Create(path, shapeType)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %s", path)
	}
	defer w.Close()
	if err := w.SetFields(fields); err != nil {
		return eris.Wrapf(err, "shapefile: set fields %s", path)
	}

	for i, f := range l.Features {
		row := int(w.Write(toShape(f.Geometry, shapeType)))
		if len(cols) == 0 {
			if err := w.WriteAttribute(row, 0, i); err != nil {
				return eris.Wrapf(err, "shapefile: write fid %d", i)
			}
			continue
		}
		for j, c := range cols {
			v := f.Properties[c]
			if v == nil {
				continue
			}
			if err := w.WriteAttribute(row, j, dbfValue(v, types[j])); err != nil {
				return eris.Wrapf(err, "shapefile: write %s of feature %d", c, i)
			}
		}
	}
	return nil
}

func shapeTypeOf(l *layer.Layer) (shp.ShapeType, error) {
	switch l.GeometryType() {
	case "Point":
		return shp.POINT, nil
	case "LineString", "MultiLineString":
		return shp.POLYLINE, nil
	case "Polygon", "MultiPolygon":
		return shp.POLYGON, nil
	case "":
		return shp.POINT, nil
	}
	// lines and multilines, or polygons and multipolygons, mix fine
	family := ""
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		var fam string
		switch f.Geometry.(type) {
		case orb.LineString, orb.MultiLineString:
			fam = "line"
		case orb.Polygon, orb.MultiPolygon:
			fam = "polygon"
		default:
			return 0, eris.Wrapf(ErrUnsupportedGeometry, "shapefile: mixed geometries in %s", l.Name)
		}
		if family != "" && fam != family {
			return 0, eris.Wrapf(ErrUnsupportedGeometry, "shapefile: mixed geometries in %s", l.Name)
		}
		family = fam
	}
	if family == "line" {
		return shp.POLYLINE, nil
	}
	return shp.POLYGON, nil
}

func toShape(g orb.Geometry, shapeType shp.ShapeType) shp.Shape {
	switch g := g.(type) {
	case orb.Point:
		return &shp.Point{X: g[0], Y: g[1]}
	case orb.LineString:
		return shp.NewPolyLine([][]shp.Point{shpPoints(g)})
	case orb.MultiLineString:
		parts := make([][]shp.Point, len(g))
		for i, ls := range g {
			parts[i] = shpPoints(ls)
		}
		return shp.NewPolyLine(parts)
	case orb.Polygon:
		return newPolygon(polygonParts(orb.MultiPolygon{g}))
	case orb.MultiPolygon:
		return newPolygon(polygonParts(g))
	}
	// missing geometries become empty shapes of the layer type
	switch shapeType {
	case shp.POLYLINE:
		return shp.NewPolyLine(nil)
	case shp.POLYGON:
		return newPolygon(nil)
	}
	return &shp.Point{}
}

func newPolygon(parts [][]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

// polygonParts orders shells clockwise and holes counter-clockwise, as
// shapefiles expect.
func polygonParts(mp orb.MultiPolygon) [][]shp.Point {
	var parts [][]shp.Point
	for _, p := range mp {
		for i, r := range p {
			cw := r.Orientation() == orb.CW
			if (i == 0) != cw {
				r = reversed(r)
			}
			parts = append(parts, shpPoints(r))
		}
	}
	return parts
}

func reversed(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

func shpPoints[P ~[]orb.Point](pts P) []shp.Point {
	out := make([]shp.Point, len(pts))
	for i, p := range pts {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

func dbfValue(v any, typ string) any {
	switch typ {
	case "INTEGER":
		if i, ok := toInt(v); ok {
			return i
		}
	case "REAL":
		if f, ok := toFloat64(v); ok {
			return f
		}
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return truncate(s, 254)
}

// fieldNames truncates column names to the dBASE limit, numbering
// collisions.
func fieldNames(cols []string) []string {
	used := make(map[string]bool, len(cols))
	out := make([]string, len(cols))
	for i, c := range cols {
		name := truncate(c, maxFieldName)
		for n := 1; used[strings.ToLower(name)]; n++ {
			suffix := fmt.Sprintf("_%d", n)
			name = truncate(c, maxFieldName-len(suffix)) + suffix
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func eraseShapefile(path string) error {
	base := strings.TrimSuffix(path, ".shp")
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		if err := erase(base + ext); err != nil {
			return err
		}
	}
	return nil
}
