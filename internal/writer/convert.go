package writer

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// ErrUnsupportedGeometry is returned for geometry types no output can
// store.
var ErrUnsupportedGeometry = eris.New("writer: unsupported geometry")

// ToGeom converts an orb geometry to go-geom, tagged with srid. A nil
// geometry gives nil.
func ToGeom(g orb.Geometry, srid int) (geom.T, error) {
	switch g := g.(type) {
	case nil:
		return nil, nil
	case orb.Point:
		return geom.NewPointFlat(geom.XY, []float64{g[0], g[1]}).SetSRID(srid), nil
	case orb.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, flatCoords(g)).SetSRID(srid), nil
	case orb.LineString:
		return geom.NewLineStringFlat(geom.XY, flatCoords(g)).SetSRID(srid), nil
	case orb.MultiLineString:
		flat, ends := flatParts(lineParts(g))
		return geom.NewMultiLineStringFlat(geom.XY, flat, ends).SetSRID(srid), nil
	case orb.Ring:
		return ToGeom(orb.Polygon{g}, srid)
	case orb.Polygon:
		flat, ends := flatParts(ringParts(g))
		return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(srid), nil
	case orb.MultiPolygon:
		var flat []float64
		endss := make([][]int, 0, len(g))
		for _, p := range g {
			ends := make([]int, 0, len(p))
			for _, r := range p {
				flat = append(flat, flatCoords(r)...)
				ends = append(ends, len(flat))
			}
			endss = append(endss, ends)
		}
		return geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(srid), nil
	}
	return nil, eris.Wrapf(ErrUnsupportedGeometry, "writer: convert %s", g.GeoJSONType())
}

// EncodeEWKB encodes g as little-endian EWKB carrying srid. A nil geometry
// gives nil bytes.
func EncodeEWKB(g orb.Geometry, srid int) ([]byte, error) {
	t, err := ToGeom(g, srid)
	if err != nil || t == nil {
		return nil, err
	}
	data, err := ewkb.Marshal(t, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "writer: encode EWKB")
	}
	return data, nil
}

// EncodeWKB encodes g as little-endian ISO WKB.
func EncodeWKB(g orb.Geometry) ([]byte, error) {
	t, err := ToGeom(g, 0)
	if err != nil || t == nil {
		return nil, err
	}
	data, err := wkb.Marshal(t, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "writer: encode WKB")
	}
	return data, nil
}

func lineParts(mls orb.MultiLineString) [][]orb.Point {
	out := make([][]orb.Point, len(mls))
	for i, ls := range mls {
		out[i] = ls
	}
	return out
}

func ringParts(p orb.Polygon) [][]orb.Point {
	out := make([][]orb.Point, len(p))
	for i, r := range p {
		out[i] = r
	}
	return out
}

// flatParts concatenates parts into go-geom flat coordinates with their
// end offsets.
func flatParts(parts [][]orb.Point) ([]float64, []int) {
	var flat []float64
	ends := make([]int, 0, len(parts))
	for _, p := range parts {
		flat = append(flat, flatCoords(p)...)
		ends = append(ends, len(flat))
	}
	return flat, ends
}

// flatCoords converts points to flat coordinate pairs for go-geom.
func flatCoords[P ~[]orb.Point](pts P) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p[0], p[1])
	}
	return flat
}
