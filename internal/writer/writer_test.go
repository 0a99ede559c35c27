package writer

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geodecision/internal/layer"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func bandsLayer() *layer.Layer {
	withHole := orb.Polygon{
		square(0, 0, 10)[0],
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}
	return layer.New("bands", []layer.Feature{
		{Geometry: withHole, Properties: map[string]any{"trip_time": 5, "color": "#440154", "share": 0.25}},
		{Geometry: orb.MultiPolygon{square(20, 0, 5), square(30, 0, 5)}, Properties: map[string]any{"trip_time": 10, "color": "#FDE724", "share": 0.75}},
	})
}

func pointsLayer() *layer.Layer {
	return layer.New("points", []layer.Feature{
		{Geometry: orb.Point{1, 2}, Properties: map[string]any{"unique_id": "park_0", "polygon_identifier_column": 3.0, "tags": []string{"a"}}},
		{Geometry: orb.Point{3, 4}, Properties: map[string]any{"unique_id": "park_1", "polygon_identifier_column": 3.0, "tags": nil}},
	})
}

func TestToGeom(t *testing.T) {
	cases := []orb.Geometry{
		orb.Point{1, 2},
		orb.MultiPoint{{1, 2}, {3, 4}},
		orb.LineString{{0, 0}, {1, 1}},
		orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}, {4, 4}}},
		square(0, 0, 1).Clone()[0],
		square(0, 0, 1),
		orb.MultiPolygon{square(0, 0, 1), square(5, 5, 1)},
	}
	for _, g := range cases {
		t.Run(g.GeoJSONType(), func(t *testing.T) {
			out, err := ToGeom(g, 3857)
			require.NoError(t, err)
			require.NotNil(t, out)
			assert.Equal(t, 3857, out.SRID())
		})
	}

	out, err := ToGeom(nil, 3857)
	assert.NoError(t, err)
	assert.Nil(t, out)

	_, err = ToGeom(orb.Collection{orb.Point{0, 0}}, 3857)
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)
}

func TestEncode(t *testing.T) {
	data, err := EncodeWKB(orb.Point{1, 2})
	require.NoError(t, err)
	require.Len(t, data, 21)
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[1:5]))

	data, err = EncodeEWKB(orb.Point{1, 2}, 4326)
	require.NoError(t, err)
	require.Len(t, data, 25)
	assert.Equal(t, uint32(4326), binary.LittleEndian.Uint32(data[5:9]))

	data, err = EncodeEWKB(nil, 4326)
	assert.NoError(t, err)
	assert.Nil(t, data)
}

func TestSRSDefinition(t *testing.T) {
	def, ok := SRSDefinition(2154)
	require.True(t, ok)
	assert.Contains(t, def, `PARAMETER["standard_parallel_2",44]`)
	assert.True(t, strings.HasSuffix(def, `AUTHORITY["EPSG","2154"]]`))

	def, ok = SRSDefinition(32631)
	require.True(t, ok)
	assert.Contains(t, def, `PROJCS["WGS 84 / UTM zone 31N"`)
	assert.Contains(t, def, `PARAMETER["central_meridian",3]`)
	assert.Contains(t, def, `PARAMETER["false_northing",0]`)

	def, ok = SRSDefinition(32733)
	require.True(t, ok)
	assert.Contains(t, def, `PROJCS["WGS 84 / UTM zone 33S"`)
	assert.Contains(t, def, `PARAMETER["central_meridian",15]`)
	assert.Contains(t, def, `PARAMETER["false_northing",10000000]`)

	_, ok = SRSDefinition(999999)
	assert.False(t, ok)
}

func TestGeoPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.gpkg")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	ctx := context.Background()
	gpkg, err := CreateGeoPackage(ctx, path, 3857)
	require.NoError(t, err)
	require.NoError(t, gpkg.WriteLayer(ctx, bandsLayer()))
	require.NoError(t, gpkg.WriteLayer(ctx, pointsLayer().DropListColumns()))
	require.NoError(t, gpkg.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "bands"`).Scan(&n))
	assert.Equal(t, 2, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM gpkg_contents`).Scan(&n))
	assert.Equal(t, 2, n)

	var gtype string
	var srs int
	require.NoError(t, db.QueryRow(`SELECT geometry_type_name, srs_id FROM gpkg_geometry_columns WHERE table_name = 'points'`).Scan(&gtype, &srs))
	assert.Equal(t, "POINT", gtype)
	assert.Equal(t, 3857, srs)

	var def string
	require.NoError(t, db.QueryRow(`SELECT definition FROM gpkg_spatial_ref_sys WHERE srs_id = 3857`).Scan(&def))
	assert.True(t, strings.HasPrefix(def, `PROJCS["WGS 84 / Pseudo-Mercator"`), def)
	require.NoError(t, db.QueryRow(`SELECT definition FROM gpkg_spatial_ref_sys WHERE srs_id = 4326`).Scan(&def))
	assert.True(t, strings.HasPrefix(def, `GEOGCS["WGS 84"`), def)

	var blob []byte
	var tripTime int
	var color string
	require.NoError(t, db.QueryRow(`SELECT geom, trip_time, color FROM "bands" ORDER BY fid LIMIT 1`).Scan(&blob, &tripTime, &color))
	assert.Equal(t, []byte("GP"), blob[:2])
	assert.Equal(t, uint32(3857), binary.LittleEndian.Uint32(blob[4:8]))
	assert.Equal(t, 5, tripTime)
	assert.Equal(t, "#440154", color)

	var maxX float64
	require.NoError(t, db.QueryRow(`SELECT max_x FROM gpkg_contents WHERE table_name = 'bands'`).Scan(&maxX))
	assert.Equal(t, 35.0, maxX)
}

func TestGeoJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.geojson")
	require.NoError(t, WriteGeoJSON(path, bandsLayer()))

	l, err := layer.ReadGeoJSON(path)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
	assert.Equal(t, 5.0, l.Features[0].Properties["trip_time"])
	assert.Equal(t, "#FDE724", l.Features[1].Properties["color"])
	assert.IsType(t, orb.MultiPolygon{}, l.Features[1].Geometry)
}

func TestShapefile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.shp")
	require.NoError(t, WriteShapefile(path, bandsLayer()))

	l, err := layer.ReadShapefile(path)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())

	p, ok := l.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Equal(t, bandsLayer().Features[0].Geometry, p)
	assert.Equal(t, 5.0, l.Features[0].Properties["trip_time"])
	assert.InDelta(t, 0.25, l.Features[0].Properties["share"], 1e-9)
	assert.Equal(t, "#440154", l.Features[0].Properties["color"])

	mp, ok := l.Features[1].Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)
}

func TestShapefile_Points(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.shp")
	require.NoError(t, WriteShapefile(path, pointsLayer().DropListColumns()))

	l, err := layer.ReadShapefile(path)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
	assert.Equal(t, orb.Point{3, 4}, l.Features[1].Geometry)
	assert.Equal(t, "park_1", l.Features[1].Properties["unique_id"])
	assert.Equal(t, 3.0, l.Features[0].Properties["polygon_id"])
}

func TestShapefile_MixedGeometries(t *testing.T) {
	l := layer.New("mixed", []layer.Feature{{Geometry: orb.Point{0, 0}}, {Geometry: square(0, 0, 1)}})
	err := WriteShapefile(filepath.Join(t.TempDir(), "mixed.shp"), l)
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)
}

func TestFieldNames(t *testing.T) {
	got := fieldNames([]string{"polygon_identifier", "polygon_identity", "id"})
	assert.Equal(t, []string{"polygon_id", "polygon__1", "id"}, got)
}

func TestWritePostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "access"."bands"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "access"."bands" \("fid" integer PRIMARY KEY, "geom" geometry\(Geometry, 3857\), "color" text, "share" double precision, "trip_time" bigint\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"access", "bands"}, []string{"fid", "geom", "color", "share", "trip_time"}).WillReturnResult(2)
	mock.ExpectExec(`CREATE INDEX`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	require.NoError(t, WritePostGIS(context.Background(), mock, "access", bandsLayer(), 3857))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteAll_GeoJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	mixed := layer.New("mixed", []layer.Feature{{Geometry: orb.Point{0, 0}}, {Geometry: orb.Collection{orb.Point{1, 1}}}})

	m, err := WriteAll(context.Background(), []*layer.Layer{pointsLayer(), mixed, bandsLayer()}, Options{
		Format: FormatGeoJSON,
		Dir:    dir,
		SRID:   3857,
		RunID:  "run-1",
	})
	require.NoError(t, err)
	require.Len(t, m.Layers, 3)
	assert.Equal(t, []string{"points", "mixed", "bands"}, m.Written())

	l, err := layer.ReadGeoJSON(filepath.Join(dir, "points.geojson"))
	require.NoError(t, err)
	assert.NotContains(t, l.Features[0].Properties, "tags")

	read, err := ReadManifest(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	assert.Equal(t, "run-1", read.RunID)
	assert.Equal(t, FormatGeoJSON, read.Format)
	assert.Equal(t, 2, read.Layers[2].Features)
}

func TestWriteAll_SkipsFailedLayer(t *testing.T) {
	dir := t.TempDir()
	mixed := layer.New("mixed", []layer.Feature{{Geometry: orb.Point{0, 0}}, {Geometry: square(0, 0, 1)}})

	m, err := WriteAll(context.Background(), []*layer.Layer{mixed, bandsLayer()}, Options{Format: FormatShapefile, Dir: dir})
	require.NoError(t, err)
	require.Len(t, m.Layers, 2)
	assert.NotEmpty(t, m.Layers[0].Error)
	assert.Equal(t, []string{"bands"}, m.Written())
	assert.FileExists(t, filepath.Join(dir, "bands.shp"))
}

func TestWriteAll_GeoPackage(t *testing.T) {
	dir := t.TempDir()
	m, err := WriteAll(context.Background(), []*layer.Layer{pointsLayer(), bandsLayer()}, Options{Format: FormatGeoPackage, Dir: dir, SRID: 3857})
	require.NoError(t, err)
	assert.Equal(t, []string{"points", "bands"}, m.Written())
	assert.FileExists(t, filepath.Join(dir, DefaultGeoPackageName))
}

func TestWriteAll_InvalidOptions(t *testing.T) {
	for _, opts := range []Options{
		{Format: "kml", Dir: t.TempDir()},
		{Format: FormatGeoJSON},
		{Format: FormatPostGIS},
	} {
		t.Run(fmt.Sprintf("%s/%q", opts.Format, opts.Dir), func(t *testing.T) {
			_, err := WriteAll(context.Background(), nil, opts)
			assert.Error(t, err)
		})
	}
}
