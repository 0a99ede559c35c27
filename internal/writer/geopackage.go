package writer

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geodecision/internal/layer"
)

const gpkgSchema = `
PRAGMA application_id = 1196444487;
PRAGMA user_version = 10300;

CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

// GeoPackage is an OGC GeoPackage file holding one table per layer.
type GeoPackage struct {
	db   *sql.DB
	srid int
}

// CreateGeoPackage creates an empty GeoPackage at path whose layers are
// in srid. An existing file is erased first.
func CreateGeoPackage(ctx context.Context, path string, srid int) (*GeoPackage, error) {
	if err := erase(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "geopackage: open")
	}
	if _, err := db.ExecContext(ctx, gpkgSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "geopackage: create schema")
	}
	srids := []int{4326}
	if srid > 0 && srid != 4326 {
		srids = append(srids, srid)
	}
	for _, code := range srids {
		def, ok := SRSDefinition(code)
		if !ok {
			def = "undefined"
			zap.L().With(zap.String("component", "writer.geopackage")).Warn("no wkt for srs, definition left undefined",
				zap.Int("srid", code),
			)
		}
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition) VALUES (?, ?, 'EPSG', ?, ?)`,
			fmt.Sprintf("EPSG:%d", code), code, code, def,
		)
		if err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "geopackage: register srs %d", code)
		}
	}
	return &GeoPackage{db: db, srid: srid}, nil
}

// Close closes the underlying database.
func (g *GeoPackage) Close() error {
	return g.db.Close()
}

// WriteLayer stores l as a feature table named after it.
func (g *GeoPackage) WriteLayer(ctx context.Context, l *layer.Layer) error {
	cols := l.Columns()
	types := columnTypes(l, cols)
	gtype := gpkgGeometryType(l.GeometryType())

	defs := []string{`"fid" INTEGER PRIMARY KEY AUTOINCREMENT`, `"geom" ` + gtype}
	for i, c := range cols {
		defs = append(defs, quoteIdent(c)+" "+types[i])
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "geopackage: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	table := quoteIdent(l.Name)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))); err != nil {
		return eris.Wrapf(err, "geopackage: create table %s", l.Name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
	names := []string{`"geom"`}
	for _, c := range cols {
		names = append(names, quoteIdent(c))
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders))
	if err != nil {
		return eris.Wrapf(err, "geopackage: prepare insert %s", l.Name)
	}
	defer stmt.Close()

	bound := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for i, f := range l.Features {
		blob, err := gpkgBlob(f.Geometry, g.srid)
		if err != nil {
			return eris.Wrapf(err, "geopackage: feature %d of %s", i, l.Name)
		}
		if !isEmpty(f.Geometry) {
			bound = bound.Union(f.Geometry.Bound())
		}
		args := make([]any, 0, len(cols)+1)
		args = append(args, blob)
		for j, c := range cols {
			args = append(args, sqlValue(f.Properties[c], types[j]))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "geopackage: insert feature %d of %s", i, l.Name)
		}
	}

	var minX, minY, maxX, maxY any
	if !math.IsInf(bound.Min[0], 1) {
		minX, minY, maxX, maxY = bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id) VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Name, minX, minY, maxX, maxY, g.srsID(),
	); err != nil {
		return eris.Wrapf(err, "geopackage: register contents %s", l.Name)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, 'geom', ?, ?, 0, 0)`,
		l.Name, gtype, g.srsID(),
	); err != nil {
		return eris.Wrapf(err, "geopackage: register geometry column %s", l.Name)
	}

	return eris.Wrapf(tx.Commit(), "geopackage: commit %s", l.Name)
}

func (g *GeoPackage) srsID() int {
	if g.srid > 0 {
		return g.srid
	}
	return -1
}

// gpkgBlob wraps WKB in the GeoPackage binary header: magic, version 0,
// little-endian flags without envelope, then the srs id.
func gpkgBlob(geometry orb.Geometry, srid int) ([]byte, error) {
	if geometry == nil {
		return nil, nil
	}
	body, err := EncodeWKB(geometry)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, 8, 8+len(body))
	blob[0], blob[1], blob[2], blob[3] = 'G', 'P', 0, 0x01
	binary.LittleEndian.PutUint32(blob[4:], uint32(int32(srid)))
	return append(blob, body...), nil
}

// gpkgGeometryType maps an orb type name to a GeoPackage geometry type.
func gpkgGeometryType(t string) string {
	switch t {
	case "Point", "LineString", "Polygon", "MultiPoint", "MultiLineString", "MultiPolygon":
		return strings.ToUpper(t)
	}
	return "GEOMETRY"
}

// columnTypes picks an SQLite type per column: INTEGER or REAL when every
// non-null value is numeric, BOOLEAN for booleans, TEXT otherwise.
func columnTypes(l *layer.Layer, cols []string) []string {
	types := make([]string, len(cols))
	for i, c := range cols {
		t := ""
		for _, f := range l.Features {
			v, ok := f.Properties[c]
			if !ok || v == nil {
				continue
			}
			t = widen(t, valueType(v))
		}
		if t == "" {
			t = "TEXT"
		}
		types[i] = t
	}
	return types
}

func valueType(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "INTEGER"
	case float32, float64:
		return "REAL"
	case bool:
		return "BOOLEAN"
	}
	return "TEXT"
}

func widen(cur, next string) string {
	switch {
	case cur == "" || cur == next:
		return next
	case (cur == "INTEGER" && next == "REAL") || (cur == "REAL" && next == "INTEGER"):
		return "REAL"
	}
	return "TEXT"
}

func sqlValue(v any, typ string) any {
	if v == nil {
		return nil
	}
	if typ == "TEXT" {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
