package writer

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/db"
	"github.com/sells-group/geodecision/internal/layer"
)

var pgTypes = map[string]string{
	"INTEGER": "bigint",
	"REAL":    "double precision",
	"BOOLEAN": "boolean",
	"TEXT":    "text",
}

// WritePostGIS replaces the table named after l, in schema when set, and
// loads the features with COPY. Geometries go in as EWKB.
func WritePostGIS(ctx context.Context, pool db.Pool, schema string, l *layer.Layer, srid int) error {
	table := l.Name
	if schema != "" {
		table = schema + "." + l.Name
	}

	cols := l.Columns()
	types := columnTypes(l, cols)

	geomType := "geometry(Geometry)"
	if srid > 0 {
		geomType = fmt.Sprintf("geometry(Geometry, %d)", srid)
	}
	spec := db.TableSpec{
		Table: table,
		Columns: []db.Column{
			{Name: "fid", Type: "integer PRIMARY KEY"},
			{Name: "geom", Type: geomType},
		},
		SpatialIndex: "geom",
	}
	for i, c := range cols {
		spec.Columns = append(spec.Columns, db.Column{Name: c, Type: pgTypes[types[i]]})
	}

	rows := make([][]any, 0, len(l.Features))
	for i, f := range l.Features {
		data, err := EncodeEWKB(f.Geometry, srid)
		if err != nil {
			return eris.Wrapf(err, "postgis: feature %d of %s", i, l.Name)
		}
		row := make([]any, 0, len(cols)+2)
		row = append(row, int32(i+1), data)
		for j, c := range cols {
			row = append(row, pgValue(f.Properties[c], types[j]))
		}
		rows = append(rows, row)
	}

	var n int64
	err := db.Retry(ctx, db.DefaultRetryConfig(), "replace "+table, func(ctx context.Context) error {
		var err error
		n, err = db.ReplaceTable(ctx, pool, spec, rows)
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "postgis: write %s", table)
	}
	zap.L().With(zap.String("component", "writer.postgis")).Debug("table loaded",
		zap.String("table", table),
		zap.Int64("rows", n),
	)
	return nil
}

func pgValue(v any, typ string) any {
	if v == nil {
		return nil
	}
	switch typ {
	case "INTEGER":
		if i, ok := toInt(v); ok {
			return int64(i)
		}
	case "REAL":
		if f, ok := toFloat64(v); ok {
			return f
		}
	case "BOOLEAN":
		if b, ok := v.(bool); ok {
			return b
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
