package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Column is a column name and its SQL type.
type Column struct {
	Name string
	Type string
}

// TableSpec describes a table rebuilt by ReplaceTable.
type TableSpec struct {
	Table   string // target table, optionally schema-qualified (e.g. "public.isolines")
	Columns []Column
	// SpatialIndex names a geometry column to index with GiST. Empty skips
	// the index.
	SpatialIndex string
}

// ReplaceTable drops and recreates a table, then COPYs rows into it, all
// in one transaction.
//  1. DROP TABLE IF EXISTS
//  2. CREATE TABLE with the given columns
//  3. COPY rows
//  4. CREATE INDEX ... USING GIST on the spatial column, if any
func ReplaceTable(ctx context.Context, pool Pool, spec TableSpec, rows [][]any) (int64, error) {
	if spec.Table == "" {
		return 0, eris.New("db: replace: no table specified")
	}
	if len(spec.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	table := sanitizeTable(spec.Table)
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return 0, eris.Wrapf(err, "db: replace: drop %s", spec.Table)
	}

	defs := make([]string, len(spec.Columns))
	names := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
		names[i] = c.Name
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: replace: create %s", spec.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, identifier(spec.Table), names, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", spec.Table)
		}
	}

	if spec.SpatialIndex != "" {
		index := strings.ReplaceAll(spec.Table, ".", "_") + "_" + spec.SpatialIndex + "_idx"
		indexSQL := fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (%s)",
			pgx.Identifier{index}.Sanitize(),
			table,
			pgx.Identifier{spec.SpatialIndex}.Sanitize(),
		)
		if _, err := tx.Exec(ctx, indexSQL); err != nil {
			return 0, eris.Wrapf(err, "db: replace: index %s", spec.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	committed = true
	return n, nil
}

// identifier splits a schema-qualified name like "public.isolines".
func identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}
