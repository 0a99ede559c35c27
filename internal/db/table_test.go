package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bandSpec = TableSpec{
	Table: "access.bands",
	Columns: []Column{
		{Name: "trip_time", Type: "integer"},
		{Name: "geom", Type: "geometry(MultiPolygon, 3857)"},
	},
	SpatialIndex: "geom",
}

func TestReplaceTable_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "access"."bands"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "access"."bands"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"access", "bands"}, []string{"trip_time", "geom"}).WillReturnResult(2)
	mock.ExpectExec(`CREATE INDEX "access_bands_geom_idx"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	n, err := ReplaceTable(context.Background(), mock, bandSpec, [][]any{{5, []byte{1}}, {10, []byte{1}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_EmptyRowsSkipsCopy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	spec := bandSpec
	spec.SpatialIndex = ""
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	n, err := ReplaceTable(context.Background(), mock, spec, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"access", "bands"}, []string{"trip_time", "geom"}).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = ReplaceTable(context.Background(), mock, bandSpec, [][]any{{5, []byte{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO access.bands")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_Validation(t *testing.T) {
	_, err := ReplaceTable(context.Background(), nil, TableSpec{Columns: bandSpec.Columns}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table specified")

	_, err = ReplaceTable(context.Background(), nil, TableSpec{Table: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"access.bands", `"access"."bands"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}
