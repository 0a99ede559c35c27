// Package writer persists pipeline layers as GeoPackage, GeoJSON,
// shapefile or PostGIS tables.
package writer

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/db"
	"github.com/sells-group/geodecision/internal/layer"
)

// Output formats.
const (
	FormatGeoPackage = "geopackage"
	FormatGeoJSON    = "geojson"
	FormatShapefile  = "shapefile"
	FormatPostGIS    = "postgis"
)

// DefaultGeoPackageName is the file every layer goes into with the
// geopackage format.
const DefaultGeoPackageName = "output.gpkg"

// Formats lists the supported output formats.
var Formats = []string{FormatGeoPackage, FormatGeoJSON, FormatShapefile, FormatPostGIS}

// Options configures WriteAll.
type Options struct {
	Format string
	// Dir receives file outputs and the run manifest.
	Dir string
	// SRID tags written geometries.
	SRID           int
	GeoPackageName string
	// Pool and Schema are used by the postgis format.
	Pool   db.Pool
	Schema string
	RunID  string
}

// WriteAll writes every layer in order. List-valued columns are dropped
// first. A layer that cannot be written is logged, recorded in the
// manifest and skipped; only setup failures are returned.
func WriteAll(ctx context.Context, layers []*layer.Layer, opts Options) (*Manifest, error) {
	log := zap.L().With(zap.String("component", "writer"), zap.String("run_id", opts.RunID))

	switch opts.Format {
	case FormatGeoPackage, FormatGeoJSON, FormatShapefile:
		if opts.Dir == "" {
			return nil, eris.Errorf("writer: %s output needs a directory", opts.Format)
		}
	case FormatPostGIS:
		if opts.Pool == nil {
			return nil, eris.New("writer: postgis output needs a database pool")
		}
	default:
		return nil, eris.Errorf("writer: unsupported format %q", opts.Format)
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "writer: create %s", opts.Dir)
		}
	}

	m := &Manifest{
		RunID:     opts.RunID,
		CreatedAt: time.Now().UTC(),
		Format:    opts.Format,
		SRID:      opts.SRID,
	}

	var gpkg *GeoPackage
	if opts.Format == FormatGeoPackage {
		var err error
		gpkg, err = CreateGeoPackage(ctx, filepath.Join(opts.Dir, gpkgName(opts)), opts.SRID)
		if err != nil {
			return nil, err
		}
		defer gpkg.Close()
	}

	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			return m, eris.Wrap(err, "writer: write layers")
		}
		start := time.Now()
		clean := l.DropListColumns()
		entry := ManifestLayer{
			Name:         l.Name,
			Features:     clean.Len(),
			GeometryType: clean.GeometryType(),
		}

		var err error
		switch opts.Format {
		case FormatGeoPackage:
			entry.Target = filepath.Join(opts.Dir, gpkgName(opts))
			err = gpkg.WriteLayer(ctx, clean)
		case FormatGeoJSON:
			entry.Target = filepath.Join(opts.Dir, l.Name+".geojson")
			err = WriteGeoJSON(entry.Target, clean)
		case FormatShapefile:
			entry.Target = filepath.Join(opts.Dir, l.Name+".shp")
			err = WriteShapefile(entry.Target, clean)
		case FormatPostGIS:
			entry.Target = l.Name
			if opts.Schema != "" {
				entry.Target = opts.Schema + "." + l.Name
			}
			err = WritePostGIS(ctx, opts.Pool, opts.Schema, clean, opts.SRID)
		}

		if err != nil {
			entry.Error = err.Error()
			log.Warn("can't write layer, skipping",
				zap.String("layer", l.Name),
				zap.Error(err),
			)
		} else {
			log.Info("layer written",
				zap.String("layer", l.Name),
				zap.String("target", entry.Target),
				zap.Int("features", entry.Features),
				zap.Duration("duration", time.Since(start)),
			)
		}
		m.Layers = append(m.Layers, entry)
	}

	if opts.Dir != "" {
		if err := WriteManifest(filepath.Join(opts.Dir, ManifestName), m); err != nil {
			return m, err
		}
	}
	return m, nil
}

func gpkgName(opts Options) string {
	if opts.GeoPackageName != "" {
		return opts.GeoPackageName
	}
	return DefaultGeoPackageName
}

// erase removes path if it exists.
func erase(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return eris.Wrapf(err, "writer: erase %s", path)
}

// isEmpty reports whether g has no coordinates.
func isEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		return len(g) == 0
	case orb.Ring:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0
	case orb.MultiPolygon:
		return len(g) == 0
	case orb.Collection:
		return len(g) == 0
	}
	return false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
