package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/config"
	"github.com/sells-group/geodecision/internal/db"
	"github.com/sells-group/geodecision/internal/layer"
	"github.com/sells-group/geodecision/internal/writer"
)

// Write persists every layer of res and, when configured, the
// categorized graph as JSON.
func Write(ctx context.Context, res *Result, cfg *config.Config) (*writer.Manifest, error) {
	if cfg.Output.GraphEdges != "" && cfg.Output.GraphNodes != "" && res.Graph != nil {
		if err := res.Graph.WriteJSON(cfg.Output.GraphEdges, cfg.Output.GraphNodes); err != nil {
			return nil, err
		}
		zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", res.RunID)).Info("pipeline: graph written",
			zap.String("edges", cfg.Output.GraphEdges),
			zap.String("nodes", cfg.Output.GraphNodes),
		)
	}
	return WriteLayers(ctx, res.Layers(), cfg, res.RunID)
}

// WriteLayers writes layers with the configured output format. The
// postgis format opens a pool for the duration of the write.
func WriteLayers(ctx context.Context, layers []*layer.Layer, cfg *config.Config, runID string) (*writer.Manifest, error) {
	opts := writer.Options{
		Format:         cfg.Output.Format,
		Dir:            cfg.Output.Folder,
		SRID:           cfg.Output.CRS,
		GeoPackageName: cfg.Output.GeoPackageName,
		Schema:         cfg.Output.Schema,
		RunID:          runID,
	}
	if opts.Format == writer.FormatPostGIS {
		pool, err := db.ConnectWithRetry(ctx, cfg.Output.DatabaseURL, 4, db.DefaultRetryConfig())
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		opts.Pool = pool
	}
	return writer.WriteAll(ctx, layers, opts)
}
