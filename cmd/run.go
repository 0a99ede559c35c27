package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/pipeline"
)

var (
	runFormat string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full accessibility analysis and write every layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyOutputFlags(runFormat, runOutput)

		res, err := pipeline.Run(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		m, err := pipeline.Write(cmd.Context(), res, cfg)
		if err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.String("run_id", res.RunID),
			zap.Int("layers", len(m.Layers)),
			zap.Int("written", len(m.Written())),
			zap.String("format", m.Format),
		)
		return nil
	},
}

// applyOutputFlags overrides the configured output when flags are set.
func applyOutputFlags(format, folder string) {
	if format != "" {
		cfg.Output.Format = format
	}
	if folder != "" {
		cfg.Output.Folder = folder
	}
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "", "output format: geopackage, geojson, shapefile or postgis (default from config)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output folder (default from config)")
	rootCmd.AddCommand(runCmd)
}
