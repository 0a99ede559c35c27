package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/layer"
	"github.com/sells-group/geodecision/internal/pipeline"
)

var (
	splitFormat string
	splitOutput string
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split polygon boundaries into points and write them",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyOutputFlags(splitFormat, splitOutput)

		points, err := pipeline.SplitPoints(cfg)
		if err != nil {
			return err
		}
		runID := uuid.New().String()
		if _, err := pipeline.WriteLayers(cmd.Context(), []*layer.Layer{points}, cfg, runID); err != nil {
			return err
		}

		zap.L().Info("split complete",
			zap.String("run_id", runID),
			zap.Int("points", points.Len()),
		)
		return nil
	},
}

func init() {
	splitCmd.Flags().StringVar(&splitFormat, "format", "", "output format (default from config)")
	splitCmd.Flags().StringVar(&splitOutput, "output", "", "output folder (default from config)")
	rootCmd.AddCommand(splitCmd)
}
