package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Graph utilities",
}

var (
	graphTimeEdges    string
	graphTimeNodes    string
	graphTimeOutEdges string
	graphTimeOutNodes string
	graphTimeDistance float64
)

var graphTimeCmd = &cobra.Command{
	Use:   "time",
	Short: "Set every edge time from its length and a walking distance per hour",
	RunE: func(cmd *cobra.Command, args []string) error {
		edges, nodes := graphTimeEdges, graphTimeNodes
		if edges == "" {
			edges = cfg.Input.GraphEdges
		}
		if nodes == "" {
			nodes = cfg.Input.GraphNodes
		}
		if edges == "" || nodes == "" {
			return eris.New("graph time: --edges and --nodes are required")
		}
		if graphTimeDistance > 0 {
			cfg.Connect.Distance = graphTimeDistance
		}
		if err := cfg.Validate("graph"); err != nil {
			return err
		}

		g, err := graph.ReadJSON(edges, nodes)
		if err != nil {
			return err
		}
		timed, err := g.WithTime(cfg.Connect.Distance)
		if err != nil {
			return err
		}

		outEdges, outNodes := graphTimeOutEdges, graphTimeOutNodes
		if outEdges == "" {
			outEdges = edges
		}
		if outNodes == "" {
			outNodes = nodes
		}
		if err := timed.WriteJSON(outEdges, outNodes); err != nil {
			return err
		}

		zap.L().Info("graph times written",
			zap.Int("edges", timed.NumEdges()),
			zap.Float64("distance_per_hour", cfg.Connect.Distance),
			zap.String("edges_path", outEdges),
		)
		return nil
	},
}

func init() {
	graphTimeCmd.Flags().StringVar(&graphTimeEdges, "edges", "", "edge list JSON (default input.graph_edges)")
	graphTimeCmd.Flags().StringVar(&graphTimeNodes, "nodes", "", "node map JSON (default input.graph_nodes)")
	graphTimeCmd.Flags().StringVar(&graphTimeOutEdges, "out-edges", "", "output edge list (default overwrites --edges)")
	graphTimeCmd.Flags().StringVar(&graphTimeOutNodes, "out-nodes", "", "output node map (default overwrites --nodes)")
	graphTimeCmd.Flags().Float64Var(&graphTimeDistance, "distance", 0, "distance walked in 60 minutes (default connect.distance)")
	graphCmd.AddCommand(graphTimeCmd)
	rootCmd.AddCommand(graphCmd)
}
