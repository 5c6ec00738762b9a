package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/aqforecast/config"
	"github.com/kilianp07/aqforecast/core/graph"
	"github.com/kilianp07/aqforecast/core/model"
)

var graphThreshold float64

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the station adjacency graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}
		threshold := cfg.Graph.ThresholdKm
		if graphThreshold > 0 {
			threshold = graphThreshold
		}
		g, err := graph.Build(reg.Stations(), threshold)
		if err != nil {
			return err
		}
		printGraph(cmd.OutOrStdout(), reg, g)
		return nil
	},
}

func printGraph(w io.Writer, reg *model.StationRegistry, g graph.Graph) {
	fmt.Fprintf(w, "%d stations, %d links within %.1f km\n", g.Nodes, len(g.Edges)/2, g.ThresholdKm)
	for _, e := range g.Edges {
		if e.From > e.To {
			continue
		}
		fmt.Fprintf(w, "%-12s -- %-12s %6.2f km\n", reg.At(e.From).ID, reg.At(e.To).ID, e.DistanceKm)
	}
	for i := 0; i < reg.Len(); i++ {
		if len(g.Neighbors(i)) == 0 {
			fmt.Fprintf(w, "%-12s isolated\n", reg.At(i).ID)
		}
	}
}

func init() {
	graphCmd.Flags().Float64Var(&graphThreshold, "threshold", 0, "override graph.threshold_km")
	rootCmd.AddCommand(graphCmd)
}
