package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/aqforecast/app"
)

var roadsCmd = &cobra.Command{
	Use:   "roads",
	Short: "Refresh the major road counts around each station from OpenStreetMap",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.Service) error {
			counts, err := svc.RefreshRoads(ctx)
			for _, st := range svc.Registry.Stations() {
				if n, ok := counts[st.ID]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %4d major roads\n", st.ID, n)
				}
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(roadsCmd)
}
