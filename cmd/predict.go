package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/aqforecast/app"
)

var predictJSON bool

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast every station once and publish to the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.Service) error {
			rep, err := svc.PredictOnce(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if predictJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			for _, r := range rep.Results {
				if r.Reason != "" {
					fmt.Fprintf(out, "%-12s %-14s %s\n", r.StationID, r.Status, r.Reason)
					continue
				}
				fmt.Fprintf(out, "%-12s %-14s %7.2f µg/m³ from %s\n", r.StationID, r.Status, r.Value, r.ValidFrom.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "%d published, %d failed\n", rep.Succeeded(), rep.Failed())
			return nil
		})
	},
}

func init() {
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the batch report as JSON")
	rootCmd.AddCommand(predictCmd)
}
