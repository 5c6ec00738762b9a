package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/aqforecast/app"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training cycle and write the artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.Service) error {
			rep, err := svc.TrainOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d timesteps, %d samples, %d epochs, final loss %.6f in %s\n",
				rep.RunID, rep.Timesteps, rep.Samples, rep.Epochs, rep.FinalLoss, rep.Duration)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
