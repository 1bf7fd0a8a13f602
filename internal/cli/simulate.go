package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"exec-feed-sync/internal/app"
)

var (
	simulateRecords int
	simulateFormat  string
	simulateOut     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive the engine from a synthetic feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateRecords <= 0 {
			return errors.New("--records must be greater than zero")
		}

		opts := app.SimulateOptions{
			Records: simulateRecords,
			Format:  simulateFormat,
			OutPath: simulateOut,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateRecords, "records", 100, "Number of executions to generate")
	simulateCmd.Flags().StringVar(&simulateFormat, "format", "", "Also export the result: csv, json or png")
	simulateCmd.Flags().StringVar(&simulateOut, "out", "", "Export path (implies --format from config when unset)")
}
