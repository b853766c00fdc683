package cli

import (
	"github.com/spf13/cobra"

	"fx-signal-alerts/internal/app"
)

var (
	simulateCycles int
	simulateSeed   int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the engine over synthetic random-walk ticks",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Cycles: simulateCycles,
			Seed:   simulateSeed,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateCycles, "cycles", 30, "Number of synthetic cycles to run")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "Random seed (0 picks one from the clock)")
}
