package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fx-signal-alerts/internal/app"
)

var (
	showPair  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent rate samples for a pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if showPair == "" {
			return fmt.Errorf("--pair is required")
		}

		opts := app.ShowOptions{
			PairID: showPair,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showPair, "pair", "", "Pair id to display (e.g. USD_JPY)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
}
