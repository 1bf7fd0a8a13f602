package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"exec-feed-sync/internal/app"
)

var (
	showLimit   int
	showAccount string
	showStatus  string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:   showLimit,
			Account: showAccount,
			Status:  showStatus,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of executions to display")
	showCmd.Flags().StringVar(&showAccount, "account", "", "Filter by account")
	showCmd.Flags().StringVar(&showStatus, "status", "", "Filter by status")
}
