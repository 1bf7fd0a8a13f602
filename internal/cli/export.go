package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"exec-feed-sync/internal/app"
)

var (
	exportFrom     string
	exportTo       string
	exportFormat   string
	exportOut      string
	exportMaxPages int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export execution history as CSV, JSON or a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Format:   exportFormat,
			OutPath:  exportOut,
			MaxPages: exportMaxPages,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Output format: csv, json or png (defaults to config)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output path (defaults to a range-stamped name in the export dir)")
	exportCmd.Flags().IntVar(&exportMaxPages, "max-pages", 0, "Maximum pages to fetch (defaults to config)")
}
