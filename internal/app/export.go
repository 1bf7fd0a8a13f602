package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"exec-feed-sync/internal/export"
	"exec-feed-sync/internal/query"
)

// Export fetches execution history over REST and writes it as CSV, JSON or a
// PNG chart. Runs fully offline from the websocket feed.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if a.Config.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url not configured")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	format := opts.Format
	if format == "" {
		format = a.Config.Export.Format
	}
	maxPages := a.Config.ResolveMaxPages(opts.MaxPages)

	client := a.newUpstream()
	records, err := a.backfill(ctx, client, rangeFilter(opts.From, opts.To), query.DefaultSort(), maxPages)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no executions found for export window")
		return nil
	}

	data, err := export.Encode(format, records)
	if err != nil {
		return err
	}

	path := opts.OutPath
	if path == "" {
		from, to := export.Range(records)
		path = filepath.Join(a.Config.Export.Dir, export.Filename(format, from, to))
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}

	a.Logger.Info().
		Int("records", len(records)).
		Str("format", format).
		Str("path", path).
		Msg("export written")
	fmt.Fprintf(os.Stdout, "wrote %d executions to %s\n", len(records), path)
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
