package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tapewatch", cfg.App.Name)
	assert.Equal(t, time.Second, cfg.Feed.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Feed.BackoffCap)
	assert.Equal(t, 50, cfg.Upstream.PageSize)
	assert.Equal(t, 10000, cfg.Cache.MaxRecords)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "csv", cfg.Export.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
feed:
  url: wss://feed.example.com/stream
  backoff_base: 500ms
  backoff_cap: 10s
upstream:
  base_url: https://api.example.com
  page_size: 25
cache:
  max_records: 500
api:
  listen: ":9090"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://feed.example.com/stream", cfg.Feed.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Feed.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.Feed.BackoffCap)
	assert.Equal(t, 25, cfg.Upstream.PageSize)
	assert.Equal(t, 500, cfg.Cache.MaxRecords)
	assert.Equal(t, ":9090", cfg.API.Listen)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TAPEWATCH_UPSTREAM_PAGE_SIZE", "17")
	t.Setenv("TAPEWATCH_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 17, cfg.Upstream.PageSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"zero page size": `
upstream:
  page_size: 0
`,
		"cap below base": `
feed:
  backoff_base: 10s
  backoff_cap: 1s
`,
		"negative cache": `
cache:
  max_records: -1
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestResolveMaxPages(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxPages: 200}}
	assert.Equal(t, 200, cfg.ResolveMaxPages(0))
	assert.Equal(t, 12, cfg.ResolveMaxPages(12))
}
