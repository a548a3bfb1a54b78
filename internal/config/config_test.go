package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "wss://jetstream1.us-east.bsky.network/subscribe", cfg.Firehose.URL)
	assert.Equal(t, []string{"app.bsky.feed.post"}, cfg.Firehose.Collections)
	assert.Equal(t, 10, cfg.Firehose.ReconnectDelay)
	assert.Equal(t, "https://bsky.social", cfg.Bots.ServiceURL)
	assert.Equal(t, "https://public.api.bsky.app", cfg.Bots.AppViewURL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "bsky.network", cfg.Crawl.PrimaryMarker)
	assert.Equal(t, 1, cfg.Crawl.ErrorThreshold)
	assert.InDelta(t, 10, cfg.Crawl.ListPagesRPS, 0.001)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
firehose:
  url: wss://jetstream.local/subscribe
  reconnect_delay_seconds: 3
crawl:
  error_threshold: 25
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "wss://jetstream.local/subscribe", cfg.Firehose.URL)
	assert.Equal(t, 3, cfg.Firehose.ReconnectDelay)
	assert.Equal(t, 25, cfg.Crawl.ErrorThreshold)
	// Untouched keys keep their defaults.
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BOTFLEET_SERVER_PORT", "7070")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty firehose url", func(c *Config) { c.Firehose.URL = "" }},
		{"zero reconnect delay", func(c *Config) { c.Firehose.ReconnectDelay = 0 }},
		{"zero error threshold", func(c *Config) { c.Crawl.ErrorThreshold = 0 }},
		{"zero page rate", func(c *Config) { c.Crawl.ListPagesRPS = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
