package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
xroad:
  server_url: ss.example.org
  client: EE/GOV/70000001/catalog
  instance: EE
crawler:
  workers: 8
  timeout_seconds: 30
  rate_limit_rps: 2.5
  discovery: central-server
  fetch_openapi: true
output:
  dir: /var/lib/catalog
metrics:
  enabled: true
  addr: ":9100"
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ss.example.org", cfg.XRoad.ServerURL)
	require.Equal(t, "EE/GOV/70000001/catalog", cfg.XRoad.Client)
	require.Equal(t, 8, cfg.Crawler.Workers)
	require.Equal(t, 2.5, cfg.Crawler.RateLimitRPS)
	require.Equal(t, DiscoveryCentralServer, cfg.Crawler.Discovery)
	require.True(t, cfg.Crawler.FetchOpenAPI)
	require.Equal(t, "/var/lib/catalog", cfg.Output.Dir)
	require.True(t, cfg.Metrics.Enabled)
	require.False(t, cfg.Logging.Development)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("xroad:\n  server_url: ss.example.org\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Crawler.Workers)
	require.Equal(t, 60, cfg.Crawler.TimeoutSeconds)
	require.Equal(t, DiscoverySecurityServer, cfg.Crawler.Discovery)
	require.Equal(t, ".", cfg.Output.Dir)
	require.False(t, cfg.Metrics.Enabled)
	require.True(t, cfg.Logging.Development)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		XRoad:   XRoadConfig{ServerURL: "ss.example.org"},
		Crawler: CrawlerConfig{Workers: 2, TimeoutSeconds: 10, Discovery: DiscoverySecurityServer},
		Output:  OutputConfig{Dir: "."},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing server URL", func(c *Config) { c.XRoad.ServerURL = "" }},
		{"zero workers", func(c *Config) { c.Crawler.Workers = 0 }},
		{"zero timeout", func(c *Config) { c.Crawler.TimeoutSeconds = 0 }},
		{"bad discovery", func(c *Config) { c.Crawler.Discovery = "gossip" }},
		{"cert without key", func(c *Config) { c.TLS.Cert = "client.pem" }},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
