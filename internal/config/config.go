// Package config loads and validates catalog configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	XRoad   XRoadConfig   `mapstructure:"xroad"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Output  OutputConfig  `mapstructure:"output"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// XRoadConfig identifies the security server and the querying client.
type XRoadConfig struct {
	ServerURL string `mapstructure:"server_url"`
	// Client is the percent-encoded member or subsystem identifier used
	// as the requesting party, e.g. "INST/CLASS/CODE/SUB".
	Client   string `mapstructure:"client"`
	Instance string `mapstructure:"instance"`
}

// CrawlerConfig governs worker pool and discovery behavior.
type CrawlerConfig struct {
	Workers        int     `mapstructure:"workers"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	// Discovery selects where the directory document comes from:
	// "security-server" or "central-server".
	Discovery    string `mapstructure:"discovery"`
	FetchOpenAPI bool   `mapstructure:"fetch_openapi"`
}

// TLSConfig holds optional client certificate and trust anchor paths.
type TLSConfig struct {
	Cert   string `mapstructure:"cert"`
	Key    string `mapstructure:"key"`
	CACert string `mapstructure:"ca_cert"`
}

// OutputConfig sets where documents and reports are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Discovery modes accepted by crawler.discovery.
const (
	DiscoverySecurityServer = "security-server"
	DiscoveryCentralServer  = "central-server"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register the keys with Viper so environment-only
	// values survive Unmarshal.
	v.SetDefault("xroad.server_url", "")
	v.SetDefault("xroad.client", "")
	v.SetDefault("xroad.instance", "")
	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("tls.ca_cert", "")
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.timeout_seconds", 60)
	v.SetDefault("crawler.rate_limit_rps", 0)
	v.SetDefault("crawler.discovery", DiscoverySecurityServer)
	v.SetDefault("crawler.fetch_openapi", false)
	v.SetDefault("output.dir", ".")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.XRoad.ServerURL == "" {
		return fmt.Errorf("xroad.server_url must be set")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	switch c.Crawler.Discovery {
	case DiscoverySecurityServer, DiscoveryCentralServer:
	default:
		return fmt.Errorf("crawler.discovery must be %q or %q", DiscoverySecurityServer, DiscoveryCentralServer)
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return fmt.Errorf("tls.cert and tls.key must be set together")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	return nil
}

// Timeout converts the crawler timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}
