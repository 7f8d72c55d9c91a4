// Package config loads and validates extractor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Source  SourceConfig  `mapstructure:"source"`
	API     APIConfig     `mapstructure:"api"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Geo     GeoConfig     `mapstructure:"geo"`
	DB      DBConfig      `mapstructure:"db"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RunConfig bounds one partitioned extraction run.
type RunConfig struct {
	// StartFrom and MaxCount define the global half-open index range
	// [StartFrom, MaxCount) split across workers.
	StartFrom   int `mapstructure:"start_from"`
	MaxCount    int `mapstructure:"max_count"`
	Workers     int `mapstructure:"workers"`
	ItemsOnPage int `mapstructure:"items_on_page"`
}

// SourceConfig points at the HTML listing site.
type SourceConfig struct {
	ListURL string `mapstructure:"list_url"`
}

// APIConfig points at the mirrored JSON API and carries the fixed
// client-identification header set the API expects on every request.
type APIConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Version   int    `mapstructure:"version"`
	SiteID    string `mapstructure:"site_id"`
	Locale    string `mapstructure:"locale"`
	AppAgent  string `mapstructure:"app_agent"`
	AppName   string `mapstructure:"app_name"`
	UserAgent string `mapstructure:"user_agent"`
}

// HTTPConfig configures the fetch engine.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	ProxyAddr      string `mapstructure:"proxy_addr"`
	UserAgent      string `mapstructure:"user_agent"`
}

// GeoConfig configures the geocoding resolver.
type GeoConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	Bias           string  `mapstructure:"bias"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
}

// DBConfig controls access to the Postgres store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// OpsConfig controls the health/metrics listener.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRODEX")
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
	v.SetDefault("run.start_from", 0)
	v.SetDefault("run.max_count", 200)
	v.SetDefault("run.workers", 5)
	v.SetDefault("run.items_on_page", 15)
	v.SetDefault("source.list_url", "https://www.example-pros.jp/professionals")
	v.SetDefault("api.base_url", "https://api.example-pros.com/api")
	v.SetDefault("api.version", 174)
	v.SetDefault("api.site_id", "106")
	v.SetDefault("api.locale", "en_EN")
	v.SetDefault("api.app_agent", "Lenovo S660~4.4.2")
	v.SetDefault("api.app_name", "android1")
	v.SetDefault("api.user_agent", "Dalvik/1.6.0 (Linux; U; Android 4.4.2; Lenovo S660 Build/KOT49H)")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.user_agent", "prodex-bot/0.1")
	v.SetDefault("geo.endpoint", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geo.bias", "JP")
	v.SetDefault("geo.timeout_seconds", 5)
	v.SetDefault("geo.rate_per_second", 1)
	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Partition bounds
// and worker count failures here are fatal before any work starts.
func (c Config) Validate() error {
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be >= 1")
	}
	if c.Run.StartFrom < 0 {
		return fmt.Errorf("run.start_from must be >= 0")
	}
	if c.Run.MaxCount <= c.Run.StartFrom {
		return fmt.Errorf("run.max_count must be greater than run.start_from")
	}
	if c.Run.ItemsOnPage <= 0 {
		return fmt.Errorf("run.items_on_page must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Geo.Bias == "" {
		return fmt.Errorf("geo.bias must be set")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// GeoTimeout converts the geo timeout config into a duration.
func (c Config) GeoTimeout() time.Duration {
	return time.Duration(c.Geo.TimeoutSeconds) * time.Second
}
