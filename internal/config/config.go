package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lotwatch/internal/scrape"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Predict   PredictConfig   `yaml:"predict" mapstructure:"predict"`
	Selection SelectionConfig `yaml:"selection" mapstructure:"selection"`
	Activity  ActivityConfig  `yaml:"activity" mapstructure:"activity"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SourceConfig describes the procurement portal.
type SourceConfig struct {
	Origin        string `yaml:"origin" mapstructure:"origin"`
	AllowedDomain string `yaml:"allowed_domain" mapstructure:"allowed_domain"`
	DefaultURL    string `yaml:"default_url" mapstructure:"default_url"`
}

// ScrapeConfig configures the fetch strategy chain.
type ScrapeConfig struct {
	TimeoutSecs       int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64        `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	UserAgent         string         `yaml:"user_agent" mapstructure:"user_agent"`
	Proxies           []scrape.Proxy `yaml:"proxies" mapstructure:"proxies"`
}

// Options converts the section into chain options.
func (c ScrapeConfig) Options() scrape.Options {
	return scrape.Options{
		Proxies:           c.Proxies,
		UserAgent:         c.UserAgent,
		Timeout:           time.Duration(c.TimeoutSecs) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// AgentConfig configures the polling agent.
type AgentConfig struct {
	IntervalSecs    int  `yaml:"interval_secs" mapstructure:"interval_secs"`
	MinIntervalSecs int  `yaml:"min_interval_secs" mapstructure:"min_interval_secs"`
	AutoAnalyze     bool `yaml:"auto_analyze" mapstructure:"auto_analyze"`
}

// Interval returns the polling interval.
func (c AgentConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// MinPollIntervalSecs is the floor for agent.min_interval_secs.
const MinPollIntervalSecs = 30

// MinInterval returns the shortest allowed polling interval.
func (c AgentConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSecs) * time.Second
}

// PredictConfig configures the scoring service client.
type PredictConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Mode        string `yaml:"mode" mapstructure:"mode"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// SelectionConfig configures the selection store.
type SelectionConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// ActivityConfig configures the activity log.
type ActivityConfig struct {
	MaxLines int `yaml:"max_lines" mapstructure:"max_lines"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LOTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("source.origin", "https://goszakup.gov.kz")
	v.SetDefault("source.allowed_domain", "goszakup.gov.kz")
	v.SetDefault("source.default_url", "https://goszakup.gov.kz/ru/search/lots")
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.requests_per_second", 1.0)
	v.SetDefault("scrape.user_agent", scrape.DefaultUserAgent)
	v.SetDefault("scrape.proxies", defaultProxies())
	v.SetDefault("agent.interval_secs", 60)
	v.SetDefault("agent.min_interval_secs", 30)
	v.SetDefault("agent.auto_analyze", true)
	v.SetDefault("predict.base_url", "http://localhost:8000")
	v.SetDefault("predict.mode", "multipart")
	v.SetDefault("predict.timeout_secs", 120)
	v.SetDefault("predict.max_attempts", 2)
	v.SetDefault("selection.dsn", "file::memory:?cache=shared")
	v.SetDefault("activity.max_lines", 500)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func defaultProxies() []map[string]any {
	var out []map[string]any
	for _, p := range scrape.DefaultProxies() {
		out = append(out, map[string]any{"name": p.Name, "template": p.Template})
	}
	return out
}

// Validate checks the settings a command depends on. mode is one of
// "fetch", "agent", "analyze" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	checkURL := func(key, raw string) {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s must be an absolute URL", key))
		}
	}

	switch mode {
	case "fetch":
		checkURL("source.origin", c.Source.Origin)
		if c.Scrape.TimeoutSecs <= 0 {
			errs = append(errs, "scrape.timeout_secs must be > 0")
		}
		for i, p := range c.Scrape.Proxies {
			if p.Name == "" || p.Template == "" {
				errs = append(errs, fmt.Sprintf("scrape.proxies[%d] needs a name and a template", i))
			}
		}
	case "analyze":
		checkURL("predict.base_url", c.Predict.BaseURL)
		if c.Predict.Mode != "multipart" && c.Predict.Mode != "json" {
			errs = append(errs, "predict.mode must be multipart or json")
		}
	case "agent":
		if err := c.Validate("fetch"); err != nil {
			errs = append(errs, err.Error())
		}
		if c.Source.AllowedDomain == "" {
			errs = append(errs, "source.allowed_domain is required")
		}
		if c.Agent.MinIntervalSecs < MinPollIntervalSecs {
			errs = append(errs, fmt.Sprintf("agent.min_interval_secs must be >= %d", MinPollIntervalSecs))
		}
		if c.Agent.AutoAnalyze {
			if err := c.Validate("analyze"); err != nil {
				errs = append(errs, err.Error())
			}
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if err := c.Validate("agent"); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
