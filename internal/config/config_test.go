package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lotwatch/internal/scrape"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://goszakup.gov.kz", cfg.Source.Origin)
	assert.Equal(t, "goszakup.gov.kz", cfg.Source.AllowedDomain)
	assert.Equal(t, "https://goszakup.gov.kz/ru/search/lots", cfg.Source.DefaultURL)
	assert.Equal(t, 30, cfg.Scrape.TimeoutSecs)
	assert.InDelta(t, 1.0, cfg.Scrape.RequestsPerSecond, 0.001)
	assert.Equal(t, scrape.DefaultUserAgent, cfg.Scrape.UserAgent)
	assert.Equal(t, scrape.DefaultProxies(), cfg.Scrape.Proxies)
	assert.Equal(t, 60*time.Second, cfg.Agent.Interval())
	assert.Equal(t, 30*time.Second, cfg.Agent.MinInterval())
	assert.True(t, cfg.Agent.AutoAnalyze)
	assert.Equal(t, "http://localhost:8000", cfg.Predict.BaseURL)
	assert.Equal(t, "multipart", cfg.Predict.Mode)
	assert.Equal(t, 120, cfg.Predict.TimeoutSecs)
	assert.Equal(t, 2, cfg.Predict.MaxAttempts)
	assert.Equal(t, "file::memory:?cache=shared", cfg.Selection.DSN)
	assert.Equal(t, 500, cfg.Activity.MaxLines)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
scrape:
  timeout_secs: 10
  proxies:
    - name: mirror
      template: "https://mirror.example/fetch?u={url}"
agent:
  interval_secs: 120
  auto_analyze: false
predict:
  base_url: http://scorer:9000
  mode: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []scrape.Proxy{{Name: "mirror", Template: "https://mirror.example/fetch?u={url}"}}, cfg.Scrape.Proxies)
	assert.Equal(t, 2*time.Minute, cfg.Agent.Interval())
	assert.False(t, cfg.Agent.AutoAnalyze)
	assert.Equal(t, "json", cfg.Predict.Mode)

	opts := cfg.Scrape.Options()
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Len(t, opts.Proxies, 1)

	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Agent.MinIntervalSecs)
	assert.Equal(t, 500, cfg.Activity.MaxLines)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
predict:
  base_url: http://from-file:8000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("LOTWATCH_LOG_LEVEL", "warn")
	t.Setenv("LOTWATCH_PREDICT_BASE_URL", "http://from-env:8000")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "http://from-env:8000", cfg.Predict.BaseURL)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LOTWATCH_SERVER_PORT", "3000")
	t.Setenv("LOTWATCH_AGENT_INTERVAL_SECS", "45")
	t.Setenv("LOTWATCH_SELECTION_DSN", "/tmp/selection.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 45, cfg.Agent.IntervalSecs)
	assert.Equal(t, "/tmp/selection.db", cfg.Selection.DSN)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Source.Origin = "https://goszakup.gov.kz"
	cfg.Source.AllowedDomain = "goszakup.gov.kz"
	cfg.Scrape.TimeoutSecs = 30
	cfg.Scrape.Proxies = scrape.DefaultProxies()
	cfg.Agent.MinIntervalSecs = 30
	cfg.Agent.AutoAnalyze = true
	cfg.Predict.BaseURL = "http://localhost:8000"
	cfg.Predict.Mode = "multipart"
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"fetch", "analyze", "agent", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateFetch(t *testing.T) {
	cfg := validDefaults()
	cfg.Source.Origin = "goszakup.gov.kz"
	cfg.Scrape.TimeoutSecs = 0
	cfg.Scrape.Proxies = append(cfg.Scrape.Proxies, scrape.Proxy{Name: "broken"})

	err := cfg.Validate("fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.origin must be an absolute URL")
	assert.Contains(t, err.Error(), "scrape.timeout_secs must be > 0")
	assert.Contains(t, err.Error(), "scrape.proxies[2]")
}

func TestValidateAnalyze(t *testing.T) {
	cfg := validDefaults()
	cfg.Predict.Mode = "grpc"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predict.mode")
}

func TestValidateAgent_AutoAnalyzeNeedsPredict(t *testing.T) {
	cfg := validDefaults()
	cfg.Predict.BaseURL = ""

	assert.Error(t, cfg.Validate("agent"))

	cfg.Agent.AutoAnalyze = false
	assert.NoError(t, cfg.Validate("agent"))
}

func TestValidateAgent_MinIntervalFloor(t *testing.T) {
	cfg := validDefaults()
	cfg.Agent.MinIntervalSecs = 5

	err := cfg.Validate("agent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.min_interval_secs must be >= 30")

	cfg.Agent.MinIntervalSecs = 45
	assert.NoError(t, cfg.Validate("agent"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
