package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	HTTP struct {
		Port string `yaml:"port" env:"SAMPLE_HTTP_PORT"`
	} `yaml:"http"`
	Redis struct {
		Addr string        `yaml:"addr"`
		TTL  time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
	Origins []string `yaml:"origins" env:"SAMPLE_ORIGINS"`
	Debug   bool     `yaml:"debug" env:"SAMPLE_DEBUG"`
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
http:
  port: "9000"
redis:
  addr: "redis:6379"
  ttl: 45m
origins: ["https://a.example"]
`), 0o644))

	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("SAMPLE_DEBUG=true\n"), 0o644))

	t.Setenv("CONFIG_FILE", cfgPath)
	t.Setenv("DOTENV_FILE", envPath)
	t.Setenv("SAMPLE_HTTP_PORT", "9100")
	t.Setenv("REDIS_TTL", "2h")
	t.Setenv("SAMPLE_ORIGINS", "https://x.example, https://y.example")
	t.Cleanup(func() { os.Unsetenv("SAMPLE_DEBUG") })

	var cfg sample
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "9100", cfg.HTTP.Port)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, cfg.Origins)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigMissingExplicitDotenv(t *testing.T) {
	t.Setenv("DOTENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	var cfg sample
	assert.Error(t, LoadConfig(&cfg))
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	assert.Error(t, LoadConfig(sample{}))
	assert.Error(t, LoadConfig(nil))
}

func TestLoadConfigBadValue(t *testing.T) {
	t.Setenv("SAMPLE_DEBUG", "definitely")
	var cfg sample
	err := LoadConfig(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAMPLE_DEBUG")
}
