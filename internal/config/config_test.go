package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), withEmptyHeaders(cfg))
}

// viper hands back an empty slice for the headers default.
func withEmptyHeaders(cfg *Config) *Config {
	if len(cfg.HTTP.Headers) == 0 {
		cfg.HTTP.Headers = nil
	}
	return cfg
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
connections: 4
output_dir: /tmp/downloads
breakpoint:
  backend: badger
  dir: /tmp/rdl-state
http:
  timeout: 15s
  token: secret
  headers:
    - "X-Api-Key: abc"
s3:
  region: eu-west-1
  path_style: true
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Connections)
	assert.Equal(t, "/tmp/downloads", cfg.OutputDir)
	assert.Equal(t, 3, cfg.ProbeAttempts)
	assert.Equal(t, "badger", cfg.Breakpoint.Backend)
	assert.Equal(t, 15*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 60*time.Second, cfg.HTTP.KeepAlive)
	assert.Equal(t, "debug", cfg.Log.Level)

	hc := cfg.HTTPClientConfig()
	assert.Equal(t, "secret", hc.Token)
	assert.Equal(t, map[string]string{"X-Api-Key": "abc"}, hc.Headers)
	assert.False(t, hc.HighThreadMode)
	sc := cfg.S3ClientConfig()
	assert.Equal(t, "eu-west-1", sc.Region)
	assert.True(t, sc.PathStyle)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "connections: 4\n")
	t.Setenv("RANGEDL_CONNECTIONS", "12")
	t.Setenv("RANGEDL_HTTP_TIMEOUT", "5s")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Connections)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"too many connections": "connections: 16\n",
		"no connections":       "connections: 0\n",
		"unknown backend":      "breakpoint:\n  backend: sqlite\n",
		"badger without dir":   "breakpoint:\n  backend: badger\n",
		"bad log level":        "log:\n  level: loud\n",
		"bad metrics address":  "metrics:\n  addr: not an address\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			assert.ErrorContains(t, err, "validation failed")
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "not found")
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Connections = 6
	cfg.HTTP.Proxy = "http://proxy.local:3128"
	cfg.Metrics.Addr = "127.0.0.1:9090"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Save(cfg, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, withEmptyHeaders(loaded))
}
