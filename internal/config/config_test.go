package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Compression.Level)
	assert.Equal(t, 16, cfg.Unpack.MaxDepth)
	assert.Equal(t, ByteSize(8<<30), cfg.Unpack.MaxBytes)
	assert.Equal(t, "8.0 GiB", cfg.Unpack.MaxBytes.String())

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "annul.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
compression:
  level: 19
  dictionary_dir: /etc/annul/dicts
unpack:
  max_bytes: 512 MiB
fetch:
  timeout: 90s
registry:
  repository: localhost:5000/sources
  plain_http: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 19, cfg.Compression.Level)
	assert.Equal(t, "/etc/annul/dicts", cfg.Compression.DictionaryDir)
	assert.Equal(t, ByteSize(512<<20), cfg.Unpack.MaxBytes)
	assert.Equal(t, 16, cfg.Unpack.MaxDepth, "unset fields keep defaults")
	assert.Equal(t, 90*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Registry.PlainHTTP)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("compression:\n  lvl: 3\n"), 0o600))
	_, err = Load(unknown)
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	cfg, err := Load(empty)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	none, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), none)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"ANNUL_LOG_LEVEL":           "warn",
		"ANNUL_COMPRESSION_LEVEL":   "3",
		"ANNUL_UNPACK_MAX_DEPTH":    "4",
		"ANNUL_UNPACK_MAX_BYTES":    "1GB",
		"ANNUL_FETCH_TIMEOUT":       "5s",
		"ANNUL_FETCH_RETRIES":       "0",
		"ANNUL_METRICS_TEXTFILE":    "/var/lib/node_exporter/annul.prom",
		"ANNUL_REGISTRY_PLAIN_HTTP": "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Compression.Level)
	assert.Equal(t, 4, cfg.Unpack.MaxDepth)
	assert.Equal(t, ByteSize(1_000_000_000), cfg.Unpack.MaxBytes)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Zero(t, cfg.Fetch.Retries)
	assert.Equal(t, "/var/lib/node_exporter/annul.prom", cfg.Metrics.Textfile)
	assert.True(t, cfg.Registry.PlainHTTP)
	assert.Equal(t, "text", cfg.Log.Format, "unset variables leave values alone")
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"ANNUL_COMPRESSION_LEVEL":   "high",
		"ANNUL_FETCH_TIMEOUT":       "soon",
		"ANNUL_REGISTRY_PLAIN_HTTP": "maybe",
	}
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANNUL_COMPRESSION_LEVEL")
	assert.Contains(t, err.Error(), "ANNUL_FETCH_TIMEOUT")
	assert.Contains(t, err.Error(), "ANNUL_REGISTRY_PLAIN_HTTP")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"compression low", func(c *Config) { c.Compression.Level = 0 }},
		{"compression high", func(c *Config) { c.Compression.Level = 23 }},
		{"depth", func(c *Config) { c.Unpack.MaxDepth = 0 }},
		{"bytes", func(c *Config) { c.Unpack.MaxBytes = 0 }},
		{"timeout", func(c *Config) { c.Fetch.Timeout = -time.Second }},
		{"retries", func(c *Config) { c.Fetch.Retries = -1 }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		require.ErrorIs(t, cfg.Validate(), ErrInvalid, tt.name)
	}
}

func TestByteSize_Flag(t *testing.T) {
	t.Parallel()

	var b ByteSize
	require.NoError(t, b.Set("512 MiB"))
	assert.Equal(t, ByteSize(512<<20), b)
	assert.Equal(t, "512 MiB", b.String())
	assert.Equal(t, "size", b.Type())
	require.Error(t, b.Set("huge"))
}
