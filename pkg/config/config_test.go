package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.Playground)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.False(t, cfg.Persistence.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := LoadFromFile("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doccache.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
upstream:
  url: http://localhost:4000/graphql
  timeout: 5s
cache:
  memo_size: 64
persistence:
  enabled: true
  dir: /tmp/doccache
`), 0o600))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "http://localhost:4000/graphql", cfg.Upstream.URL)
		assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
		assert.Equal(t, 64, cfg.Cache.MemoSize)
		assert.True(t, cfg.Persistence.Enabled)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "doccache.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

		_, err := LoadFromFile(path)
		assert.Error(t, err)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOCCACHE_PORT", "7777")
	t.Setenv("DOCCACHE_UPSTREAM_URL", "http://upstream:4000/graphql")
	t.Setenv("DOCCACHE_UPSTREAM_TIMEOUT", "2s")
	t.Setenv("DOCCACHE_MEMO_SIZE", "128")
	t.Setenv("DOCCACHE_PERSIST_ENABLED", "true")
	t.Setenv("DOCCACHE_PERSIST_DIR", "/var/lib/doccache")
	t.Setenv("DOCCACHE_PLAYGROUND", "off")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "http://upstream:4000/graphql", cfg.Upstream.URL)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 128, cfg.Cache.MemoSize)
	assert.True(t, cfg.Persistence.Enabled)
	assert.Equal(t, "/var/lib/doccache", cfg.Persistence.Dir)
	assert.False(t, cfg.Server.Playground)
}

func TestEnvOverrides_Invalid(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("DOCCACHE_PORT", "not-a-port")
		_, err := LoadFromFile("")
		assert.Error(t, err)
	})

	t.Run("bad timeout", func(t *testing.T) {
		t.Setenv("DOCCACHE_UPSTREAM_TIMEOUT", "soon")
		_, err := LoadFromFile("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("port out of range", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("persistence without dir", func(t *testing.T) {
		cfg := Default()
		cfg.Persistence.Enabled = true
		cfg.Persistence.Dir = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on", " on "} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		assert.False(t, parseBool(v), v)
	}
}
