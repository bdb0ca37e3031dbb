// Package config handles doccache configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--port, --upstream, etc.)
//  2. Environment variables (DOCCACHE_*)
//  3. Config file (doccache.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	fmt.Printf("proxy: %s:%d -> %s\n",
//		cfg.Server.Address, cfg.Server.Port, cfg.Upstream.URL)
//
// Environment Variables (all use the DOCCACHE_ prefix):
//
// Server:
//   - DOCCACHE_ADDRESS="127.0.0.1"
//   - DOCCACHE_PORT=8080
//   - DOCCACHE_PLAYGROUND=true
//
// Upstream:
//   - DOCCACHE_UPSTREAM_URL="http://localhost:4000/graphql"
//   - DOCCACHE_UPSTREAM_TIMEOUT=30s
//
// Cache:
//   - DOCCACHE_VARIANT="DocumentCache"
//   - DOCCACHE_MEMO_SIZE=512
//
// Persistence:
//   - DOCCACHE_PERSIST_ENABLED=true
//   - DOCCACHE_PERSIST_DIR="./data"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all doccache configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Cache       CacheConfig       `yaml:"cache"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Address to bind to (default: "127.0.0.1").
	Address string `yaml:"address"`
	// Port to listen on (default: 8080).
	Port int `yaml:"port"`
	// Playground mounts the GraphQL playground at /playground.
	Playground bool `yaml:"playground"`
}

// UpstreamConfig names the GraphQL endpoint cache misses are forwarded to.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig tunes the document cache instance.
type CacheConfig struct {
	// Variant overrides the snapshot metadata tag.
	Variant string `yaml:"variant"`
	// MemoSize bounds the query identity memo.
	MemoSize int `yaml:"memo_size"`
}

// PersistenceConfig controls the Badger-backed snapshot store.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:    "127.0.0.1",
			Port:       8080,
			Playground: true,
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Persistence: PersistenceConfig{
			Dir: "./data",
		},
	}
}

// FindConfigFile looks for a config file in conventional locations:
// ./doccache.yaml, then $HOME/.doccache/config.yaml. Returns "" when none
// exists, which LoadFromFile treats as defaults-plus-environment.
func FindConfigFile() string {
	candidates := []string{"doccache.yaml", "doccache.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".doccache", "config.yaml"),
			filepath.Join(home, ".doccache", "config.yml"),
		)
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	return ""
}

// LoadFromFile loads configuration from path, then applies environment
// overrides. An empty path skips the file step entirely.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays DOCCACHE_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DOCCACHE_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("DOCCACHE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: DOCCACHE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DOCCACHE_PLAYGROUND"); v != "" {
		c.Server.Playground = parseBool(v)
	}
	if v := os.Getenv("DOCCACHE_UPSTREAM_URL"); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv("DOCCACHE_UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: DOCCACHE_UPSTREAM_TIMEOUT: %w", err)
		}
		c.Upstream.Timeout = d
	}
	if v := os.Getenv("DOCCACHE_VARIANT"); v != "" {
		c.Cache.Variant = v
	}
	if v := os.Getenv("DOCCACHE_MEMO_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: DOCCACHE_MEMO_SIZE: %w", err)
		}
		c.Cache.MemoSize = size
	}
	if v := os.Getenv("DOCCACHE_PERSIST_ENABLED"); v != "" {
		c.Persistence.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCCACHE_PERSIST_DIR"); v != "" {
		c.Persistence.Dir = v
	}

	return nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if c.Persistence.Enabled && c.Persistence.Dir == "" {
		return fmt.Errorf("config: persistence enabled without a directory")
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
