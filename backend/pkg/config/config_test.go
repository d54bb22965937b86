package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("QUERY_TIMEOUT_MS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 64, cfg.LockStripes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "badger")
	t.Setenv("BADGER_PATH", "/tmp/graph")
	t.Setenv("QUERY_TIMEOUT_MS", "250")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.StoreBackend)
	assert.Equal(t, "/tmp/graph", cfg.BadgerPath)
	assert.Equal(t, 250*time.Millisecond, cfg.QueryTimeout)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.0001)
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreBackend:   BackendMemory,
		LockStripes:    8,
		QueryTimeout:   time.Second,
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"memory ok", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }, true},
		{"badger without path", func(c *Config) { c.StoreBackend = BackendBadger }, true},
		{"neo4j without password", func(c *Config) {
			c.StoreBackend = BackendNeo4j
			c.Neo4jURI = "bolt://x"
			c.Neo4jUser = "neo4j"
		}, true},
		{"zero stripes", func(c *Config) { c.LockStripes = 0 }, true},
		{"zero timeout", func(c *Config) { c.QueryTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
