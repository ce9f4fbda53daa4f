package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", Overrides{SeedURL: "http://a.test/"})
	require.NoError(t, err)

	assert.Equal(t, "http://a.test/", cfg.SeedURL)
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, 10, cfg.MaxRedirectionDepth)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout())
	assert.Equal(t, 1, cfg.ConcurrentWorkers)
	assert.Equal(t, "webgraph.db", cfg.OutputPath)
	assert.Equal(t, "metrics.json", cfg.MetricsPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Contains(t, cfg.UserAgent, "webgraph/")
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"seed_url": "http://file.test/",
		"max_depth": 5,
		"max_redirection_depth": 4,
		"concurrent_workers": 2,
		"output_path": "graph.json"
	}`), 0644))

	cfg, err := LoadConfig(path, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "http://file.test/", cfg.SeedURL)
	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, 4, cfg.MaxRedirectionDepth)
	assert.Equal(t, 2, cfg.ConcurrentWorkers)
	assert.Equal(t, "graph.json", cfg.OutputPath)

	depth := 0
	cfg, err = LoadConfig(path, Overrides{SeedURL: "http://cli.test/", OutputPath: "out.db", MaxDepth: &depth, Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, "http://cli.test/", cfg.SeedURL)
	assert.Equal(t, "out.db", cfg.OutputPath)
	assert.Equal(t, 0, cfg.MaxDepth)
	assert.Equal(t, 8, cfg.ConcurrentWorkers)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("WEBGRAPH_SEED_URL", "http://env.test/")
	t.Setenv("WEBGRAPH_MAX_DEPTH", "7")

	cfg, err := LoadConfig("", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "http://env.test/", cfg.SeedURL)
	assert.Equal(t, 7, cfg.MaxDepth)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"), Overrides{SeedURL: "http://a.test/"})
	require.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			SeedURL:             "http://a.test/",
			MaxDepth:            3,
			MaxRedirectionDepth: 10,
			ConnectTimeoutMs:    5000,
			ReadTimeoutMs:       30000,
			ConcurrentWorkers:   1,
			OutputPath:          "out.db",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero depth allowed", mutate: func(c *Config) { c.MaxDepth = 0 }},
		{name: "missing seed", mutate: func(c *Config) { c.SeedURL = "" }, wantErr: "seed_url"},
		{name: "negative depth", mutate: func(c *Config) { c.MaxDepth = -1 }, wantErr: "max_depth"},
		{name: "redirect depth", mutate: func(c *Config) { c.MaxRedirectionDepth = 0 }, wantErr: "max_redirection_depth"},
		{name: "workers", mutate: func(c *Config) { c.ConcurrentWorkers = 0 }, wantErr: "concurrent_workers"},
		{name: "connect timeout", mutate: func(c *Config) { c.ConnectTimeoutMs = 10 }, wantErr: "connect_timeout_ms"},
		{name: "read timeout", mutate: func(c *Config) { c.ReadTimeoutMs = 0 }, wantErr: "read_timeout_ms"},
		{name: "output", mutate: func(c *Config) { c.OutputPath = "" }, wantErr: "output_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
