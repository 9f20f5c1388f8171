package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/storage"
)

func testDirs(t *testing.T) *storage.Dirs {
	t.Helper()
	return &storage.Dirs{
		Config: t.TempDir(),
		Data:   t.TempDir(),
		State:  t.TempDir(),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "memory", cfg.Backend.Mode)
	assert.Equal(t, "default", cfg.Routing.Strategy)
	assert.Equal(t, "graph", cfg.Routing.IndexPrefix)
	assert.True(t, cfg.Refresh)
	assert.False(t, cfg.Batch)
	assert.Equal(t, 2_000_000, cfg.SearchWindow)
	assert.NoError(t, cfg.Validate())
}

func TestManagerLayering(t *testing.T) {
	dirs := testDirs(t)
	project := t.TempDir()

	writeFile(t, dirs.ConfigDir("config.yaml"), `
backend:
  mode: node
  cluster_name: user-cluster
routing:
  strategy: label
`)
	writeFile(t, filepath.Join(project, ".docgraph", "config.yaml"), `
backend:
  cluster_name: project-cluster
batch: true
`)
	explicit := filepath.Join(t.TempDir(), "override.yaml")
	writeFile(t, explicit, `
routing:
  index_prefix: custom
search_window: 50
`)

	m := NewManager(dirs, WithProjectRoot(project), WithFile(explicit))
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "node", cfg.Backend.Mode)
	assert.Equal(t, "project-cluster", cfg.Backend.ClusterName)
	assert.Equal(t, "label", cfg.Routing.Strategy)
	assert.Equal(t, "custom", cfg.Routing.IndexPrefix)
	assert.True(t, cfg.Batch)
	assert.True(t, cfg.Refresh, "unset keys keep their defaults")
	assert.Equal(t, 50, cfg.SearchWindow)
}

func TestManagerMissingExplicitFile(t *testing.T) {
	m := NewManager(testDirs(t), WithProjectRoot(t.TempDir()), WithFile("/does/not/exist.yaml"))

	err := m.Load()
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
}

func TestManagerEnvironmentOverride(t *testing.T) {
	t.Setenv("DOCGRAPH_BACKEND_MODE", "node")
	t.Setenv("DOCGRAPH_BACKEND_ADDRESSES", "10.0.0.1:9300,10.0.0.2:9300")
	t.Setenv("DOCGRAPH_BACKEND_FLUSH_INTERVAL", "250ms")
	t.Setenv("DOCGRAPH_ROUTING_INDEX_PREFIX", "env")
	t.Setenv("DOCGRAPH_REFRESH", "false")
	t.Setenv("DOCGRAPH_SEARCH_WINDOW", "1000")

	m := NewManager(testDirs(t), WithProjectRoot(t.TempDir()))
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "node", cfg.Backend.Mode)
	assert.Equal(t, []string{"10.0.0.1:9300", "10.0.0.2:9300"}, cfg.Backend.Addresses)
	assert.Equal(t, 250*time.Millisecond, cfg.Backend.FlushInterval)
	assert.Equal(t, "env", cfg.Routing.IndexPrefix)
	assert.False(t, cfg.Refresh)
	assert.Equal(t, 1000, cfg.SearchWindow)
	assert.Empty(t, cfg.Backend.Path, "unrelated environment variables are ignored")
}

func TestManagerDotEnv(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, ".docgraph", ".env"), "DOCGRAPH_ROUTING_STRATEGY=label\n")
	t.Cleanup(func() { os.Unsetenv("DOCGRAPH_ROUTING_STRATEGY") })

	m := NewManager(testDirs(t), WithProjectRoot(project))
	require.NoError(t, m.Load())

	assert.Equal(t, "label", m.Get().Routing.Strategy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"transport mode", func(c *Config) { c.Backend.Mode = "transport" }},
		{"unknown mode", func(c *Config) { c.Backend.Mode = "cloud" }},
		{"unknown driver", func(c *Config) { c.Backend.Driver = "postgres" }},
		{"empty strategy", func(c *Config) { c.Routing.Strategy = "" }},
		{"bad prefix", func(c *Config) { c.Routing.IndexPrefix = "../x" }},
		{"zero window", func(c *Config) { c.SearchWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindConfiguration))
		})
	}
}

func TestManagerInvalidConfigKeepsPrevious(t *testing.T) {
	dirs := testDirs(t)
	m := NewManager(dirs, WithProjectRoot(t.TempDir()))
	require.NoError(t, m.Load())

	writeFile(t, dirs.ConfigDir("config.yaml"), "backend:\n  mode: transport\n")
	require.Error(t, m.Reload())
	assert.Equal(t, "memory", m.Get().Backend.Mode)
}

func TestManagerOnChange(t *testing.T) {
	m := NewManager(testDirs(t), WithProjectRoot(t.TempDir()))

	var seen *Config
	m.OnChange(func(cfg *Config) { seen = cfg })

	require.NoError(t, m.Load())
	assert.Same(t, m.Get(), seen)
}

func TestManagerReload(t *testing.T) {
	dirs := testDirs(t)
	path := dirs.ConfigDir("config.yaml")
	writeFile(t, path, "search_window: 10\n")

	m := NewManager(dirs, WithProjectRoot(t.TempDir()))
	require.NoError(t, m.Load())
	assert.Equal(t, 10, m.Get().SearchWindow)

	writeFile(t, path, "search_window: 20\n")
	require.NoError(t, m.Reload())
	assert.Equal(t, 20, m.Get().SearchWindow)
}
