package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	dirs := testDirs(t)
	project := t.TempDir()
	path := filepath.Join(project, ".docgraph", "config.yaml")
	writeFile(t, path, "search_window: 10\n")

	m := NewManager(dirs, WithProjectRoot(project))
	require.NoError(t, m.Load())

	var reloads atomic.Int32
	m.OnChange(func(*Config) { reloads.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx, nil))

	writeFile(t, path, "search_window: 20\n")
	require.Eventually(t, func() bool {
		return m.Get().SearchWindow == 20
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestWatch_InvalidEditKeepsPrevious(t *testing.T) {
	dirs := testDirs(t)
	project := t.TempDir()
	path := filepath.Join(project, ".docgraph", "config.yaml")
	writeFile(t, path, "search_window: 10\n")

	m := NewManager(dirs, WithProjectRoot(project))
	require.NoError(t, m.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx, nil))

	writeFile(t, path, "backend:\n  mode: transport\n")
	time.Sleep(4 * DefaultWatchDebounce)
	assert.Equal(t, 10, m.Get().SearchWindow)
	assert.Equal(t, "memory", m.Get().Backend.Mode)

	writeFile(t, path, "search_window: 30\n")
	require.Eventually(t, func() bool {
		return m.Get().SearchWindow == 30
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dirs := testDirs(t)
	project := t.TempDir()
	writeFile(t, filepath.Join(project, ".docgraph", "config.yaml"), "search_window: 10\n")

	m := NewManager(dirs, WithProjectRoot(project))
	require.NoError(t, m.Load())

	var reloads atomic.Int32
	m.OnChange(func(*Config) { reloads.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx, nil))

	writeFile(t, filepath.Join(project, ".docgraph", "notes.txt"), "hello")
	time.Sleep(4 * DefaultWatchDebounce)
	assert.Zero(t, reloads.Load())
}
