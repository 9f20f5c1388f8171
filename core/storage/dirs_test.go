package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestResolveDirs(t *testing.T) {
	resetGlobalDirs()

	dirs := ResolveDirs()

	if dirs.Config == "" {
		t.Error("Config dir should not be empty")
	}
	if dirs.Data == "" {
		t.Error("Data dir should not be empty")
	}
	if dirs.State == "" {
		t.Error("State dir should not be empty")
	}

	if !strings.Contains(dirs.Config, AppName) {
		t.Errorf("Config dir should contain %q: %s", AppName, dirs.Config)
	}
}

func TestResolveDirsXDGOverride(t *testing.T) {
	resetGlobalDirs()
	t.Cleanup(resetGlobalDirs)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)

	dirs := ResolveDirs()

	if want := filepath.Join(tmpDir, AppName); dirs.Config != want {
		t.Errorf("Config = %q, want %q", dirs.Config, want)
	}
	if want := filepath.Join(tmpDir, AppName); dirs.Data != want {
		t.Errorf("Data = %q, want %q", dirs.Data, want)
	}
}

func TestResolveProjectDirs(t *testing.T) {
	project := ResolveProjectDirs("/work/repo")

	if want := filepath.Join("/work/repo", ".docgraph"); project.Root != want {
		t.Errorf("Root = %q, want %q", project.Root, want)
	}
	if want := filepath.Join("/work/repo", ".docgraph", "config.yaml"); project.Config != want {
		t.Errorf("Config = %q, want %q", project.Config, want)
	}
	if want := filepath.Join("/work/repo", ".docgraph", ".env"); project.Env != want {
		t.Errorf("Env = %q, want %q", project.Env, want)
	}
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b")

	if err := EnsureDir(path, 0); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected a directory")
	}
}

func TestDirsHelperMethods(t *testing.T) {
	dirs := &Dirs{Config: "/c", Data: "/d", State: "/s"}

	if got := dirs.ConfigDir("config.yaml"); got != filepath.Join("/c", "config.yaml") {
		t.Errorf("ConfigDir = %q", got)
	}
	if got := dirs.DataDir("indices", "x"); got != filepath.Join("/d", "indices", "x") {
		t.Errorf("DataDir = %q", got)
	}
	if got := dirs.LockDir(); got != filepath.Join("/s", "locks") {
		t.Errorf("LockDir = %q", got)
	}
}

func resetGlobalDirs() {
	globalDirs = nil
	globalDirsOnce = sync.Once{}
}
