// Package config loads docgraph configuration.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults
//  2. user config    ($XDG_CONFIG_HOME/docgraph/config.yaml)
//  3. project config (.docgraph/config.yaml under the project root)
//  4. an explicit file, when one is given
//  5. environment variables prefixed DOCGRAPH_, after loading .docgraph/.env
package config

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/storage"
)

// EnvPrefix prefixes every environment override, e.g. DOCGRAPH_BACKEND_MODE.
const EnvPrefix = "DOCGRAPH"

// DefaultSearchWindow is the maximum number of hits a single search returns.
const DefaultSearchWindow = 2_000_000

type Config struct {
	Backend      BackendConfig `yaml:"backend"`
	Routing      RoutingConfig `yaml:"routing"`
	Log          LogConfig     `yaml:"log"`
	Refresh      bool          `yaml:"refresh"`
	Batch        bool          `yaml:"batch"`
	SearchWindow int           `yaml:"search_window" split_words:"true"`
}

type BackendConfig struct {
	Mode          string        `yaml:"mode"`
	Path          string        `yaml:"path"`
	ClusterName   string        `yaml:"cluster_name" split_words:"true"`
	Addresses     []string      `yaml:"addresses"`
	Driver        string        `yaml:"driver"`
	FlushInterval time.Duration `yaml:"flush_interval" split_words:"true"`
}

type RoutingConfig struct {
	Strategy    string `yaml:"strategy"`
	IndexPrefix string `yaml:"index_prefix" split_words:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Mode:          "memory",
			ClusterName:   "docgraph",
			Driver:        "sqlite",
			FlushInterval: time.Second,
		},
		Routing: RoutingConfig{
			Strategy:    "default",
			IndexPrefix: "graph",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Refresh:      true,
		Batch:        false,
		SearchWindow: DefaultSearchWindow,
	}
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]*$`)

// Validate reports the first unusable setting as a configuration error.
func (c *Config) Validate() error {
	const op = "validate config"

	switch c.Backend.Mode {
	case "node", "memory":
	case "transport":
		return errs.Configuration(op, "backend mode %q requires a remote cluster; use node or memory", c.Backend.Mode)
	default:
		return errs.Configuration(op, "invalid backend mode %q", c.Backend.Mode)
	}
	switch c.Backend.Driver {
	case "sqlite", "sqlite3":
	default:
		return errs.Configuration(op, "invalid backend driver %q", c.Backend.Driver)
	}
	if c.Routing.Strategy == "" {
		return errs.Configuration(op, "routing strategy must be set")
	}
	if !prefixPattern.MatchString(c.Routing.IndexPrefix) {
		return errs.Configuration(op, "invalid index prefix %q", c.Routing.IndexPrefix)
	}
	if c.SearchWindow <= 0 {
		return errs.Configuration(op, "search window must be positive, got %d", c.SearchWindow)
	}
	return nil
}

// =============================================================================
// Manager
// =============================================================================

type Manager struct {
	config      atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	file        string
	watchers    []func(*Config)
	watcherMu   sync.RWMutex
}

type Option func(*Manager)

// WithProjectRoot sets the directory holding .docgraph/ (default ".").
func WithProjectRoot(root string) Option {
	return func(m *Manager) { m.projectRoot = root }
}

// WithFile adds an explicit config file layered over user and project files.
// Unlike the other files it must exist.
func WithFile(path string) Option {
	return func(m *Manager) { m.file = path }
}

func NewManager(dirs *storage.Dirs, opts ...Option) *Manager {
	m := &Manager{dirs: dirs, projectRoot: "."}
	for _, opt := range opts {
		opt(m)
	}
	m.config.Store(DefaultConfig())
	return m
}

func (m *Manager) Get() *Config {
	return m.config.Load()
}

func (m *Manager) Load() error {
	cfg := DefaultConfig()
	project := storage.ResolveProjectDirs(m.projectRoot)

	if m.dirs != nil {
		if err := loadYAMLFile(m.dirs.ConfigDir("config.yaml"), cfg, false); err != nil {
			return errs.Wrap(errs.KindConfiguration, "user config", err)
		}
	}
	if err := loadYAMLFile(project.Config, cfg, false); err != nil {
		return errs.Wrap(errs.KindConfiguration, "project config", err)
	}
	if m.file != "" {
		if err := loadYAMLFile(m.file, cfg, true); err != nil {
			return errs.Wrap(errs.KindConfiguration, "config file", err)
		}
	}

	if err := applyEnvironment(project.Env, cfg); err != nil {
		return errs.Wrap(errs.KindConfiguration, "environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config.Store(cfg)
	m.notifyWatchers(cfg)

	return nil
}

func loadYAMLFile(path string, cfg *Config, required bool) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return nil
	}
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// applyEnvironment loads envFile into the process environment without
// replacing variables that are already set, then applies DOCGRAPH_ overrides.
func applyEnvironment(envFile string, cfg *Config) error {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", envFile, err)
	}
	return envconfig.Process(EnvPrefix, cfg)
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}
