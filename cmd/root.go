// Package cmd implements the docgraph command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adalundhe/docgraph/core/config"
	"github.com/adalundhe/docgraph/core/service"
	"github.com/adalundhe/docgraph/core/storage"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configFile  string
	projectRoot string
	verbose     bool
	jsonOut     bool

	mode     string
	path     string
	strategy string
	prefix   string
	refresh  bool
	batch    bool

	// dirs overrides platform directory resolution.
	dirs *storage.Dirs

	// svc is the open service of an interactive shell. Commands run against
	// it instead of opening their own, and leave committing to the shell.
	svc *service.Service
}

var rootCmd = newRootCmd(&rootOptions{})

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "docgraph",
		Short: "docgraph - a property graph on an embedded document index",
		Long: `docgraph stores vertices and edges as documents in an embedded,
near-real-time document index and answers id lookups and filtered searches.

Examples:
  docgraph vertex add person --id 1 name=marko age=29
  docgraph edge add knows 1 2 weight=0.5
  docgraph vertex search name=marko --label person
  docgraph prop set vertex person 1 city=santa-fe
  docgraph indices
  docgraph shell --mode memory`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Config file layered over user and project config")
	pf.StringVar(&opts.projectRoot, "project", ".", "Project root holding .docgraph/")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
	pf.BoolVar(&opts.jsonOut, "json", false, "Output as JSON")
	pf.StringVar(&opts.mode, "mode", "", "Backend mode (node or memory)")
	pf.StringVar(&opts.path, "path", "", "Data directory in node mode")
	pf.StringVar(&opts.strategy, "strategy", "", "Routing strategy (default or label)")
	pf.StringVar(&opts.prefix, "prefix", "", "Index name prefix")
	pf.BoolVar(&opts.refresh, "refresh", true, "Refresh indices before searching")
	pf.BoolVar(&opts.batch, "batch", false, "Stage writes and commit them in one bulk request")

	root.AddCommand(
		newElementCmd(opts, elementVertex),
		newElementCmd(opts, elementEdge),
		newPropCmd(opts),
		newIndicesCmd(opts),
		newShellCmd(opts),
	)
	return root
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig layers the configuration files and environment, then applies
// the flags the user actually set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	_, cfg, err := openConfig(cmd, opts)
	return cfg, err
}

// openConfig is loadConfig that also returns the manager, for callers that
// follow later changes.
func openConfig(cmd *cobra.Command, opts *rootOptions) (*config.Manager, *config.Config, error) {
	dirs := opts.dirs
	if dirs == nil {
		dirs = storage.ResolveDirs()
	}

	mgrOpts := []config.Option{config.WithProjectRoot(opts.projectRoot)}
	if opts.configFile != "" {
		mgrOpts = append(mgrOpts, config.WithFile(opts.configFile))
	}
	mgr := config.NewManager(dirs, mgrOpts...)
	if err := mgr.Load(); err != nil {
		return nil, nil, err
	}

	cfg, err := effectiveConfig(cmd, opts, mgr.Get())
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}

// effectiveConfig copies loaded and applies the changed flags over it.
func effectiveConfig(cmd *cobra.Command, opts *rootOptions, loaded *config.Config) (*config.Config, error) {
	cfg := *loaded
	applyFlags(cmd, opts, &cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFlags copies changed flags over cfg. Unchanged flags keep the
// configured value, so a default flag value never masks a config file.
func applyFlags(cmd *cobra.Command, opts *rootOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Backend.Mode = opts.mode
	}
	if flags.Changed("path") {
		cfg.Backend.Path = opts.path
	}
	if flags.Changed("strategy") {
		cfg.Routing.Strategy = opts.strategy
	}
	if flags.Changed("prefix") {
		cfg.Routing.IndexPrefix = opts.prefix
	}
	if flags.Changed("refresh") {
		cfg.Refresh = opts.refresh
	}
	if flags.Changed("batch") {
		cfg.Batch = opts.batch
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
}

// newLogger builds the handler named by cfg.Format: text, json, or auto,
// which picks text for a terminal and json otherwise.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(cfg.Format)
	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// withService opens a service for one command, runs fn, commits staged
// writes and closes the service. Inside a shell fn runs against the shell's
// service.
func withService(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *service.Service) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.svc != nil {
		return fn(ctx, opts.svc)
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	svc, err := service.New(ctx, cfg, service.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	if err := fn(ctx, svc); err != nil {
		return err
	}
	return svc.Commit(ctx)
}
