package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adalundhe/docgraph/core/config"
	"github.com/adalundhe/docgraph/core/service"
)

const shellPrompt = "docgraph> "

func newShellCmd(opts *rootOptions) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run commands against one open graph",
		Long: `Open the graph once and read commands from standard input, one per
line, without the leading "docgraph". Arguments are separated by
whitespace. A memory-mode graph lives as long as the shell.

Besides the usual commands the shell understands:
  commit   send staged writes (with --batch)
  stats    log operation timings and indexing queue statistics
  exit     commit and leave

Configuration files are watched while the shell runs. Changes to refresh
and search_window apply immediately; other changes need a new shell.

Examples:
  docgraph shell --mode memory
  echo "vertex add person --id 1 name=marko" | docgraph shell --path ./graph`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if opts.svc != nil {
				return errors.New("already in a shell")
			}

			sh, err := newShell(cmd, opts)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := sh.close(cmd.Context()); cerr != nil && err == nil {
					err = cerr
				}
			}()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if !noWatch {
				if err := sh.watch(ctx); err != nil {
					sh.logger.Warn("config watch unavailable", slog.Any("error", err))
				}
			}
			return sh.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload configuration files while running")
	return cmd
}

// shell runs command lines against a single service.
type shell struct {
	cmd    *cobra.Command
	opts   *rootOptions
	mgr    *config.Manager
	svc    *service.Service
	logger *slog.Logger
}

func newShell(cmd *cobra.Command, opts *rootOptions) (*shell, error) {
	mgr, cfg, err := openConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := service.New(ctx, cfg, service.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &shell{cmd: cmd, opts: opts, mgr: mgr, svc: svc, logger: logger}, nil
}

// watch reloads the configuration files until ctx is done, handing every
// valid reload to the service. Flags given to the shell keep overriding the
// files.
func (sh *shell) watch(ctx context.Context) error {
	sh.mgr.OnChange(func(loaded *config.Config) {
		cfg, err := effectiveConfig(sh.cmd, sh.opts, loaded)
		if err == nil {
			err = sh.svc.Reconfigure(cfg)
		}
		if err != nil {
			sh.logger.Warn("config change not applied", slog.Any("error", err))
		}
	})
	return sh.mgr.Watch(ctx, sh.logger)
}

// run executes lines from in until it is exhausted, ctx is done or a line
// asks to exit. A failing line is reported on errOut and does not end the
// shell.
func (sh *shell) run(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	interactive := false
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		interactive = true
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, shellPrompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		quit, err := sh.exec(ctx, scanner.Text(), out, errOut)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// exec runs one line. It reports whether the shell should stop.
func (sh *shell) exec(ctx context.Context, line string, out, errOut io.Writer) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return false, nil
	}

	switch args[0] {
	case "exit", "quit":
		return true, nil
	case "commit":
		return false, sh.svc.Commit(ctx)
	case "stats":
		sh.svc.CollectData()
		return false, nil
	case "shell":
		return false, errors.New("already in a shell")
	}

	root := newRootCmd(&rootOptions{dirs: sh.opts.dirs, svc: sh.svc})
	root.SetArgs(args)
	root.SetIn(strings.NewReader(""))
	root.SetOut(out)
	root.SetErr(errOut)
	root.SilenceErrors = true
	return false, root.ExecuteContext(ctx)
}

// close commits staged writes and closes the service.
func (sh *shell) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return errors.Join(sh.svc.Commit(ctx), sh.svc.Close())
}
