package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runShell feeds script to a memory-mode shell.
func (e *cliEnv) runShell(t *testing.T, script string, args ...string) (string, string) {
	t.Helper()
	root := newRootCmd(&rootOptions{dirs: e.dirs})

	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(script))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--mode", "memory", "--project", e.project}, append(args, "shell", "--no-watch")...))

	require.NoError(t, root.Execute())
	return out.String(), errOut.String()
}

func TestShell_MemoryGraphOutlivesCommands(t *testing.T) {
	env := newCLIEnv(t)

	out, errOut := env.runShell(t, strings.Join([]string{
		"vertex add person --id 1 name=marko",
		"# comments and blank lines are skipped",
		"",
		"vertex get 1 --label person",
		"bogus",
		"edge get missing",
		"exit",
		"vertex get 1",
	}, "\n"))

	assert.Equal(t, []string{"1", "v[person:1] name=marko"}, lines(out))
	assert.Contains(t, errOut, `error: unknown command "bogus"`)
	assert.Contains(t, errOut, "not_found")
}

func TestShell_BatchCommit(t *testing.T) {
	env := newCLIEnv(t)

	out, _ := env.runShell(t, strings.Join([]string{
		"vertex add person --id 1",
		"vertex get 1",
		"commit",
		"vertex get 1",
	}, "\n"), "--batch")

	assert.Equal(t, []string{"1", "v[person:1]"}, lines(out))
}

func TestShell_RejectsNesting(t *testing.T) {
	env := newCLIEnv(t)

	_, errOut := env.runShell(t, "shell\n")
	assert.Contains(t, errOut, "already in a shell")
}

func TestShell_WatchReconfigures(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(env.project, ".docgraph", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("search_window: 10\n"), 0o644))

	opts := &rootOptions{dirs: env.dirs}
	root := newRootCmd(opts)
	require.NoError(t, root.ParseFlags([]string{"--mode", "memory", "--project", env.project, "--refresh=true"}))

	sh, err := newShell(root, opts)
	require.NoError(t, err)
	defer sh.close(context.Background())
	assert.Equal(t, 10, sh.svc.Config().SearchWindow)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sh.watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("search_window: 20\nrefresh: false\n"), 0o644))
	require.Eventually(t, func() bool {
		return sh.svc.Config().SearchWindow == 20
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, sh.svc.Config().Refresh, "the --refresh flag keeps overriding the file")
}
