package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpRunnerBuiltins(t *testing.T) {
	r := NewInterpRunner()
	ctx := context.Background()

	require.NoError(t, r.Run(ctx, Invocation{Args: []string{"true"}}))

	err := r.Run(ctx, Invocation{Args: []string{"exit", "3"}})
	require.Error(t, err)
	code, ok := ExitCode(err)
	require.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestInterpRunnerMissingCommand(t *testing.T) {
	var stderr bytes.Buffer
	err := NewInterpRunner().Run(context.Background(), Invocation{
		Args:   []string{"mpe-setup-no-such-binary"},
		Stderr: &stderr,
	})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.True(t, exitErr.NotFound())
	assert.Contains(t, exitErr.Error(), "mpe-setup-no-such-binary")
}

func TestInterpRunnerEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	r := NewInterpRunner()

	out, err := Output(context.Background(), r, Invocation{
		Args: []string{"eval", "echo $MPE_SETUP_GREETING"},
		Env:  map[string]string{"MPE_SETUP_GREETING": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	out, err = Output(context.Background(), r, Invocation{Args: []string{"pwd"}, Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", out)
}

func TestInterpRunnerDoesNotGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), nil, 0o600))

	out, err := Output(context.Background(), NewInterpRunner(), Invocation{
		Args: []string{"echo", "*.txt", "a  b"},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Equal(t, "*.txt a  b\n", out)
}

func TestInterpRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewInterpRunner().Run(ctx, Invocation{Args: []string{"true"}})
	require.Error(t, err)
	_, ok := ExitCode(err)
	assert.False(t, ok)
}

func TestInterpRunnerEmptyCommand(t *testing.T) {
	require.Error(t, NewInterpRunner().Run(context.Background(), Invocation{}))
}

func TestEnviron(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/home/mpe", "PYTHONHOME=/opt/py"}
	env := Environ(base, map[string]string{"PATH": "/venv/bin:/usr/bin", "VIRTUAL_ENV": "/venv"}, []string{"PYTHONHOME"})
	sort.Strings(env)

	assert.Equal(t, []string{
		"HOME=/home/mpe",
		"PATH=/venv/bin:/usr/bin",
		"VIRTUAL_ENV=/venv",
	}, env)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "pip install -r 'my reqs.txt'", Format([]string{"pip", "install", "-r", "my reqs.txt"}))
	assert.Equal(t, "python3 -c 'import venv'", Format([]string{"python3", "-c", "import venv"}))
	assert.Equal(t, "python3 -m venv venv", Format([]string{"python3", "-m", "venv", "venv"}))
	assert.Equal(t, "", Format(nil))
}

type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) Run(_ context.Context, inv Invocation) error {
	r.calls = append(r.calls, inv.Args)
	return nil
}

func TestDryRunnerOnlyExecutesProbes(t *testing.T) {
	next := &recordingRunner{}
	var out bytes.Buffer
	dry := &DryRunner{Next: next, Out: &out}

	require.NoError(t, dry.Run(context.Background(), Invocation{Args: []string{"python3", "--version"}, ReadOnly: true}))
	require.NoError(t, dry.Run(context.Background(), Invocation{Args: []string{"python3", "-m", "venv", "venv"}}))

	assert.Equal(t, [][]string{{"python3", "--version"}}, next.calls)
	assert.Equal(t, "+ python3 -m venv venv\n", out.String())
}
