package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpe-exporter/mpe-setup/pkg"
	"github.com/mpe-exporter/mpe-setup/pkg/setup"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
	"github.com/mpe-exporter/mpe-setup/pkg/shell/shelltest"
)

type harness struct {
	dir    string
	runner *shelltest.Runner
	out    *bytes.Buffer
	print  *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	os.Setenv("CI", "true")
	os.Setenv("NO_COLOR", "1")
	t.Cleanup(func() {
		os.Unsetenv("CI")
		os.Unsetenv("NO_COLOR")
	})

	h := &harness{
		dir: t.TempDir(),
		runner: shelltest.New().
			On("python3 --version", shelltest.Response{Output: "Python 3.11.4\n"}).
			On("python3 -m pip --version", shelltest.Response{Output: "pip 23.1.2 from /usr/lib/python3/dist-packages/pip (python 3.11)\n"}).
			On("python3 -c 'import venv'", shelltest.Response{}).
			On("python3 -c 'import tkinter'", shelltest.Response{}).
			OnPrefix("python3 -m venv ", shelltest.Response{Do: func(inv shell.Invocation) {
				dir := inv.Args[len(inv.Args)-1]
				_ = os.MkdirAll(filepath.Join(dir, "bin"), 0o755)
				_ = os.WriteFile(filepath.Join(dir, "pyvenv.cfg"), []byte("home = /usr/bin\n"), 0o644)
			}}).
			OnPrefix("python -m pip install -r ", shelltest.Response{Output: "Successfully installed h5py numpy\n"}),
		out:   &bytes.Buffer{},
		print: &bytes.Buffer{},
	}

	previous := pkg.Stdout
	pkg.Stdout = h.print
	t.Cleanup(func() { pkg.Stdout = previous })

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "requirements.txt"), []byte("numpy\nh5py\n"), 0o644))
	return h
}

func (h *harness) execute(args ...string) error {
	root := NewRootCmd(func() shell.Runner { return h.runner })
	root.SetArgs(append([]string{"-C", h.dir}, args...))
	root.SetOut(h.out)
	root.SetErr(&bytes.Buffer{})
	return root.Execute()
}

func TestSetupCommand(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute())
	assert.DirExists(t, filepath.Join(h.dir, "venv"))
	assert.Contains(t, h.print.String(), "source venv/bin/activate")

	require.NoError(t, h.execute())
	assert.Len(t, filterPrefix(h.runner.Commands(), "python3 -m venv "), 1)
}

func TestSetupCommandFailsWithoutPython(t *testing.T) {
	h := newHarness(t)
	h.runner = shelltest.New()

	err := h.execute()
	require.Error(t, err)
	assert.True(t, setup.IsKind(err, setup.KindMissingRuntime))
	assert.NoDirExists(t, filepath.Join(h.dir, "venv"))
}

func TestSetupCommandRejectsArguments(t *testing.T) {
	h := newHarness(t)
	require.Error(t, h.execute("numpy"))
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	h := newHarness(t)
	config := "manifest = \"requirements.txt\"\n\n[env]\ndir = \"from-config\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "mpe-setup.toml"), []byte(config), 0o644))

	require.NoError(t, h.execute("--env-dir", "from-flag"))
	assert.DirExists(t, filepath.Join(h.dir, "from-flag"))
	assert.NoDirExists(t, filepath.Join(h.dir, "from-config"))

	require.NoError(t, h.execute())
	assert.DirExists(t, filepath.Join(h.dir, "from-config"))
}

func TestDryRunChangesNothing(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("--dry-run"))
	assert.NoDirExists(t, filepath.Join(h.dir, "venv"))
	assert.Contains(t, h.out.String(), "+ python3 -m venv ")
	assert.Empty(t, filterPrefix(h.runner.Commands(), "python3 -m venv "))
}

func TestCheckCommand(t *testing.T) {
	h := newHarness(t)
	h.runner.On("python3 -c 'import tkinter'", shelltest.Response{Status: 1})

	require.NoError(t, h.execute("check"))
	assert.Contains(t, h.out.String(), "runtime:")
	assert.Contains(t, h.out.String(), "python3 3.11.4")
	assert.Contains(t, h.out.String(), "optional")
	assert.NoDirExists(t, filepath.Join(h.dir, "venv"))
}

func TestCheckCommandFailsOnMissingVenv(t *testing.T) {
	h := newHarness(t)
	h.runner.On("python3 -c 'import venv'", shelltest.Response{Status: 1})

	err := h.execute("check")
	require.Error(t, err)
	assert.True(t, setup.IsKind(err, setup.KindMissingIsolationSupport))
	assert.Contains(t, h.out.String(), "missing")
}

func TestStatusCommand(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("status"))
	assert.Contains(t, h.print.String(), "does not exist yet")
	assert.Contains(t, h.print.String(), "2 packages (numpy, h5py)")

	require.NoError(t, h.execute())
	h.print.Reset()

	require.NoError(t, h.execute("status"))
	assert.Contains(t, h.print.String(), "venv exists")
	assert.Contains(t, h.print.String(), "2 packages installed")

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "requirements.txt"), []byte("numpy\nh5py\nscipy\n"), 0o644))
	h.print.Reset()
	require.NoError(t, h.execute("status"))
	assert.Contains(t, h.print.String(), "changed since the install")
}

func TestCleanCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.execute())

	require.NoError(t, h.execute("clean", "--dry-run"))
	assert.DirExists(t, filepath.Join(h.dir, "venv"))

	require.NoError(t, h.execute("clean"))
	assert.NoDirExists(t, filepath.Join(h.dir, "venv"))

	require.NoError(t, h.execute("clean"))
	assert.Contains(t, h.print.String(), "nothing to delete")
}

func TestCleanRequiresForceForForeignDirectories(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Mkdir(filepath.Join(h.dir, "venv"), 0o755))

	err := h.execute("clean")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
	assert.DirExists(t, filepath.Join(h.dir, "venv"))

	require.NoError(t, h.execute("clean", "--force"))
	assert.NoDirExists(t, filepath.Join(h.dir, "venv"))
}

func filterPrefix(commands []string, prefix string) []string {
	var result []string
	for _, command := range commands {
		if len(command) >= len(prefix) && command[:len(prefix)] == prefix {
			result = append(result, command)
		}
	}
	return result
}
