package installer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpe-exporter/mpe-setup/pkg/platform"
	"github.com/mpe-exporter/mpe-setup/pkg/shell/shelltest"
	"github.com/mpe-exporter/mpe-setup/pkg/venv"
)

type fixture struct {
	dir      string
	manifest string
	env      *venv.Environment
	out      *bytes.Buffer
}

func newFixture(t *testing.T, requirements string) *fixture {
	t.Helper()
	os.Setenv("CI", "true")
	t.Cleanup(func() { os.Unsetenv("CI") })

	dir := t.TempDir()
	env := venv.New(dir, "venv", platform.For("linux"))
	require.NoError(t, os.MkdirAll(env.BinDir(), 0o755))

	path := filepath.Join(dir, "requirements.txt")
	if requirements != "" {
		require.NoError(t, os.WriteFile(path, []byte(requirements), 0o644))
	}

	return &fixture{dir: dir, manifest: path, env: env, out: &bytes.Buffer{}}
}

func (f *fixture) installer(runner *shelltest.Runner) *Installer {
	return &Installer{Runner: runner, Dir: f.dir, Out: f.out}
}

func TestInstallRunsPipInActivatedEnvironment(t *testing.T) {
	f := newFixture(t, "numpy\nh5py\n")
	runner := shelltest.New().OnPrefix("python -m pip install -r ", shelltest.Response{
		Output: "Collecting numpy\nCollecting h5py\nSuccessfully installed h5py-3.10.0 numpy-1.26.4\n",
	})

	result, err := f.installer(runner).Install(context.Background(), f.env, f.manifest, Options{})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, []string{"numpy", "h5py"}, result.Manifest.Names())
	assert.True(t, f.env.Active())

	require.Len(t, runner.Calls, 1)
	call := runner.Calls[0]
	assert.Equal(t, "python -m pip install -r "+f.manifest, call.Command)
	assert.Equal(t, f.env.Path, call.Env["VIRTUAL_ENV"])
	assert.Contains(t, call.Env["PATH"], f.env.BinDir())
	assert.Equal(t, []string{"PYTHONHOME"}, call.Unset)
}

func TestInstallFailureDeactivates(t *testing.T) {
	f := newFixture(t, "mpe-no-such-package==99\n")
	runner := shelltest.New().OnPrefix("python -m pip install -r ", shelltest.Response{
		Output: "ERROR: Could not find a version that satisfies the requirement mpe-no-such-package==99\n",
		Status: 1,
	})

	_, err := f.installer(runner).Install(context.Background(), f.env, f.manifest, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not find a version")
	assert.False(t, f.env.Active())

	exists, err := f.env.Exists()
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMissingManifestDeactivates(t *testing.T) {
	f := newFixture(t, "")
	runner := shelltest.New()

	_, err := f.installer(runner).Install(context.Background(), f.env, f.manifest, Options{})
	require.Error(t, err)
	assert.False(t, f.env.Active())
	assert.Empty(t, runner.Commands())
}

func TestMissingEnvironmentFailsActivation(t *testing.T) {
	f := newFixture(t, "numpy\n")
	require.NoError(t, os.RemoveAll(f.env.Path))

	_, err := f.installer(shelltest.New()).Install(context.Background(), f.env, f.manifest, Options{})
	require.Error(t, err)
	assert.False(t, f.env.Active())
}

func TestSkipUnchangedManifest(t *testing.T) {
	f := newFixture(t, "numpy\n")
	runner := shelltest.New().OnPrefix("python -m pip install -r ", shelltest.Response{})
	inst := f.installer(runner)

	first, err := inst.Install(context.Background(), f.env, f.manifest, Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Manifest.Digest, first.Digest)

	second, err := inst.Install(context.Background(), f.env, f.manifest, Options{SkipDigest: first.Digest})
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Len(t, runner.Commands(), 1)
}

func TestChangedPipArgsAreNotSkipped(t *testing.T) {
	f := newFixture(t, "numpy\n")
	runner := shelltest.New().OnPrefix("python -m pip install -r ", shelltest.Response{})
	inst := f.installer(runner)

	first, err := inst.Install(context.Background(), f.env, f.manifest, Options{})
	require.NoError(t, err)

	inst.ExtraArgs = []string{"--index-url", "https://mirror.example.com/simple"}
	second, err := inst.Install(context.Background(), f.env, f.manifest, Options{SkipDigest: first.Digest})
	require.NoError(t, err)
	assert.False(t, second.Skipped)
	assert.NotEqual(t, first.Digest, second.Digest)
	assert.Equal(t, second.Digest, Digest(second.Manifest, inst.ExtraArgs))
	assert.Len(t, runner.Commands(), 2)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	line := "Processing /home/jürgen/" + strings.Repeat("ü", 80)

	short := truncate(line, maxDescription)
	assert.True(t, utf8.ValidString(short))
	assert.Len(t, []rune(short), maxDescription)
	assert.True(t, strings.HasSuffix(short, "..."))
	assert.Equal(t, "Collecting numpy", truncate("Collecting numpy", maxDescription))
}
