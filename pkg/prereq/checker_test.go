package prereq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpe-exporter/mpe-setup/pkg/platform"
	"github.com/mpe-exporter/mpe-setup/pkg/shell/shelltest"
)

func healthyRunner() *shelltest.Runner {
	return shelltest.New().
		On("python3 --version", shelltest.Response{Output: "Python 3.10.12\n"}).
		On("python3 -m pip --version", shelltest.Response{Output: "pip 22.0.2 from /usr/lib/python3/dist-packages/pip (python 3.10)\n"}).
		On("python3 -c 'import venv'", shelltest.Response{}).
		On("python3 -c 'import tkinter'", shelltest.Response{})
}

func newChecker(r *shelltest.Runner) *Checker {
	return &Checker{
		Runner:    r,
		Platform:  platform.For("linux"),
		Python:    "python3",
		Pip:       "pip3",
		GUIModule: "tkinter",
	}
}

func TestAllPresent(t *testing.T) {
	results := newChecker(healthyRunner()).All(context.Background())
	require.Len(t, results, 4)

	for _, r := range results {
		assert.True(t, r.OK, r.Name)
		assert.NoError(t, r.Err)
	}

	assert.Equal(t, "3.10.12", results[0].Version)
	assert.Equal(t, "22.0.2", results[1].Version)
	assert.False(t, results[3].Required)

	_, failed := Failed(results)
	assert.False(t, failed)
}

func TestRuntimeMissing(t *testing.T) {
	r := newChecker(shelltest.New()).Runtime(context.Background())

	assert.False(t, r.OK)
	assert.True(t, r.Required)
	assert.Error(t, r.Err)
	assert.Equal(t, "Run: sudo apt install python3", r.Remedy)
}

func TestRuntimeTooOld(t *testing.T) {
	runner := shelltest.New().On("python3 --version", shelltest.Response{Output: "Python 3.6.9\n"})
	c := newChecker(runner)
	c.MinVersion = ">=3.8"

	r := c.Runtime(context.Background())
	assert.False(t, r.OK)
	assert.Equal(t, "3.6.9", r.Version)
	assert.Contains(t, r.Remedy, "Found python3 3.6.9 but >=3.8 is required")
}

func TestRuntimeVersionSatisfied(t *testing.T) {
	c := newChecker(healthyRunner())
	c.MinVersion = ">=3.8"

	assert.True(t, c.Runtime(context.Background()).OK)
}

func TestPackageManagerFallsBackToStandalonePip(t *testing.T) {
	runner := shelltest.New().
		On("python3 -m pip --version", shelltest.Response{Output: "No module named pip\n", Status: 1}).
		On("pip3 --version", shelltest.Response{Output: "pip 20.0.2 from /usr/lib/python3/dist-packages/pip (python 3.8)\n"})

	r := newChecker(runner).PackageManager(context.Background())
	assert.True(t, r.OK)
	assert.Equal(t, "pip3", r.Name)
	assert.Equal(t, "20.0.2", r.Version)
}

func TestPackageManagerMissing(t *testing.T) {
	runner := shelltest.New().
		On("python3 -m pip --version", shelltest.Response{Status: 1})

	r := newChecker(runner).PackageManager(context.Background())
	assert.False(t, r.OK)
	assert.Equal(t, "Run: sudo apt install python3-pip", r.Remedy)
}

func TestGUIBindingMissingIsOptional(t *testing.T) {
	runner := healthyRunner().
		On("python3 -c 'import tkinter'", shelltest.Response{Output: "ModuleNotFoundError: No module named 'tkinter'\n", Status: 1})

	results := newChecker(runner).All(context.Background())
	gui := results[3]
	assert.False(t, gui.OK)
	assert.False(t, gui.Required)
	assert.Equal(t, "Run: sudo apt install python3-tk", gui.Remedy)

	_, failed := Failed(results)
	assert.False(t, failed)
}

func TestFailedReturnsFirstRequired(t *testing.T) {
	runner := healthyRunner().
		On("python3 -c 'import venv'", shelltest.Response{Status: 1}).
		On("python3 -c 'import tkinter'", shelltest.Response{Status: 1})

	r, failed := Failed(newChecker(runner).All(context.Background()))
	require.True(t, failed)
	assert.Equal(t, platform.RequireIsolation, r.Requirement)
	assert.Equal(t, "venv", r.Name)
}

func TestProbeOrder(t *testing.T) {
	runner := healthyRunner()
	newChecker(runner).All(context.Background())

	assert.Equal(t, []string{
		"python3 --version",
		"python3 -m pip --version",
		"python3 -c 'import venv'",
		"python3 -c 'import tkinter'",
	}, runner.Commands())
}
