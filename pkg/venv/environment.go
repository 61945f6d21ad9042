// Package venv creates and activates the isolated Python environment.
package venv

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/mpe-exporter/mpe-setup/pkg/platform"
)

// Environment is an isolated dependency environment on disk together with the activation
// state of the current process.
type Environment struct {
	// Name is the directory as configured, Path the resolved absolute location.
	Name     string
	Path     string
	Platform platform.Platform
	active   bool
}

// New resolves dir relative to workDir.
func New(workDir, dir string, p platform.Platform) *Environment {
	path := dir
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, dir)
	}

	return &Environment{
		Name:     dir,
		Path:     filepath.Clean(path),
		Platform: p,
	}
}

// Exists reports whether the environment directory is present. A non-directory at the
// path is an error.
func (e *Environment) Exists() (bool, error) {
	info, err := os.Stat(e.Path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, eris.Wrapf(err, "Failed to check %s", e.Path)
	}

	if !info.IsDir() {
		return false, eris.Errorf("%s exists but is not a directory", e.Path)
	}

	return true, nil
}

// IsVenv reports whether the directory carries the pyvenv.cfg marker written by venv.
func (e *Environment) IsVenv() bool {
	info, err := os.Stat(filepath.Join(e.Path, "pyvenv.cfg"))
	return err == nil && info.Mode().IsRegular()
}

// BinDir is the directory holding the environment's python and pip.
func (e *Environment) BinDir() string {
	return filepath.Join(e.Path, e.Platform.BinDir())
}

// Activate marks the environment as active. Commands started afterwards receive Vars().
func (e *Environment) Activate() error {
	exists, err := e.Exists()
	if err != nil {
		return err
	}

	if !exists {
		return eris.Errorf("can't activate %s because it does not exist", e.Path)
	}

	e.active = true
	return nil
}

// Deactivate drops the activation state. Calling it on an inactive environment is a no-op.
func (e *Environment) Deactivate() {
	e.active = false
}

func (e *Environment) Active() bool {
	return e.active
}

// Vars returns the variables an activated shell would have: VIRTUAL_ENV, PATH with the bin
// dir in front and PYTHONHOME removed. Inactive environments return nothing.
func (e *Environment) Vars() (map[string]string, []string) {
	if !e.active {
		return nil, nil
	}

	path := e.BinDir()
	if current := os.Getenv("PATH"); current != "" {
		path += e.Platform.PathListSeparator() + current
	}

	return map[string]string{
		"VIRTUAL_ENV": e.Path,
		"PATH":        path,
	}, []string{"PYTHONHOME"}
}
