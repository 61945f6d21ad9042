// Package platform collects the per-OS differences of the setup flow: command names,
// environment layout, remediation hints and activation instructions.
package platform

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform describes how the setup flow looks on one operating system.
type Platform struct {
	OS string
}

// Current returns the Platform of the running process.
func Current() Platform {
	return For(runtime.GOOS)
}

// For returns the Platform for the given GOOS value.
func For(goos string) Platform {
	return Platform{OS: goos}
}

func (p Platform) IsWindows() bool {
	return p.OS == "windows"
}

// Runtime is the default interpreter command.
func (p Platform) Runtime() string {
	if p.IsWindows() {
		return "python"
	}
	return "python3"
}

// PackageManager is the default standalone pip command.
func (p Platform) PackageManager() string {
	if p.IsWindows() {
		return "pip"
	}
	return "pip3"
}

// BinDir is the directory inside an environment that holds its executables.
func (p Platform) BinDir() string {
	if p.IsWindows() {
		return "Scripts"
	}
	return "bin"
}

// PathListSeparator separates PATH entries.
func (p Platform) PathListSeparator() string {
	if p.IsWindows() {
		return ";"
	}
	return ":"
}

// Join joins path elements with the platform's separator, independent of the host OS.
func (p Platform) Join(elem ...string) string {
	if p.IsWindows() {
		return strings.ReplaceAll(filepath.ToSlash(filepath.Join(elem...)), "/", `\`)
	}
	return filepath.ToSlash(filepath.Join(elem...))
}

// Requirement names one prerequisite of the setup flow.
type Requirement int

const (
	RequireRuntime Requirement = iota
	RequirePackageManager
	RequireIsolation
	RequireGUIBinding
)

func (r Requirement) String() string {
	switch r {
	case RequireRuntime:
		return "runtime"
	case RequirePackageManager:
		return "package manager"
	case RequireIsolation:
		return "venv module"
	case RequireGUIBinding:
		return "GUI binding"
	}
	return fmt.Sprintf("requirement(%d)", int(r))
}

// Remedy returns the install instruction printed when r is missing.
func (p Platform) Remedy(r Requirement) string {
	switch p.OS {
	case "windows":
		switch r {
		case RequireRuntime:
			return "Install Python 3 from https://www.python.org/downloads/ or run: winget install Python.Python.3.12 (enable \"Add python.exe to PATH\")"
		case RequirePackageManager:
			return "Run: python -m ensurepip --upgrade"
		case RequireIsolation:
			return "Re-run the Python installer and choose \"Modify\" to restore the standard library (venv)"
		case RequireGUIBinding:
			return "Re-run the Python installer and enable \"tcl/tk and IDLE\""
		}
	case "darwin":
		switch r {
		case RequireRuntime:
			return "Run: brew install python3"
		case RequirePackageManager:
			return "Run: python3 -m ensurepip --upgrade"
		case RequireIsolation:
			return "Run: brew reinstall python3"
		case RequireGUIBinding:
			return "Run: brew install python-tk"
		}
	default:
		switch r {
		case RequireRuntime:
			return "Run: sudo apt install python3"
		case RequirePackageManager:
			return "Run: sudo apt install python3-pip"
		case RequireIsolation:
			return "Run: sudo apt install python3-venv"
		case RequireGUIBinding:
			return "Run: sudo apt install python3-tk"
		}
	}

	return ""
}

// ActivationHints returns the commands a user types to activate envDir in an interactive shell.
func (p Platform) ActivationHints(envDir string) []string {
	if p.IsWindows() {
		return []string{
			p.Join(envDir, p.BinDir(), "activate.bat") + "   (cmd.exe)",
			p.Join(envDir, p.BinDir(), "Activate.ps1") + "   (PowerShell)",
		}
	}

	return []string{
		"source " + p.Join(envDir, p.BinDir(), "activate"),
	}
}
