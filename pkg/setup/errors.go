package setup

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/mpe-exporter/mpe-setup/pkg/platform"
	"github.com/mpe-exporter/mpe-setup/pkg/prereq"
)

// Kind classifies setup failures.
type Kind int

const (
	KindMissingRuntime Kind = iota + 1
	KindMissingPackageManager
	KindMissingIsolationSupport
	// KindMissingOptionalBinding is only ever reported as a warning.
	KindMissingOptionalBinding
	KindEnvironmentCreation
	KindDependencyInstall
)

func (k Kind) String() string {
	switch k {
	case KindMissingRuntime:
		return "missing runtime"
	case KindMissingPackageManager:
		return "missing package manager"
	case KindMissingIsolationSupport:
		return "missing isolation support"
	case KindMissingOptionalBinding:
		return "missing optional binding"
	case KindEnvironmentCreation:
		return "environment creation failed"
	case KindDependencyInstall:
		return "dependency installation failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fatal reports whether a failure of this kind aborts the setup.
func (k Kind) Fatal() bool {
	return k != KindMissingOptionalBinding
}

// Error is a failed setup stage together with the instruction that fixes it.
type Error struct {
	Kind   Kind
	Stage  Stage
	Remedy string
	Err    error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a setup Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var setupErr *Error
	if eris.As(err, &setupErr) {
		return setupErr.Kind == kind
	}
	return false
}

var checks = map[platform.Requirement]struct {
	kind  Kind
	stage Stage
}{
	platform.RequireRuntime:        {KindMissingRuntime, StageCheckRuntime},
	platform.RequirePackageManager: {KindMissingPackageManager, StageCheckPackageManager},
	platform.RequireIsolation:      {KindMissingIsolationSupport, StageCheckIsolationSupport},
	platform.RequireGUIBinding:     {KindMissingOptionalBinding, StageCheckOptionalGUIBinding},
}

// CheckError converts a failed probe into an Error. It returns nil for passed probes and
// panics for requirements no stage checks.
func CheckError(r prereq.Result) *Error {
	if r.OK {
		return nil
	}

	check, ok := checks[r.Requirement]
	if !ok {
		panic(fmt.Sprintf("no setup stage checks %s", r.Requirement))
	}
	return &Error{Kind: check.kind, Stage: check.stage, Remedy: r.Remedy, Err: r.Err}
}
