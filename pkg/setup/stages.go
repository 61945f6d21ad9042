package setup

import "fmt"

// Stage is a state of the setup flow. The order of the constants is the order in which
// the stages run.
type Stage int

const (
	StageCheckRuntime Stage = iota
	StageCheckPackageManager
	StageCheckIsolationSupport
	StageCheckOptionalGUIBinding
	StageEnsureEnvironmentDir
	StageActivateAndInstall
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageCheckRuntime:            "runtime",
	StageCheckPackageManager:     "pip",
	StageCheckIsolationSupport:   "venv",
	StageCheckOptionalGUIBinding: "gui",
	StageEnsureEnvironmentDir:    "environment",
	StageActivateAndInstall:      "install",
	StageDone:                    "done",
	StageFailed:                  "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether the flow stops in this stage.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}
