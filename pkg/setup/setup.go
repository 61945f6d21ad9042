// Package setup drives the provisioning flow: prerequisite checks, environment creation and
// dependency installation, in that order and without retries.
package setup

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/mpe-exporter/mpe-setup/pkg/installer"
	"github.com/mpe-exporter/mpe-setup/pkg/logging"
	"github.com/mpe-exporter/mpe-setup/pkg/manifest"
	"github.com/mpe-exporter/mpe-setup/pkg/platform"
	"github.com/mpe-exporter/mpe-setup/pkg/prereq"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
	"github.com/mpe-exporter/mpe-setup/pkg/state"
	"github.com/mpe-exporter/mpe-setup/pkg/venv"
)

// Options carries everything a setup run needs besides the runner.
type Options struct {
	WorkDir    string
	EnvDir     string
	Manifest   string
	Python     string
	Pip        string
	GUIModule  string
	MinVersion string
	PipArgs    []string
	// SkipUnchanged skips pip when the manifest and PipArgs match the last successful install.
	SkipUnchanged bool
	DryRun        bool
	Verbose       bool
	// Out receives pip output and the install spinner.
	Out io.Writer
}

// Report describes what a run did.
type Report struct {
	Stages   []Stage
	Checks   []prereq.Result
	Warnings []prereq.Result
	Created  bool
	Skipped  bool
	Env      *venv.Environment
	Manifest *manifest.Manifest
	// ActivationHints are the shell commands that activate the environment interactively.
	ActivationHints []string
	RunID           string
	Err             error
}

// Final returns the stage the run ended in.
func (r *Report) Final() Stage {
	if len(r.Stages) == 0 {
		return StageCheckRuntime
	}
	return r.Stages[len(r.Stages)-1]
}

// Setup runs the state machine.
type Setup struct {
	Runner   shell.Runner
	Platform platform.Platform
	Options  Options
}

type run struct {
	*Setup
	report  *Report
	env     *venv.Environment
	checker *prereq.Checker
	store   *state.Store
	record  *state.Run
}

// Run executes all stages. The returned error is a *Error for every fatal failure.
func (s *Setup) Run(ctx context.Context) (*Report, error) {
	r := &run{
		Setup:  s,
		report: &Report{},
		env:    venv.New(s.Options.WorkDir, s.Options.EnvDir, s.Platform),
		checker: &prereq.Checker{
			Runner:     s.Runner,
			Platform:   s.Platform,
			Dir:        s.Options.WorkDir,
			Python:     s.Options.Python,
			Pip:        s.Options.Pip,
			GUIModule:  s.Options.GUIModule,
			MinVersion: s.Options.MinVersion,
		},
		record: state.NewRun(StageCheckRuntime.String()),
	}
	r.report.Env = r.env
	r.report.RunID = r.record.ID
	defer r.close(ctx)

	stage := StageCheckRuntime
	for !stage.Terminal() {
		r.report.Stages = append(r.report.Stages, stage)
		r.record.Stage = stage.String()

		next, err := r.step(ctx, stage)
		if err != nil {
			r.report.Err = err
			r.report.Stages = append(r.report.Stages, StageFailed)
			logging.Log(ctx).Debug().Err(err).Str("stage", stage.String()).Msg("stage failed")
			return r.report, err
		}

		stage = next
	}

	r.report.Stages = append(r.report.Stages, StageDone)
	r.report.ActivationHints = s.Platform.ActivationHints(s.Options.EnvDir)
	return r.report, nil
}

func (r *run) step(ctx context.Context, stage Stage) (Stage, error) {
	switch stage {
	case StageCheckRuntime:
		return r.require(ctx, stage, r.checker.Runtime(ctx), StageCheckPackageManager)
	case StageCheckPackageManager:
		return r.require(ctx, stage, r.checker.PackageManager(ctx), StageCheckIsolationSupport)
	case StageCheckIsolationSupport:
		return r.require(ctx, stage, r.checker.Isolation(ctx), StageCheckOptionalGUIBinding)
	case StageCheckOptionalGUIBinding:
		return r.optional(ctx, stage, r.checker.GUIBinding(ctx)), nil
	case StageEnsureEnvironmentDir:
		return r.ensureEnvironment(ctx)
	case StageActivateAndInstall:
		return r.install(ctx)
	}

	return StageFailed, eris.Errorf("unexpected stage %s", stage)
}

func (r *run) require(ctx context.Context, stage Stage, result prereq.Result, next Stage) (Stage, error) {
	r.report.Checks = append(r.report.Checks, result)
	if err := CheckError(result); err != nil {
		return StageFailed, err
	}

	event := logging.Log(ctx).Info().Str("stage", stage.String())
	if result.Version != "" {
		event.Msgf("found %s %s", result.Name, result.Version)
	} else {
		event.Msgf("found %s", result.Name)
	}
	return next, nil
}

func (r *run) optional(ctx context.Context, stage Stage, result prereq.Result) Stage {
	r.report.Checks = append(r.report.Checks, result)
	if result.OK {
		logging.Log(ctx).Info().Str("stage", stage.String()).Msgf("found %s", result.Name)
	} else {
		r.report.Warnings = append(r.report.Warnings, result)
		logging.Log(ctx).Warn().
			Str("stage", stage.String()).
			Msgf("%s is not available, GUI and plotting features will not work. %s", result.Name, result.Remedy)
	}

	return StageEnsureEnvironmentDir
}

func (r *run) ensureEnvironment(ctx context.Context) (Stage, error) {
	p := &venv.Provisioner{
		Runner: r.Runner,
		Python: r.Options.Python,
		Dir:    r.Options.WorkDir,
		DryRun: r.Options.DryRun,
	}

	created, err := p.Ensure(ctx, r.env)
	if err != nil {
		return StageFailed, &Error{
			Kind:   KindEnvironmentCreation,
			Stage:  StageEnsureEnvironmentDir,
			Remedy: fmt.Sprintf("Make sure %s is writable and that \"%s -m venv\" works, then run the setup again.", r.Options.WorkDir, r.Options.Python),
			Err:    err,
		}
	}

	r.report.Created = created
	if created {
		logging.Log(ctx).Info().Str("stage", StageEnsureEnvironmentDir.String()).Msgf("created %s", r.env.Name)
	}

	r.openStore(ctx)
	return StageActivateAndInstall, nil
}

func (r *run) install(ctx context.Context) (Stage, error) {
	manifestPath := r.Options.Manifest
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(r.Options.WorkDir, manifestPath)
	}
	r.record.Manifest = r.Options.Manifest

	opts := installer.Options{}
	if r.Options.SkipUnchanged && r.store != nil {
		stamp, err := r.store.Stamp()
		if err != nil {
			logging.Log(ctx).Warn().Err(err).Str("stage", StageActivateAndInstall.String()).Msg("could not read the install stamp")
		} else if stamp != nil {
			opts.SkipDigest = stamp.Digest
		}
	}

	inst := &installer.Installer{
		Runner:    r.Runner,
		Dir:       r.Options.WorkDir,
		ExtraArgs: r.Options.PipArgs,
		Verbose:   r.Options.Verbose,
		Out:       r.Options.Out,
		DryRun:    r.Options.DryRun,
	}

	result, err := inst.Install(ctx, r.env, manifestPath, opts)
	if err != nil {
		// Install already deactivates on failure; this covers errors raised before activation.
		r.env.Deactivate()
		if r.store != nil {
			if cErr := r.store.ClearStamp(); cErr != nil {
				logging.Log(ctx).Warn().Err(cErr).Msg("could not clear the install stamp")
			}
		}

		return StageFailed, &Error{
			Kind:   KindDependencyInstall,
			Stage:  StageActivateAndInstall,
			Remedy: fmt.Sprintf("Check %s and the pip output above. %s was kept, run the setup again once the manifest is fixed.", r.Options.Manifest, r.Options.EnvDir),
			Err:    err,
		}
	}

	r.report.Manifest = result.Manifest
	r.report.Skipped = result.Skipped
	r.record.Digest = result.Digest
	r.record.Skipped = result.Skipped

	if r.store != nil && !result.Skipped && !r.Options.DryRun {
		err := r.store.SaveStamp(state.Stamp{
			Manifest: r.Options.Manifest,
			Digest:   result.Digest,
			Packages: result.Manifest.Names(),
			Time:     time.Now().UTC(),
		})
		if err != nil {
			logging.Log(ctx).Warn().Err(err).Msg("could not save the install stamp")
		}
	}

	return StageDone, nil
}

// openStore opens the state database once the environment exists. Failures only disable
// the run history. Dry runs leave the environment untouched and never open it.
func (r *run) openStore(ctx context.Context) {
	if r.Options.DryRun {
		return
	}

	if exists, err := r.env.Exists(); err != nil || !exists {
		return
	}

	store, err := state.Open(r.env.Path)
	if err != nil {
		logging.Log(ctx).Warn().Err(err).Msg("setup state is not available, run history and --skip-unchanged are disabled")
		return
	}

	r.store = store
}

func (r *run) close(ctx context.Context) {
	if r.store == nil {
		return
	}

	r.record.Finished = time.Now().UTC()
	r.record.Outcome = state.OutcomeDone
	if r.report.Err != nil {
		r.record.Outcome = state.OutcomeFailed
		r.record.Error = r.report.Err.Error()
	}

	if err := r.store.SaveRun(r.record); err != nil {
		logging.Log(ctx).Warn().Err(err).Msg("could not record the setup run")
	}

	if err := r.store.Close(); err != nil {
		logging.Log(ctx).Warn().Err(err).Msg("could not close the setup state")
	}
}

// LogReport writes a one-line summary of the report at debug level.
func LogReport(logger *zerolog.Logger, report *Report) {
	stages := make([]string, len(report.Stages))
	for idx, stage := range report.Stages {
		stages[idx] = stage.String()
	}

	logger.Debug().
		Str("run", report.RunID).
		Strs("stages", stages).
		Bool("created", report.Created).
		Bool("skipped", report.Skipped).
		Int("warnings", len(report.Warnings)).
		Msg("setup finished")
}
