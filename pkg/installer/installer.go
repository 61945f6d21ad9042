// Package installer installs the manifest into an activated environment.
package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/mpe-exporter/mpe-setup/pkg/logging"
	"github.com/mpe-exporter/mpe-setup/pkg/manifest"
	"github.com/mpe-exporter/mpe-setup/pkg/shell"
	"github.com/mpe-exporter/mpe-setup/pkg/venv"
)

// Installer runs "python -m pip install -r <manifest>" with the environment's variables.
// The interpreter is resolved through the activated PATH, so the environment's own pip
// is used.
type Installer struct {
	Runner    shell.Runner
	Dir       string
	ExtraArgs []string
	// Verbose streams pip's output to Out instead of summarizing it in a spinner.
	Verbose bool
	Out     io.Writer
	DryRun  bool
}

// Options control a single Install call.
type Options struct {
	// SkipDigest skips pip when the install digest equals it.
	SkipDigest string
}

// Result describes a finished install.
type Result struct {
	Manifest *manifest.Manifest
	// Digest identifies the manifest content together with the extra pip arguments.
	Digest  string
	Skipped bool
}

// Digest combines the manifest digest with the extra pip arguments. Without arguments it
// is the manifest digest.
func Digest(m *manifest.Manifest, extraArgs []string) string {
	if len(extraArgs) == 0 {
		return m.Digest
	}

	hash := sha256.New()
	_, _ = io.WriteString(hash, m.Digest)
	for _, arg := range extraArgs {
		_, _ = io.WriteString(hash, "\x00"+arg)
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// Install activates env and installs every requirement of the manifest at path. Any
// failure leaves env deactivated.
func (i *Installer) Install(ctx context.Context, env *venv.Environment, path string, opts Options) (*Result, error) {
	log := logging.Log(ctx)

	if err := i.activate(ctx, env); err != nil {
		return nil, err
	}

	m, err := manifest.Load(path)
	if err != nil {
		env.Deactivate()
		return nil, eris.Wrap(err, "Failed to read the dependency manifest")
	}

	log.Info().
		Str("stage", "install").
		Str("path", path).
		Msgf("%s lists %s", path, m.Summary(5))

	digest := Digest(m, i.ExtraArgs)
	if opts.SkipDigest != "" && opts.SkipDigest == digest {
		log.Info().Str("stage", "install").Msg("manifest unchanged since the last successful install, skipping pip")
		return &Result{Manifest: m, Digest: digest, Skipped: true}, nil
	}

	args := append([]string{"python", "-m", "pip", "install", "-r", path}, i.ExtraArgs...)
	log.Info().
		Str("stage", "install").
		Bool("command", true).
		Msg(shell.Format(args))

	vars, unset := env.Vars()
	inv := shell.Invocation{
		Args:  args,
		Dir:   i.Dir,
		Env:   vars,
		Unset: unset,
	}

	tail := newTailWriter(20)
	var bar *progressbar.ProgressBar
	var lines *lineWriter
	if i.Verbose || i.DryRun {
		inv.Stdout = i.out()
		inv.Stderr = i.out()
	} else {
		bar = newSpinner(i.out())
		lines = newLineWriter(func(line string) {
			tail.add(line)
			describe(bar, line)
		})
		inv.Stdout = lines
		inv.Stderr = lines
	}

	err = i.Runner.Run(ctx, inv)
	if lines != nil {
		lines.Flush()
	}
	if bar != nil {
		_ = bar.Finish()
		_, _ = io.WriteString(i.out(), "\n")
	}

	if err != nil {
		env.Deactivate()
		if output := tail.String(); output != "" {
			return nil, eris.Wrapf(err, "pip install failed, last output:\n%s", output)
		}
		return nil, eris.Wrap(err, "pip install failed")
	}

	return &Result{Manifest: m, Digest: digest}, nil
}

func (i *Installer) activate(ctx context.Context, env *venv.Environment) error {
	if i.DryRun {
		exists, err := env.Exists()
		if err == nil && !exists {
			logging.Log(ctx).Info().Str("stage", "install").Msgf("would activate %s", env.Name)
			return nil
		}
	}

	if err := env.Activate(); err != nil {
		env.Deactivate()
		return eris.Wrapf(err, "Failed to activate %s", env.Name)
	}

	logging.Log(ctx).Debug().Str("stage", "install").Str("path", env.Path).Msg("environment activated")
	return nil
}

func (i *Installer) out() io.Writer {
	if i.Out == nil {
		return os.Stderr
	}
	return i.Out
}

func newSpinner(out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("pip install"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(os.Getenv("CI") != "true"),
	)
}

const maxDescription = 60

func describe(bar *progressbar.ProgressBar, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	bar.Describe(truncate(line, maxDescription))
	_ = bar.Add(1)
}

// truncate shortens line to at most limit characters.
func truncate(line string, limit int) string {
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	return string(runes[:limit-3]) + "..."
}
