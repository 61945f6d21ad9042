package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/mpe-exporter/mpe-setup/pkg/platform"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "mpe-setup.toml"

// Config describes all configuration options
type Config struct {
	Env struct {
		Dir string `default:"venv" toml:"dir" env:"DIR" usage:"Directory of the isolated environment"`
	} `toml:"env" env:"ENV"`
	Manifest string `default:"requirements.txt" toml:"manifest" env:"MANIFEST" usage:"Dependency manifest passed to pip install -r"`
	Python   struct {
		Runtime    string `toml:"runtime" env:"RUNTIME" usage:"Interpreter command (python3 on POSIX, python on Windows)"`
		Pip        string `toml:"pip" env:"PIP" usage:"Standalone pip command used when python -m pip is unavailable"`
		MinVersion string `toml:"min_version" env:"MIN_VERSION" usage:"Version constraint the interpreter has to satisfy (i.e. >=3.8)"`
	} `toml:"python" env:"PYTHON"`
	GUI struct {
		Module string `default:"tkinter" toml:"module" env:"MODULE" usage:"Optional GUI binding module to probe"`
	} `toml:"gui" env:"GUI"`
	Pip struct {
		Args []string `toml:"args" env:"ARGS" usage:"Extra arguments for pip install"`
	} `toml:"pip" env:"PIP"`
	Log struct {
		Level string `default:"info" toml:"level" env:"LEVEL"`
		JSON  bool   `default:"false" toml:"json" env:"JSON" usage:"Output JSON lines instead of pretty console messages"`
	} `toml:"log" env:"LOG"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Only existing files are passed on; command line flags are handled by cobra.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "MPE_SETUP",
		Files:     existing,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration. An explicitly requested file has to exist; otherwise
// DefaultFile inside workDir is used if present.
func Load(workDir, file string) (*Config, error) {
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, eris.Wrapf(err, "Could not open config file %s", file)
		}
	} else {
		file = filepath.Join(workDir, DefaultFile)
	}

	cfg, loader := Loader(file)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "Failed to load configuration")
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if err := checkName("env.dir", cfg.Env.Dir); err != nil {
		return err
	}

	if err := checkName("manifest", cfg.Manifest); err != nil {
		return err
	}

	if filepath.Clean(cfg.Env.Dir) == filepath.Clean(cfg.Manifest) {
		return eris.Errorf(`env.dir and manifest both point to %s`, cfg.Manifest)
	}

	if cfg.Python.MinVersion != "" {
		if _, err := semver.NewConstraint(cfg.Python.MinVersion); err != nil {
			return eris.Wrapf(err, `Invalid value for python.min_version: %s`, cfg.Python.MinVersion)
		}
	}

	if strings.TrimSpace(cfg.GUI.Module) == "" {
		return eris.New(`gui.module must not be empty`)
	}

	return nil
}

func checkName(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return eris.Errorf(`%s must not be empty`, key)
	}

	switch filepath.Clean(value) {
	case ".", "..":
		return eris.Errorf(`Invalid value for %s: %s`, key, value)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// RuntimeCommand returns the configured interpreter or the platform default.
func (cfg *Config) RuntimeCommand(p platform.Platform) string {
	if cfg.Python.Runtime != "" {
		return cfg.Python.Runtime
	}
	return p.Runtime()
}

// PipCommand returns the configured standalone pip or the platform default.
func (cfg *Config) PipCommand(p platform.Platform) string {
	if cfg.Python.Pip != "" {
		return cfg.Python.Pip
	}
	return p.PackageManager()
}
