package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/configor"
)

// Default allow-list of executables that are wrapped through the
// package manager when a Gemfile-style manifest is present. Kept
// configurable because the boundary is a heuristic, not a rule.
var defaultBundlerCommands = []string{
	"rake",
	"rspec",
	"rubocop",
	"erb_lint",
	"srb",
	"sidekiq",
}

// Environment variables set by an enclosing bundler invocation that
// must not leak into child processes.
var defaultPollutionKeys = []string{
	"BUNDLE_GEMFILE",
	"BUNDLE_PATH",
	"BUNDLE_BIN_PATH",
	"BUNDLER_VERSION",
	"GEM_HOME",
	"GEM_PATH",
	"RUBYOPT",
	"RUBYLIB",
}

// Files whose presence signals a version-manager pin in the project.
var defaultVersionPinFiles = []string{
	".tool-versions",
	".mise.toml",
	"mise.toml",
}

// Config - Application configuration
type Config struct {
	Debug bool   `yaml:"debug" default:"false" env:"DEBUG"`
	Log   string `yaml:"log" env:"LOG_PATH"`

	Exec struct {
		// Working directory settings
		DefaultWorkingDir string `yaml:"default_working_dir" env:"DEFAULT_WORKING_DIR"`

		// Extra environment applied to every spawned command
		Environment map[string]string `yaml:"environment"`

		// Search path settings
		SearchPaths  []string `yaml:"search_paths"`
		PathBehavior string   `yaml:"path_behavior" default:"prepend" validate:"oneof=prepend append replace"`

		// Prefix for the engine's own environment variables
		// (<PREFIX>_CALL_TREE and friends).
		EnvPrefix string `yaml:"env_prefix" default:"CMDRUN" validate:"required"`

		// Grace period between the graceful and forceful signals of
		// the timeout escalation.
		GracePeriod string `yaml:"grace_period" default:"500ms"`

		// Package-manager wrapper settings
		ManifestFile    string   `yaml:"manifest_file" default:"Gemfile"`
		BundlerCommands []string `yaml:"bundler_commands"`
		PollutionKeys   []string `yaml:"pollution_keys"`

		// Version-manager wrapper settings
		VersionManager  string   `yaml:"version_manager" default:"mise"`
		VersionPinFiles []string `yaml:"version_pin_files"`

		// Dotenv wrapper settings (wrapper itself is opt-in per call)
		DotenvFile   string   `yaml:"dotenv_file" default:".env"`
		DotenvLoader []string `yaml:"dotenv_loader"`
	} `yaml:"exec"`
}

// GracePeriodDuration parses the configured grace period, falling back
// to 500ms on an unparsable value.
func (c *Config) GracePeriodDuration() time.Duration {
	d, err := time.ParseDuration(c.Exec.GracePeriod)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// LoadConfig - Load configuration file
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Exec.BundlerCommands = defaultBundlerCommands
	cfg.Exec.PollutionKeys = defaultPollutionKeys
	cfg.Exec.VersionPinFiles = defaultVersionPinFiles

	loader := configor.New(&configor.Config{
		Debug:      false,
		Verbose:    false,
		Silent:     true,
		AutoReload: false,
	})

	// A missing config file is fine; defaults and env overrides apply.
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		err = loader.Load(cfg, path)
	} else {
		err = loader.Load(cfg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	// Allow-list override from the environment
	if envCommands := os.Getenv("BUNDLER_COMMANDS"); envCommands != "" {
		cfg.Exec.BundlerCommands = strings.Split(envCommands, ",")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}
