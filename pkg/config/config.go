// Package config resolves gitclauder settings. Precedence, lowest first:
// built-in defaults, $GITCLAUDER_HOME/config.yaml (or config.toml),
// GITCLAUDER_* environment variables, then command-line flags applied by
// the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitclauder/pkg/protocol"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvHome       = "GITCLAUDER_HOME"
	EnvArchiveDir = "GITCLAUDER_ARCHIVE_DIR"
	EnvQueueDB    = "GITCLAUDER_QUEUE_DB"
	EnvClaudeBin  = "GITCLAUDER_CLAUDE_BIN"
	EnvTimeout    = "GITCLAUDER_TIMEOUT"
	EnvLogLevel   = "GITCLAUDER_LOG_LEVEL"
)

// Log formats.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Claude configures the agent subprocess.
type Claude struct {
	Bin     string   `yaml:"bin" toml:"bin"`
	Args    []string `yaml:"args" toml:"args"`
	Workdir string   `yaml:"workdir" toml:"workdir"`
}

// Config is the resolved configuration.
type Config struct {
	// Home is the state directory; never read from the file itself.
	Home string `yaml:"-" toml:"-"`

	ArchiveDir         string   `yaml:"archive_dir" toml:"archive_dir"`
	StateFile          string   `yaml:"state_file" toml:"state_file"`
	QueueDB            string   `yaml:"queue_db" toml:"queue_db"`
	QueueCommand       string   `yaml:"queue_command" toml:"queue_command"`
	Claude             Claude   `yaml:"claude" toml:"claude"`
	TimeoutSeconds     int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	TierThresholdBytes int      `yaml:"tier_threshold_bytes" toml:"tier_threshold_bytes"`
	MaxResultLength    int      `yaml:"max_result_length" toml:"max_result_length"`
	EscalationKeywords []string `yaml:"escalation_keywords" toml:"escalation_keywords"`
	LogLevel           string   `yaml:"log_level" toml:"log_level"`
	LogFormat          string   `yaml:"log_format" toml:"log_format"`

	// Source is the config file that was applied, if any.
	Source string `yaml:"-" toml:"-"`
}

// Default returns the built-in configuration rooted at home.
func Default(home string) Config {
	archive := filepath.Join(home, protocol.ArchiveDir)
	return Config{
		Home:               home,
		ArchiveDir:         archive,
		StateFile:          filepath.Join(archive, protocol.StateFile),
		QueueDB:            filepath.Join(home, protocol.QueueDB),
		Claude:             Claude{Bin: "claude"},
		TimeoutSeconds:     protocol.DefaultTimeoutSeconds,
		TierThresholdBytes: protocol.TierThreshold,
		MaxResultLength:    protocol.MaxResultLength,
		LogLevel:           "info",
		LogFormat:          LogFormatAuto,
	}
}

// Load resolves the configuration from the environment and config file.
func Load() (Config, error) {
	home, err := ResolveHome()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(home)
}

// ResolveHome returns GITCLAUDER_HOME or ~/.gitclauder.
func ResolveHome() (string, error) {
	if v := os.Getenv(EnvHome); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.HomeDir), nil
}

// LoadFrom resolves the configuration for an explicit home directory.
func LoadFrom(home string) (Config, error) {
	abs, err := filepath.Abs(home)
	if err != nil {
		return Config{}, fmt.Errorf("resolve home %s: %w", home, err)
	}
	cfg := Default(abs)

	if err := cfg.applyFile(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.resolveRelative()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile merges config.yaml, or config.toml when no YAML file exists.
// Keys absent from the file keep their defaults.
func (c *Config) applyFile() error {
	archiveBefore := c.ArchiveDir
	defaultState := c.StateFile

	for _, name := range []string{protocol.ConfigYAML, protocol.ConfigTOML} {
		path := filepath.Join(c.Home, name)
		data, err := os.ReadFile(path) //nolint:gosec // path is under the configured home
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}

		if name == protocol.ConfigYAML {
			err = yaml.Unmarshal(data, c)
		} else {
			err = toml.Unmarshal(data, c)
		}
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		c.Source = path
		break
	}

	// A relocated archive carries its state file along unless one was set.
	if c.ArchiveDir != archiveBefore && c.StateFile == defaultState {
		c.StateFile = filepath.Join(c.ArchiveDir, protocol.StateFile)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvArchiveDir); v != "" {
		if c.StateFile == filepath.Join(c.ArchiveDir, protocol.StateFile) {
			c.StateFile = filepath.Join(v, protocol.StateFile)
		}
		c.ArchiveDir = v
	}
	if v := os.Getenv(EnvQueueDB); v != "" {
		c.QueueDB = v
	}
	if v := os.Getenv(EnvClaudeBin); v != "" {
		c.Claude.Bin = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		secs, err := ParseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.TimeoutSeconds = secs
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// resolveRelative anchors relative paths from the file or env at Home.
func (c *Config) resolveRelative() {
	for _, p := range []*string{&c.ArchiveDir, &c.StateFile, &c.QueueDB} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Home, *p)
		}
	}
}

// ParseSeconds accepts a whole number of seconds or a Go duration ("90s",
// "10m") and returns seconds.
func ParseSeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return int(d / time.Second), nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds))
	}
	if c.TierThresholdBytes <= 0 {
		errs = append(errs, fmt.Errorf("tier_threshold_bytes must be positive, got %d", c.TierThresholdBytes))
	}
	if c.MaxResultLength < 0 {
		errs = append(errs, fmt.Errorf("max_result_length must not be negative, got %d", c.MaxResultLength))
	}
	if c.Claude.Bin == "" {
		errs = append(errs, errors.New("claude.bin must be set"))
	}
	if c.ArchiveDir == "" {
		errs = append(errs, errors.New("archive_dir must be set"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be auto, console or json, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Timeout returns the default agent timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
