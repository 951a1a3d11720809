// Package config loads toolbox settings from a TOML file, an optional
// environment overlay and NRIP_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

const (
	BaseConfigFile       = "nrip.toml"
	OverlayConfigPattern = "nrip.%s.toml"

	EnvNripEnv      = "NRIP_ENV"
	EnvWorkingDir   = "NRIP_WORKING_DIR"
	EnvVerbose      = "NRIP_VERBOSE"
	EnvOnFailure    = "NRIP_ON_FAILURE"
	EnvWhiteboxPath = "NRIP_WHITEBOX_PATH"
	EnvCellSize     = "NRIP_CELL_SIZE"
	EnvLogLevel     = "NRIP_LOG_LEVEL"
	EnvLogFormat    = "NRIP_LOG_FORMAT"
	EnvLedger       = "NRIP_LEDGER"
)

const (
	defaultCellSize  = 100.0
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultOnFailure = string(api.FailureKeep)
)

// Config is the root configuration.
type Config struct {
	WorkingDir string         `toml:"working_dir"`
	Verbose    bool           `toml:"verbose"`
	OnFailure  string         `toml:"on_failure"`
	Whitebox   WhiteboxConfig `toml:"whitebox"`
	Logging    LoggingConfig  `toml:"logging"`
	Ledger     LedgerConfig   `toml:"ledger"`
}

// WhiteboxConfig locates the engine binary.
type WhiteboxConfig struct {
	Path     string  `toml:"path"`
	CellSize float64 `toml:"cell_size"`
}

// LedgerConfig enables the SQLite run ledger when Path is set. The file
// must live outside the working directory.
type LedgerConfig struct {
	Path string `toml:"path"`
}

// Env returns the NRIP_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvNripEnv); env != "" {
		return env
	}
	return "local"
}

// FailurePolicy returns OnFailure parsed.
func (c *Config) FailurePolicy() api.FailurePolicy {
	p, _ := api.ParseFailurePolicy(c.OnFailure)
	return p
}

// Load reads path (BaseConfigFile when empty) if present, applies the
// overlay for NRIP_ENV and finalizes all values. A missing base file is
// not an error when path is empty.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = BaseConfigFile
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if explicit {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if op := overlayPath(filepath.Dir(path)); op != "" {
		overlay, err := load(op)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", op, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.WorkingDir != "" {
		c.WorkingDir = overlay.WorkingDir
	}
	if overlay.Verbose {
		c.Verbose = true
	}
	if overlay.OnFailure != "" {
		c.OnFailure = overlay.OnFailure
	}
	if overlay.Whitebox.Path != "" {
		c.Whitebox.Path = overlay.Whitebox.Path
	}
	if overlay.Whitebox.CellSize != 0 {
		c.Whitebox.CellSize = overlay.Whitebox.CellSize
	}
	c.Logging.Merge(&overlay.Logging)
	if overlay.Ledger.Path != "" {
		c.Ledger.Path = overlay.Ledger.Path
	}
}

func (c *Config) finalize() error {
	c.loadDefaults()
	if err := c.loadEnv(); err != nil {
		return err
	}
	return c.validate()
}

func (c *Config) loadDefaults() {
	if c.OnFailure == "" {
		c.OnFailure = defaultOnFailure
	}
	if c.Whitebox.CellSize == 0 {
		c.Whitebox.CellSize = defaultCellSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

func (c *Config) loadEnv() error {
	if v := os.Getenv(EnvWorkingDir); v != "" {
		c.WorkingDir = v
	}
	if v := os.Getenv(EnvVerbose); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		c.Verbose = b
	}
	if v := os.Getenv(EnvOnFailure); v != "" {
		c.OnFailure = v
	}
	if v := os.Getenv(EnvWhiteboxPath); v != "" {
		c.Whitebox.Path = v
	}
	if v := os.Getenv(EnvCellSize); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCellSize, err)
		}
		c.Whitebox.CellSize = f
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvLedger); v != "" {
		c.Ledger.Path = v
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := api.ParseFailurePolicy(c.OnFailure); err != nil {
		return fmt.Errorf("invalid on_failure: %w", err)
	}
	if c.Whitebox.CellSize <= 0 {
		return fmt.Errorf("invalid whitebox.cell_size: %v", c.Whitebox.CellSize)
	}
	if err := c.Logging.validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Ledger.Path != "" && c.WorkingDir != "" {
		ledger, _ := filepath.Abs(c.Ledger.Path)
		wd, _ := filepath.Abs(c.WorkingDir)
		if rel, err := filepath.Rel(wd, ledger); err == nil && !strings.HasPrefix(rel, "..") {
			return fmt.Errorf("ledger %s must live outside the working directory", c.Ledger.Path)
		}
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func overlayPath(dir string) string {
	if env := os.Getenv(EnvNripEnv); env != "" {
		path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
