// Package config resolves the wrapper's settings.
//
// Layers, later ones winning:
//
//  1. built-in defaults
//  2. YAML file at $CARGO_WOP_CONFIG or $CARGO_HOME/wop.yaml
//  3. CARGO_WOP_* keys of a .env file in the working directory
//  4. the process environment
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultCacheDirName is the cache directory under CARGO_HOME.
	DefaultCacheDirName = "wop-cache"

	// ConfigFileName is the config file looked up in CARGO_HOME.
	ConfigFileName = "wop.yaml"

	// DotEnvFileName is read from the working directory.
	DotEnvFileName = ".env"

	DiscoveryReport = "report"
	DiscoveryDiff   = "diff"

	envPrefix = "CARGO_WOP_"
)

// Environment variable names.
const (
	EnvConfig    = "CARGO_WOP_CONFIG"
	EnvCacheDir  = "CARGO_WOP_CACHE_DIR"
	EnvLogLevel  = "CARGO_WOP_LOG"
	EnvDiscovery = "CARGO_WOP_DISCOVERY"
	EnvTrace     = "CARGO_WOP_TRACE"
	EnvCargo     = "CARGO"
	EnvCargoHome = "CARGO_HOME"
	EnvTargetDir = "CARGO_TARGET_DIR"
)

// ErrInvalidConfig marks configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the resolved settings.
type Config struct {
	// CacheDir is the absolute root of generated projects.
	CacheDir string `yaml:"cache_dir"`

	// Cargo is the cargo binary.
	Cargo string `yaml:"cargo"`

	// LogLevel is a zap level name.
	LogLevel string `yaml:"log_level"`

	// ArtifactDiscovery is DiscoveryReport or DiscoveryDiff.
	ArtifactDiscovery string `yaml:"artifact_discovery"`

	// TracePath, when set, receives the invocation trace as JSON.
	TracePath string `yaml:"trace_path"`

	// TargetDir is CARGO_TARGET_DIR; empty means <project>/target.
	TargetDir string `yaml:"-"`

	// File is the config file that was applied, if any.
	File string `yaml:"-"`
}

// Environment is what Load reads besides files.
type Environment struct {
	// WorkDir is the absolute invocation directory.
	WorkDir string

	// HomeDir is the user's home directory.
	HomeDir string

	// Lookup reads an environment variable.
	Lookup func(key string) (string, bool)
}

// ProcessEnvironment describes the running process.
func ProcessEnvironment() (Environment, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Environment{}, fmt.Errorf("determining working directory: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Environment{}, fmt.Errorf("determining home directory: %w", err)
	}
	return Environment{WorkDir: wd, HomeDir: home, Lookup: os.LookupEnv}, nil
}

// Default returns the built-in settings for a CARGO_HOME.
func Default(cargoHome string) *Config {
	return &Config{
		CacheDir:          filepath.Join(cargoHome, DefaultCacheDirName),
		Cargo:             "cargo",
		LogLevel:          "warn",
		ArtifactDiscovery: DiscoveryReport,
	}
}

// Load resolves the configuration for env.
func Load(env Environment) (*Config, error) {
	if !filepath.IsAbs(env.WorkDir) {
		return nil, fmt.Errorf("%w: working directory %q is not absolute", ErrInvalidConfig, env.WorkDir)
	}
	if env.Lookup == nil {
		env.Lookup = func(string) (string, bool) { return "", false }
	}

	dotenv, err := readDotEnv(filepath.Join(env.WorkDir, DotEnvFileName))
	if err != nil {
		return nil, err
	}
	get := func(key string) string {
		if v, ok := env.Lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(dotenv[key])
	}

	cargoHome := get(EnvCargoHome)
	if cargoHome == "" {
		cargoHome = filepath.Join(env.HomeDir, ".cargo")
	}
	cfg := Default(cargoHome)

	explicit := get(EnvConfig)
	path := explicit
	if path == "" {
		path = filepath.Join(cargoHome, ConfigFileName)
	}
	path = expandPath(path, env.WorkDir, env.HomeDir)
	found, err := cfg.readFile(path)
	if err != nil {
		return nil, err
	}
	if !found && explicit != "" {
		return nil, fmt.Errorf("%w: %s=%s does not exist", ErrInvalidConfig, EnvConfig, explicit)
	}
	if found {
		cfg.File = path
	}

	cfg.applyEnvOverrides(get)

	cfg.CacheDir = expandPath(cfg.CacheDir, env.WorkDir, env.HomeDir)
	if cfg.TracePath != "" {
		cfg.TracePath = expandPath(cfg.TracePath, env.WorkDir, env.HomeDir)
	}
	if cfg.TargetDir != "" {
		cfg.TargetDir = expandPath(cfg.TargetDir, env.WorkDir, env.HomeDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readDotEnv returns the CARGO_WOP_* entries of a .env file.
// A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if strings.HasPrefix(k, envPrefix) {
			out[k] = v
		}
	}
	return out, nil
}

// readFile merges a YAML file into c. It reports whether the file existed.
func (c *Config) readFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return true, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return true, nil
}

func (c *Config) applyEnvOverrides(get func(string) string) {
	if v := get(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	if v := get(EnvCargo); v != "" {
		c.Cargo = v
	}
	if v := get(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := get(EnvDiscovery); v != "" {
		c.ArtifactDiscovery = v
	}
	if v := get(EnvTrace); v != "" {
		c.TracePath = v
	}
	if v := get(EnvTargetDir); v != "" {
		c.TargetDir = v
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.CacheDir == "" || !filepath.IsAbs(c.CacheDir) {
		return fmt.Errorf("%w: cache_dir %q must be an absolute path", ErrInvalidConfig, c.CacheDir)
	}
	if c.Cargo == "" {
		return fmt.Errorf("%w: cargo must not be empty", ErrInvalidConfig)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	switch c.ArtifactDiscovery {
	case DiscoveryReport, DiscoveryDiff:
	default:
		return fmt.Errorf("%w: artifact_discovery %q (expected %s|%s)", ErrInvalidConfig, c.ArtifactDiscovery, DiscoveryReport, DiscoveryDiff)
	}
	return nil
}

// expandPath resolves ~ and relative paths against home and base.
func expandPath(p, base, home string) string {
	switch {
	case p == "":
		return p
	case p == "~":
		return home
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(home, p[2:])
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	default:
		return filepath.Join(base, p)
	}
}
