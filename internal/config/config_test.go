package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(t *testing.T, vars map[string]string) Environment {
	t.Helper()
	return Environment{
		WorkDir: t.TempDir(),
		HomeDir: t.TempDir(),
		Lookup: func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	env := testEnv(t, nil)

	cfg, err := Load(env)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.HomeDir, ".cargo", DefaultCacheDirName), cfg.CacheDir)
	assert.Equal(t, "cargo", cfg.Cargo)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, DiscoveryReport, cfg.ArtifactDiscovery)
	assert.Empty(t, cfg.TracePath)
	assert.Empty(t, cfg.File)
}

func TestLoad_CargoHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "cargo-home")
	env := testEnv(t, map[string]string{EnvCargoHome: home})

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultCacheDirName), cfg.CacheDir)
}

func TestLoad_YAMLFile(t *testing.T) {
	env := testEnv(t, nil)
	file := filepath.Join(env.HomeDir, ".cargo", ConfigFileName)
	writeFile(t, file, "cache_dir: ~/wop\nlog_level: debug\nartifact_discovery: diff\ntrace_path: trace.json\n")

	cfg, err := Load(env)
	require.NoError(t, err)

	assert.Equal(t, file, cfg.File)
	assert.Equal(t, filepath.Join(env.HomeDir, "wop"), cfg.CacheDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DiscoveryDiff, cfg.ArtifactDiscovery)
	assert.Equal(t, filepath.Join(env.WorkDir, "trace.json"), cfg.TracePath)
}

func TestLoad_ExplicitConfigMustExist(t *testing.T) {
	env := testEnv(t, map[string]string{EnvConfig: "/does/not/exist.yaml"})

	_, err := Load(env)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_UnknownYAMLKey(t *testing.T) {
	env := testEnv(t, nil)
	file := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, file, "cache_directory: /x\n")
	env.Lookup = func(key string) (string, bool) {
		if key == EnvConfig {
			return file, true
		}
		return "", false
	}

	_, err := Load(env)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_EmptyYAMLFile(t *testing.T) {
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.HomeDir, ".cargo", ConfigFileName), "")

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Precedence(t *testing.T) {
	env := testEnv(t, map[string]string{
		EnvLogLevel: "error",
		EnvCargo:    "/opt/rust/bin/cargo",
	})
	writeFile(t, filepath.Join(env.HomeDir, ".cargo", ConfigFileName), "log_level: debug\ncache_dir: /from/yaml\n")
	writeFile(t, filepath.Join(env.WorkDir, DotEnvFileName),
		"CARGO_WOP_LOG=info\nCARGO_WOP_CACHE_DIR=/from/dotenv\nCARGO=/ignored/cargo\n")

	cfg, err := Load(env)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel, "process environment wins over .env")
	assert.Equal(t, filepath.Clean("/from/dotenv"), cfg.CacheDir, ".env wins over YAML")
	assert.Equal(t, "/opt/rust/bin/cargo", cfg.Cargo)
}

func TestLoad_DotEnvOnlyReadsToolKeys(t *testing.T) {
	env := testEnv(t, nil)
	writeFile(t, filepath.Join(env.WorkDir, DotEnvFileName), "CARGO=/from/dotenv/cargo\nCARGO_TARGET_DIR=/tmp/t\n")

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, "cargo", cfg.Cargo)
	assert.Empty(t, cfg.TargetDir)
}

func TestLoad_TargetDir(t *testing.T) {
	env := testEnv(t, map[string]string{EnvTargetDir: "build"})

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.WorkDir, "build"), cfg.TargetDir)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"log level": {EnvLogLevel: "loud"},
		"discovery": {EnvDiscovery: "guess"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(testEnv(t, vars))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_RelativeWorkDir(t *testing.T) {
	_, err := Load(Environment{WorkDir: "rel"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExpandPath(t *testing.T) {
	base, home := filepath.FromSlash("/work"), filepath.FromSlash("/home/u")
	assert.Equal(t, home, expandPath("~", base, home))
	assert.Equal(t, filepath.Join(home, "x"), expandPath("~/x", base, home))
	assert.Equal(t, filepath.Join(base, "x"), expandPath("x", base, home))
	assert.Equal(t, "", expandPath("", base, home))
}
