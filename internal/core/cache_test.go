package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"cargowop/internal/manifest"
)

func TestProjectCache_PrepareWritesManifest(t *testing.T) {
	c := newTestCache(t)
	src := writeScript(t, t.TempDir(), "hello.rs", helloScript)

	p, err := c.Prepare(src)
	require.NoError(t, err)

	assert.True(t, p.Written)
	assert.Equal(t, src, p.Source)
	assert.Equal(t, filepath.Join(c.Root, ComputeProjectKey(src).String()), p.Dir)
	assert.Equal(t, "hello", p.Manifest.PackageName)

	data, err := os.ReadFile(p.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, string(p.Manifest.TOML), string(data))

	ref, err := os.ReadFile(filepath.Join(p.Dir, SourceRefFileName))
	require.NoError(t, err)
	assert.Equal(t, src+"\n", string(ref))
}

// An unchanged source must leave the manifest untouched, otherwise cargo
// rebuilds the project on every invocation.
func TestProjectCache_UnchangedSourceDoesNotRewrite(t *testing.T) {
	c := newTestCache(t)
	src := writeScript(t, t.TempDir(), "hello.rs", helloScript)

	first, err := c.Prepare(src)
	require.NoError(t, err)
	require.True(t, first.Written)

	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(first.ManifestPath, past, past))

	second, err := c.Prepare(src)
	require.NoError(t, err)
	assert.False(t, second.Written)

	// A fresh cache compares against the bytes on disk.
	fresh, err := NewProjectCache(c.Root, nil)
	require.NoError(t, err)
	third, err := fresh.Prepare(src)
	require.NoError(t, err)
	assert.False(t, third.Written)

	info, err := os.Stat(first.ManifestPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "manifest mtime changed to %v", info.ModTime())
}

func TestProjectCache_ChangedManifestIsRewritten(t *testing.T) {
	c := newTestCache(t)
	dir := t.TempDir()
	src := writeScript(t, dir, "hello.rs", helloScript)

	_, err := c.Prepare(src)
	require.NoError(t, err)

	changed := strings.Replace(helloScript, "//! [dependencies]", "//! [dependencies]\n//! anyhow = \"1\"", 1)
	writeScript(t, dir, "hello.rs", changed)

	p, err := c.Prepare(src)
	require.NoError(t, err)
	assert.True(t, p.Written)

	data, err := os.ReadFile(p.ManifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "anyhow")
}

func TestProjectCache_DeletedManifestIsRewritten(t *testing.T) {
	c := newTestCache(t)
	src := writeScript(t, t.TempDir(), "hello.rs", helloScript)

	p, err := c.Prepare(src)
	require.NoError(t, err)
	require.NoError(t, os.Remove(p.ManifestPath))

	again, err := c.Prepare(src)
	require.NoError(t, err)
	assert.True(t, again.Written)
	assert.FileExists(t, p.ManifestPath)
}

func TestProjectCache_InvalidManifestWritesNothing(t *testing.T) {
	c := newTestCache(t)
	src := writeScript(t, t.TempDir(), "broken.rs", "fn main() {}\n")

	_, err := c.Prepare(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrMissingManifest)

	_, statErr := os.Stat(c.Locate(src))
	assert.True(t, os.IsNotExist(statErr), "project directory was created for an invalid source")
}

func TestProjectCache_ResolveDoesNotWrite(t *testing.T) {
	c := newTestCache(t)
	src := writeScript(t, t.TempDir(), "hello.rs", helloScript)

	p, err := c.Resolve(src)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Manifest.TOML)

	_, statErr := os.Stat(p.Dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestProjectCache_WriteFailureIsCacheError(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	c, err := NewProjectCache(filepath.Join(blocker, "cache"), nil)
	require.NoError(t, err)
	src := writeScript(t, t.TempDir(), "hello.rs", helloScript)

	_, err = c.Prepare(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCacheWrite), "got %v", err)

	var cerr *CacheError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "mkdir", cerr.Op)
}

func TestProjectCache_Remove(t *testing.T) {
	c := newTestCache(t)
	src := writeScript(t, t.TempDir(), "hello.rs", helloScript)

	p, err := c.Prepare(src)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(p.Dir, "target", "release"), 0o755))

	dir, err := c.Remove(src)
	require.NoError(t, err)
	assert.Equal(t, p.Dir, dir)
	assert.NoDirExists(t, p.Dir)

	// Removing again is not an error.
	_, err = c.Remove(src)
	assert.NoError(t, err)

	again, err := c.Prepare(src)
	require.NoError(t, err)
	assert.True(t, again.Written)
}

func TestNewProjectCache_RelativeRoot(t *testing.T) {
	_, err := NewProjectCache("relative/cache", nil)
	assert.Error(t, err)
}

func TestWriteFileIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "file.txt")

	written, err := WriteFileIfChanged(path, []byte("a"), 0o644)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteFileIfChanged(path, []byte("a"), 0o644)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = WriteFileIfChanged(path, []byte("b"), 0o644)
	require.NoError(t, err)
	assert.True(t, written)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files left behind")
}

func TestProjectCache_RenderFor(t *testing.T) {
	c := newTestCache(t)
	dir := t.TempDir()
	src := writeScript(t, dir, "hello.rs", helloScript)

	n, err := c.RenderFor(src, dir)
	require.NoError(t, err)
	assert.Contains(t, string(n.TOML), src)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "RenderFor must not write")
}

func TestProjectCache_RemoveAfterSourceDeleted(t *testing.T) {
	c := newTestCache(t)
	src := writeScript(t, t.TempDir(), "hello.rs", helloScript)

	p, err := c.Prepare(src)
	require.NoError(t, err)
	require.NoError(t, os.Remove(src))

	dir, err := c.Remove(src)
	require.NoError(t, err)
	assert.Equal(t, p.Dir, dir)
	assert.NoDirExists(t, p.Dir)
}

func TestProjectCache_ReusesExtractedManifest(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	c, err := NewProjectCache(filepath.Join(t.TempDir(), "cache"), zap.New(obs))
	require.NoError(t, err)
	dir := t.TempDir()
	src := writeScript(t, dir, "hello.rs", helloScript)

	resolved, err := c.Resolve(src)
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("manifest memo hit").Len())

	rendered, err := c.RenderFor(src, resolved.Dir)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("manifest memo hit").Len())
	assert.Equal(t, string(resolved.Manifest.TOML), string(rendered.TOML))

	// Edited sources are extracted again.
	writeScript(t, dir, "hello.rs", strings.Replace(helloScript, "//! [dependencies]", "//! [dependencies]\n//! anyhow = \"1\"", 1))
	changed, err := c.RenderFor(src, resolved.Dir)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("manifest memo hit").Len())
	assert.Contains(t, string(changed.TOML), "anyhow")
}
