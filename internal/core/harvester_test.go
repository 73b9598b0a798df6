package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargowop/internal/manifest"
)

func writeArtifacts(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("artifact "+name), 0o755); err != nil {
			t.Fatalf("failed to write artifact: %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestArtifactResolver_CopiesUnfiltered(t *testing.T) {
	out, dest := t.TempDir(), t.TempDir()
	artifacts := writeArtifacts(t, out, "hello")

	entries, warnings, err := NewArtifactResolver(dest, nil).Resolve(artifacts, manifest.ToolSection{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	want := []ArtifactEntry{{Source: artifacts[0], Destination: filepath.Join(dest, "hello")}}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(dest, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "artifact hello", string(data))

	info, err := os.Stat(filepath.Join(dest, "hello"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestArtifactResolver_RenameAndSkip(t *testing.T) {
	out, dest := t.TempDir(), t.TempDir()
	artifacts := writeArtifacts(t, out, "libexample.so", "libexample.rlib")

	tool := manifest.ToolSection{Filter: map[string]string{
		"libexample.so":   "example.so",
		"libexample.rlib": "",
	}}
	entries, warnings, err := NewArtifactResolver(dest, nil).Resolve(artifacts, tool)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	want := []ArtifactEntry{
		{Source: filepath.Join(out, "libexample.rlib"), Skipped: true},
		{Source: filepath.Join(out, "libexample.so"), Destination: filepath.Join(dest, "example.so")},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, entries[1].Renamed())
	assert.False(t, entries[0].Renamed())

	assert.FileExists(t, filepath.Join(dest, "example.so"))
	assert.NoFileExists(t, filepath.Join(dest, "libexample.so"))
	assert.NoFileExists(t, filepath.Join(dest, "libexample.rlib"))
}

func TestArtifactResolver_UnproducedFilterEntryWarns(t *testing.T) {
	out, dest := t.TempDir(), t.TempDir()
	artifacts := writeArtifacts(t, out, "libexample.so")

	tool := manifest.ToolSection{Filter: map[string]string{
		"libexample.so":    "example.so",
		"example.dll":      "example.pyd",
		"libexample.dylib": "example.so",
	}}
	_, warnings, err := NewArtifactResolver(dest, nil).Resolve(artifacts, tool)
	require.NoError(t, err)
	require.Len(t, warnings, 2)

	var names []string
	for _, w := range warnings {
		assert.True(t, errors.Is(w, ErrNoArtifactProduced))
		var aw *ArtifactWarning
		require.ErrorAs(t, w, &aw)
		names = append(names, aw.Name)
	}
	assert.Equal(t, []string{"example.dll", "libexample.dylib"}, names)
}

func TestArtifactResolver_NoArtifactsWarns(t *testing.T) {
	_, warnings, err := NewArtifactResolver(t.TempDir(), nil).Resolve(nil, manifest.ToolSection{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], ErrNoArtifactProduced)
}

func TestArtifactResolver_DeduplicatesInput(t *testing.T) {
	out, dest := t.TempDir(), t.TempDir()
	artifacts := writeArtifacts(t, out, "b", "a")
	artifacts = append(artifacts, artifacts[0])

	entries, _, err := NewArtifactResolver(dest, nil).Resolve(artifacts, manifest.ToolSection{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join(out, "a"), entries[0].Source)
	assert.Equal(t, filepath.Join(out, "b"), entries[1].Source)
}

func TestArtifactResolver_MissingSourceFails(t *testing.T) {
	_, _, err := NewArtifactResolver(t.TempDir(), nil).Resolve([]string{filepath.Join(t.TempDir(), "gone")}, manifest.ToolSection{})
	assert.Error(t, err)
}

func TestDeduplicateSorted(t *testing.T) {
	got := deduplicateSorted([]string{"a", "a", "b", "c", "c", "c"})
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := deduplicateSorted(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
