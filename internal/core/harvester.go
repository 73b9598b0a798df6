package core

import (
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"cargowop/internal/manifest"
)

// ArtifactResolver relocates build artifacts into the invocation directory.
//
// Each artifact is looked up by file name in the filter table:
//   - no entry: copied unchanged
//   - entry with a destination: copied under that name
//   - entry with an empty destination: not copied
//
// Filter entries that match nothing are warnings, not errors: a manifest may
// name files for several platforms at once.
type ArtifactResolver struct {
	// DestDir is the directory artifacts are copied into.
	DestDir string

	Logger *zap.Logger
}

// NewArtifactResolver creates a resolver copying into destDir.
func NewArtifactResolver(destDir string, logger *zap.Logger) *ArtifactResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactResolver{DestDir: destDir, Logger: logger}
}

// Resolve applies tool's filter table to artifacts and performs the copies.
//
// Artifacts are processed in sorted order. The returned warnings are of type
// *ArtifactWarning.
func (r *ArtifactResolver) Resolve(artifacts []string, tool manifest.ToolSection) ([]ArtifactEntry, []error, error) {
	sorted := deduplicateSorted(sortedCopy(artifacts))

	var warnings []error
	if len(sorted) == 0 {
		warnings = append(warnings, &ArtifactWarning{Msg: "the build reported no artifacts"})
	}

	produced := make(map[string]struct{}, len(sorted))
	entries := make([]ArtifactEntry, 0, len(sorted))
	for _, src := range sorted {
		name := filepath.Base(src)
		produced[name] = struct{}{}

		dest, ok := tool.Destination(name)
		if !ok {
			r.Logger.Debug("artifact skipped by filter", zap.String("artifact", name))
			entries = append(entries, ArtifactEntry{Source: src, Skipped: true})
			continue
		}

		target := filepath.Join(r.DestDir, dest)
		if err := copyFileAtomic(src, target); err != nil {
			return entries, warnings, fmt.Errorf("copying artifact %s to %s: %w", src, target, err)
		}
		r.Logger.Debug("artifact copied", zap.String("from", src), zap.String("to", target))
		entries = append(entries, ArtifactEntry{Source: src, Destination: target})
	}

	for _, name := range tool.FilterNames() {
		if _, ok := produced[name]; !ok {
			warnings = append(warnings, &ArtifactWarning{Name: name, Msg: "listed in the filter table but not produced by this build"})
		}
	}

	return entries, warnings, nil
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// deduplicateSorted removes duplicates from a sorted slice.
func deduplicateSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}

	result := make([]string, 0, len(sorted))
	result = append(result, sorted[0])

	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			result = append(result, sorted[i])
		}
	}

	return result
}
