package core

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNoArtifactProduced marks builds that did not produce an expected file.
// It is a warning: the build itself succeeded.
var ErrNoArtifactProduced = errors.New("no artifact produced")

// ArtifactEntry pairs a generated file with where it ended up.
type ArtifactEntry struct {
	// Source is the absolute path of the file cargo produced.
	Source string

	// Destination is the absolute copy target; empty when Skipped.
	Destination string

	// Skipped is set when the filter table suppresses the copy.
	Skipped bool
}

// Renamed reports whether the filter table changed the file name.
func (a ArtifactEntry) Renamed() bool {
	return !a.Skipped && filepath.Base(a.Source) != filepath.Base(a.Destination)
}

// ArtifactWarning is a non-fatal artifact problem.
type ArtifactWarning struct {
	// Name is the file name concerned; empty for build-wide warnings.
	Name string
	Msg  string
}

func (w *ArtifactWarning) Error() string {
	if w.Name == "" {
		return fmt.Sprintf("%s: %s", ErrNoArtifactProduced, w.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrNoArtifactProduced, w.Name, w.Msg)
}

func (w *ArtifactWarning) Unwrap() error { return ErrNoArtifactProduced }
