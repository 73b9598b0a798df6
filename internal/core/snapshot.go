package core

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// OutputSnapshot records the top-level files of a cargo output directory
// (target/<profile>). Diffing two snapshots is the fallback artifact
// discovery used when the report pass is unavailable.
//
// The fallback only sees files whose size or modification time changed, so
// a fully up-to-date build reports nothing. Dep-info files (*.d) and hidden
// files are ignored.
type OutputSnapshot struct {
	Dir   string
	files map[string]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// TakeSnapshot lists dir. A missing directory yields an empty snapshot.
func TakeSnapshot(dir string) (*OutputSnapshot, error) {
	snap := &OutputSnapshot{Dir: dir, files: map[string]fileStamp{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".d") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		snap.files[name] = fileStamp{size: info.Size(), modTime: info.ModTime()}
	}
	return snap, nil
}

// Changed returns the absolute paths of files in after that are new or
// differ from s, sorted.
func (s *OutputSnapshot) Changed(after *OutputSnapshot) []string {
	var out []string
	for name, st := range after.files {
		old, ok := s.files[name]
		if ok && old.size == st.size && old.modTime.Equal(st.modTime) {
			continue
		}
		out = append(out, filepath.Join(after.Dir, name))
	}
	sort.Strings(out)
	return out
}

// OutputDir returns the directory cargo writes final artifacts to for the
// given build arguments.
func OutputDir(targetDir string, args []string) string {
	profile := "debug"
	triple := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		switch {
		case a == "--release" || a == "-r":
			profile = "release"
		case a == "--profile" && i+1 < len(args):
			profile = profileDir(args[i+1])
			i++
		case strings.HasPrefix(a, "--profile="):
			profile = profileDir(strings.TrimPrefix(a, "--profile="))
		case a == "--target" && i+1 < len(args):
			triple = args[i+1]
			i++
		case strings.HasPrefix(a, "--target="):
			triple = strings.TrimPrefix(a, "--target=")
		}
	}
	if triple != "" {
		return filepath.Join(targetDir, triple, profile)
	}
	return filepath.Join(targetDir, profile)
}

func profileDir(profile string) string {
	switch profile {
	case "dev", "test":
		return "debug"
	case "bench":
		return "release"
	default:
		return profile
	}
}
