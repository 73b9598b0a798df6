package core

import (
	"os"
	"path/filepath"
	"testing"
)

const helloScript = `//! A small tool.
//!
//! ` + "```cargo" + `
//! [dependencies]
//! ` + "```" + `

fn main() {
    println!("hello");
}
`

// writeScript writes content to dir/name and returns the symlink-resolved
// path.
func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("failed to resolve %s: %v", path, err)
	}
	return real
}

func newTestCache(t *testing.T) *ProjectCache {
	t.Helper()
	c, err := NewProjectCache(filepath.Join(t.TempDir(), "cache"), nil)
	if err != nil {
		t.Fatalf("NewProjectCache failed: %v", err)
	}
	return c
}
