package core

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBuildReport(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "Cargo.toml")
	out := filepath.Join(dir, "target", "release")

	stream := strings.Join([]string{
		`{"reason":"compiler-artifact","package_id":"registry+https://github.com/rust-lang/crates.io-index#anyhow@1.0.86","manifest_path":"/registry/anyhow/Cargo.toml","target":{"name":"anyhow","kind":["lib"]},"filenames":["` + out + `/deps/libanyhow.rlib"]}`,
		`{"reason":"compiler-artifact","package_id":"path+file://` + dir + `#hello@0.1.0","manifest_path":"` + manifestPath + `","target":{"name":"build-script-build","kind":["custom-build"]},"filenames":["` + out + `/build/hello/build-script-build"]}`,
		`{"reason":"compiler-message","message":{"rendered":"warning"}}`,
		``,
		`{"reason":"compiler-artifact","package_id":"path+file://` + dir + `#hello@0.1.0","manifest_path":"` + manifestPath + `","target":{"name":"hello","kind":["bin"]},"filenames":["` + out + `/hello"]}`,
		`{"reason":"build-finished","success":true}`,
	}, "\n")

	report, err := ParseBuildReport([]byte(stream), manifestPath, "hello")
	require.NoError(t, err)

	if diff := cmp.Diff([]string{out + "/hello"}, report.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBuildReport_MatchesByPackageID(t *testing.T) {
	stream := strings.Join([]string{
		`{"reason":"compiler-artifact","package_id":"hello 0.1.0 (path+file:///elsewhere)","target":{"kind":["cdylib"]},"filenames":["/t/libhello.so","/t/libhello.so"]}`,
		`{"reason":"compiler-artifact","package_id":"path+file:///x#hello-extra@0.1.0","target":{"kind":["lib"]},"filenames":["/t/libhello_extra.rlib"]}`,
	}, "\n")

	report, err := ParseBuildReport([]byte(stream), "/does/not/match/Cargo.toml", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"/t/libhello.so"}, report.Artifacts)
}

func TestParseBuildReport_InvalidLine(t *testing.T) {
	_, err := ParseBuildReport([]byte("{\"reason\":\"build-finished\"}\nerror: not json\n"), "/p/Cargo.toml", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestPackageIDNames(t *testing.T) {
	tests := []struct {
		id   string
		name string
		want bool
	}{
		{"hello 0.1.0 (path+file:///x)", "hello", true},
		{"hello-world 0.1.0 (path+file:///x)", "hello", false},
		{"path+file:///x#hello@0.1.0", "hello", true},
		{"path+file:///x/hello#0.1.0", "hello", false},
		{"path+file:///x#hello", "hello", true},
		{"", "hello", false},
		{"hello 0.1.0", "", false},
	}
	for _, tt := range tests {
		if got := packageIDNames(tt.id, tt.name); got != tt.want {
			t.Errorf("packageIDNames(%q, %q) = %v, want %v", tt.id, tt.name, got, tt.want)
		}
	}
}
