package core

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// cargoMessage is the subset of cargo's --message-format=json output the
// resolver needs.
type cargoMessage struct {
	Reason       string   `json:"reason"`
	PackageID    string   `json:"package_id"`
	ManifestPath string   `json:"manifest_path"`
	Filenames    []string `json:"filenames"`
	Target       struct {
		Name string   `json:"name"`
		Kind []string `json:"kind"`
	} `json:"target"`
}

// BuildReport lists the artifact files cargo reported for one package.
type BuildReport struct {
	Artifacts []string
}

// ParseBuildReport reads cargo's JSON message stream and collects the
// filenames of compiler-artifact messages belonging to the project.
//
// A message belongs to the project when its manifest_path is manifestPath or
// its package id names packageName. Build script artifacts are ignored.
// Lines that are not JSON objects make the whole report invalid.
func ParseBuildReport(data []byte, manifestPath, packageName string) (*BuildReport, error) {
	want := canonicalPath(manifestPath)
	report := &BuildReport{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg cargoMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("build report line %d: %w", lineNo, err)
		}
		if msg.Reason != "compiler-artifact" {
			continue
		}
		if isBuildScript(msg.Target.Kind) {
			continue
		}
		if canonicalPath(msg.ManifestPath) != want && !packageIDNames(msg.PackageID, packageName) {
			continue
		}
		report.Artifacts = append(report.Artifacts, msg.Filenames...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading build report: %w", err)
	}

	report.Artifacts = deduplicateSorted(sortedCopy(report.Artifacts))
	return report, nil
}

func isBuildScript(kinds []string) bool {
	for _, k := range kinds {
		if k == "custom-build" {
			return true
		}
	}
	return false
}

// packageIDNames matches both package id formats:
//
//	name 0.1.0 (path+file:///dir)
//	path+file:///dir#name@0.1.0
func packageIDNames(id, name string) bool {
	if id == "" || name == "" {
		return false
	}
	if strings.HasPrefix(id, name+" ") {
		return true
	}
	if i := strings.LastIndexByte(id, '#'); i >= 0 {
		frag := id[i+1:]
		return frag == name || strings.HasPrefix(frag, name+"@")
	}
	return false
}

func canonicalPath(p string) string {
	if p == "" {
		return ""
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	return filepath.Clean(p)
}
