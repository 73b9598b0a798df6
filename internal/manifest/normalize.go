package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// ToolSectionKey names the table understood only by this wrapper.
	ToolSectionKey = "cargo-wop"

	DefaultVersion = "0.1.0"
	DefaultEdition = "2021"
)

// Normalized is the manifest handed to cargo plus the wrapper's own settings.
type Normalized struct {
	// TOML is the complete Cargo.toml content, tool section stripped.
	TOML []byte

	// PackageName is the (possibly synthesized) package.name.
	PackageName string

	// Tool is the parsed [cargo-wop] table; zero value when absent.
	Tool ToolSection
}

// Normalize builds a complete manifest from frag for the source file at
// sourcePath, to be written into manifestDir.
//
// sourcePath must be absolute. Author-provided package fields are kept;
// missing ones are synthesized from the file stem. Path dependencies are
// rewritten relative to manifestDir.
func Normalize(frag Fragment, sourcePath, manifestDir string) (*Normalized, error) {
	if !filepath.IsAbs(sourcePath) {
		return nil, fmt.Errorf("source path %q is not absolute", sourcePath)
	}
	if !filepath.IsAbs(manifestDir) {
		return nil, fmt.Errorf("manifest dir %q is not absolute", manifestDir)
	}

	root := map[string]any{}
	if err := toml.Unmarshal([]byte(frag.Text), &root); err != nil {
		return nil, tomlSyntaxError(frag, err)
	}

	tool, err := popToolSection(root)
	if err != nil {
		return nil, err
	}

	name, err := ensurePackage(root, sourcePath)
	if err != nil {
		return nil, err
	}

	r := pathRewriter{sourceDir: filepath.Dir(sourcePath), manifestDir: manifestDir}
	if err := ensureTargets(root, sourcePath, name, r); err != nil {
		return nil, err
	}
	if err := r.rewriteManifest(root); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(false)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	return &Normalized{TOML: buf.Bytes(), PackageName: name, Tool: tool}, nil
}

func tomlSyntaxError(frag Fragment, err error) error {
	var de *toml.DecodeError
	if errors.As(err, &de) {
		row, _ := de.Position()
		line := 0
		if row > 0 && frag.StartLine > 0 {
			line = frag.StartLine + row - 1
		}
		return syntaxErrorf(line, "%s", de.Error())
	}
	return syntaxErrorf(0, "%v", err)
}

// ensurePackage fills in [package] name, version and edition if absent and
// returns the effective name.
func ensurePackage(root map[string]any, sourcePath string) (string, error) {
	raw, ok := root["package"]
	if !ok {
		raw = map[string]any{}
		root["package"] = raw
	}
	pkg, ok := raw.(map[string]any)
	if !ok {
		return "", syntaxErrorf(0, "package must be a table, got %T", raw)
	}

	if _, ok := pkg["name"]; !ok {
		pkg["name"] = PackageNameFor(sourcePath)
	}
	name, ok := pkg["name"].(string)
	if !ok || name == "" {
		return "", syntaxErrorf(0, "package.name must be a non-empty string")
	}
	if _, ok := pkg["version"]; !ok {
		pkg["version"] = DefaultVersion
	}
	if _, ok := pkg["edition"]; !ok {
		pkg["edition"] = DefaultEdition
	}
	return name, nil
}

// PackageNameFor derives a cargo package name from the source file stem.
func PackageNameFor(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "script"
	}
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ensureTargets makes every [lib] and [[bin]] point at the source file and
// injects a [[bin]] when the author declared no target.
func ensureTargets(root map[string]any, sourcePath, name string, r pathRewriter) error {
	declared := false

	if raw, ok := root["lib"]; ok {
		lib, ok := raw.(map[string]any)
		if !ok {
			return syntaxErrorf(0, "lib must be a table, got %T", raw)
		}
		if err := patchTarget(lib, "lib", sourcePath, r); err != nil {
			return err
		}
		declared = true
	}

	if raw, ok := root["bin"]; ok {
		bins, ok := raw.([]any)
		if !ok {
			return syntaxErrorf(0, "bin must be an array of tables, got %T", raw)
		}
		for i, b := range bins {
			bin, ok := b.(map[string]any)
			if !ok {
				return syntaxErrorf(0, "bin[%d] must be a table, got %T", i, b)
			}
			if err := patchTarget(bin, fmt.Sprintf("bin[%d]", i), sourcePath, r); err != nil {
				return err
			}
			if _, ok := bin["name"]; !ok {
				bin["name"] = name
			}
		}
		declared = declared || len(bins) > 0
	}

	if !declared {
		root["bin"] = []any{map[string]any{"name": name, "path": sourcePath}}
	}
	return nil
}

func patchTarget(target map[string]any, label, sourcePath string, r pathRewriter) error {
	if raw, ok := target["path"]; ok {
		p, ok := raw.(string)
		if !ok {
			return syntaxErrorf(0, "%s.path must be a string, got %T", label, raw)
		}
		if r.resolve(p) != r.resolve(sourcePath) {
			return conflictf("%s.path %q does not refer to %s", label, p, sourcePath)
		}
	}
	target["path"] = sourcePath
	return nil
}
