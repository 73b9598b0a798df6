package manifest

import (
	"fmt"
	"path/filepath"
)

var dependencyTables = []string{"dependencies", "dev-dependencies", "build-dependencies"}

// pathRewriter moves path values from the source file's frame of reference
// into the generated manifest's.
type pathRewriter struct {
	sourceDir   string
	manifestDir string
}

// resolve returns the absolute, symlink-free form of p interpreted relative
// to the source directory. Paths that do not exist yet are cleaned instead.
func (r pathRewriter) resolve(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.sourceDir, p)
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	return resolveExistingPrefix(filepath.Clean(p))
}

// resolveExistingPrefix resolves symlinks in the longest existing ancestor
// of p and re-attaches the remainder, so a missing leaf does not disable
// symlink resolution for the rest of the path.
func resolveExistingPrefix(p string) string {
	dir, leaf := filepath.Split(p)
	dir = filepath.Clean(dir)
	if dir == p || leaf == "" {
		return p
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(real, leaf)
	}
	return filepath.Join(resolveExistingPrefix(dir), leaf)
}

// rebase rewrites p so it is relative to the manifest directory.
func (r pathRewriter) rebase(p string) string {
	abs := r.resolve(p)
	base := r.manifestDir
	if real, err := filepath.EvalSymlinks(base); err == nil {
		base = real
	} else {
		base = resolveExistingPrefix(filepath.Clean(base))
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (r pathRewriter) rewriteManifest(root map[string]any) error {
	for _, key := range dependencyTables {
		if err := r.rewriteDeps(root, key, key); err != nil {
			return err
		}
	}

	if raw, ok := root["target"]; ok {
		targets, ok := raw.(map[string]any)
		if !ok {
			return syntaxErrorf(0, "target must be a table, got %T", raw)
		}
		for cfg, t := range targets {
			platform, ok := t.(map[string]any)
			if !ok {
				return syntaxErrorf(0, "target.%s must be a table, got %T", cfg, t)
			}
			for _, key := range dependencyTables {
				if err := r.rewriteDeps(platform, key, fmt.Sprintf("target.%s.%s", cfg, key)); err != nil {
					return err
				}
			}
		}
	}

	if raw, ok := root["patch"]; ok {
		patches, ok := raw.(map[string]any)
		if !ok {
			return syntaxErrorf(0, "patch must be a table, got %T", raw)
		}
		for registry := range patches {
			if err := r.rewriteDeps(patches, registry, "patch."+registry); err != nil {
				return err
			}
		}
	}

	if pkg, ok := root["package"].(map[string]any); ok {
		if build, ok := pkg["build"].(string); ok {
			pkg["build"] = r.rebase(build)
		}
	}
	return nil
}

func (r pathRewriter) rewriteDeps(parent map[string]any, key, label string) error {
	raw, ok := parent[key]
	if !ok {
		return nil
	}
	deps, ok := raw.(map[string]any)
	if !ok {
		return syntaxErrorf(0, "%s must be a table, got %T", label, raw)
	}
	for name, d := range deps {
		spec, ok := d.(map[string]any)
		if !ok {
			continue
		}
		rawPath, ok := spec["path"]
		if !ok {
			continue
		}
		p, ok := rawPath.(string)
		if !ok {
			return syntaxErrorf(0, "%s.%s.path must be a string, got %T", label, name, rawPath)
		}
		spec["path"] = r.rebase(p)
	}
	return nil
}
