package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"cargowop/internal/manifest"
)

const (
	ManifestFileName = "Cargo.toml"

	// SourceRefFileName holds the absolute path of the source file a
	// project directory was generated for.
	SourceRefFileName = ".wop-source"

	memoSize = 64
)

// ErrCacheWrite marks filesystem failures while materializing a project.
var ErrCacheWrite = errors.New("cache write error")

// CacheError describes a failed filesystem operation on the project cache.
type CacheError struct {
	Op   string
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrCacheWrite, e.Op, e.Path, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool { return target == ErrCacheWrite }

// Project is a source file together with its generated project directory.
type Project struct {
	// Source is the absolute, symlink-resolved source path.
	Source string

	// Dir is the project directory under the cache root.
	Dir string

	// ManifestPath is Dir/Cargo.toml.
	ManifestPath string

	Manifest *manifest.Normalized

	// Written reports whether Prepare changed anything on disk.
	Written bool
}

// ProjectCache maps source files to project directories under Root.
//
// Structure:
//
//	{Root}/
//	  {stem}-{digest}/
//	    Cargo.toml   (normalized manifest, tool section stripped)
//	    .wop-source  (absolute source path)
//	    target/      (cargo's own state, never touched here)
type ProjectCache struct {
	// Root is the absolute cache root directory.
	Root string

	logger *zap.Logger

	// fragments memoizes extracted manifests by source path and content
	// digest, so the commands that render a manifest twice parse it once.
	fragments *lru.Cache[string, manifest.Fragment]
}

// NewProjectCache creates a cache rooted at root, which must be absolute.
func NewProjectCache(root string, logger *zap.Logger) (*ProjectCache, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("cache root %q is not absolute", root)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fragments, err := lru.New[string, manifest.Fragment](memoSize)
	if err != nil {
		return nil, fmt.Errorf("creating manifest memo: %w", err)
	}
	return &ProjectCache{Root: filepath.Clean(root), logger: logger, fragments: fragments}, nil
}

// CanonicalSource returns the absolute, symlink-resolved form of source.
func CanonicalSource(source string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", source, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", source, err)
	}
	return real, nil
}

// Locate returns the project directory for a canonical source path without
// touching the filesystem.
func (c *ProjectCache) Locate(canonicalSource string) string {
	return filepath.Join(c.Root, ComputeProjectKey(canonicalSource).String())
}

// Resolve extracts and normalizes the manifest of source without writing
// anything.
func (c *ProjectCache) Resolve(source string) (*Project, error) {
	src, content, err := readSource(source)
	if err != nil {
		return nil, err
	}
	return c.build(src, content)
}

func readSource(source string) (string, []byte, error) {
	src, err := CanonicalSource(source)
	if err != nil {
		return "", nil, err
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return "", nil, fmt.Errorf("reading source: %w", err)
	}
	return src, content, nil
}

// extract returns the manifest fragment of content, reusing an earlier
// extraction of the same bytes.
func (c *ProjectCache) extract(src string, content []byte) (manifest.Fragment, error) {
	key := src + "\x00" + contentDigest(content)
	if frag, ok := c.fragments.Get(key); ok {
		c.logger.Debug("manifest memo hit", zap.String("source", src))
		return frag, nil
	}
	frag, err := manifest.Extract(content)
	if err != nil {
		return manifest.Fragment{}, err
	}
	c.fragments.Add(key, frag)
	return frag, nil
}

func (c *ProjectCache) build(src string, content []byte) (*Project, error) {
	dir := c.Locate(src)
	frag, err := c.extract(src, content)
	if err != nil {
		return nil, err
	}
	norm, err := manifest.Normalize(frag, src, dir)
	if err != nil {
		return nil, err
	}
	return &Project{
		Source:       src,
		Dir:          dir,
		ManifestPath: filepath.Join(dir, ManifestFileName),
		Manifest:     norm,
	}, nil
}

// Prepare makes sure the project directory for source exists and holds the
// current normalized manifest.
//
// The manifest is rewritten only when its bytes differ from what is on disk,
// which keeps cargo's incremental state valid. Extraction and normalization
// errors are returned before anything is written.
func (c *ProjectCache) Prepare(source string) (*Project, error) {
	src, content, err := readSource(source)
	if err != nil {
		return nil, err
	}

	p, err := c.build(src, content)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, &CacheError{Op: "mkdir", Path: p.Dir, Err: err}
	}

	written, err := WriteFileIfChanged(p.ManifestPath, p.Manifest.TOML, 0o644)
	if err != nil {
		return nil, &CacheError{Op: "write", Path: p.ManifestPath, Err: err}
	}
	refPath := filepath.Join(p.Dir, SourceRefFileName)
	refWritten, err := WriteFileIfChanged(refPath, []byte(p.Source+"\n"), 0o644)
	if err != nil {
		return nil, &CacheError{Op: "write", Path: refPath, Err: err}
	}
	p.Written = written || refWritten

	if written {
		c.logger.Debug("manifest written", zap.String("path", p.ManifestPath))
	} else {
		c.logger.Debug("manifest unchanged", zap.String("path", p.ManifestPath))
	}

	return p, nil
}

// Remove deletes the project directory of source, including cargo's build
// state. It is the only operation that deletes anything from the cache.
//
// The source file itself may no longer exist.
func (c *ProjectCache) Remove(source string) (string, error) {
	src, err := removedSource(source)
	if err != nil {
		return "", err
	}
	dir := c.Locate(src)
	if err := os.RemoveAll(dir); err != nil {
		return "", &CacheError{Op: "remove", Path: dir, Err: err}
	}
	c.fragments.Purge()
	return dir, nil
}

// removedSource canonicalizes source like CanonicalSource. A missing file
// is resolved through its parent directory instead.
func removedSource(source string) (string, error) {
	if src, err := CanonicalSource(source); err == nil {
		return src, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", source, err)
	}
	if parent, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(parent, filepath.Base(abs)), nil
	}
	return abs, nil
}

// RenderFor normalizes the manifest of source as if it were placed in dir
// rather than in its project directory. Nothing is written.
func (c *ProjectCache) RenderFor(source, dir string) (*manifest.Normalized, error) {
	src, content, err := readSource(source)
	if err != nil {
		return nil, err
	}
	frag, err := c.extract(src, content)
	if err != nil {
		return nil, err
	}
	return manifest.Normalize(frag, src, dir)
}
