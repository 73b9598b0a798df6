package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DiscoveryMode selects how BuildRunner finds the files a build produced.
type DiscoveryMode string

const (
	// DiscoveryReport asks cargo for its JSON build report and falls back
	// to DiscoveryDiff when the report cannot be obtained.
	DiscoveryReport DiscoveryMode = "report"

	// DiscoveryDiff compares the output directory before and after the
	// build.
	DiscoveryDiff DiscoveryMode = "diff"
)

const reportFormat = "--message-format=json-render-diagnostics"

// BuildRequest describes one build-class invocation.
type BuildRequest struct {
	Project *Project

	// Args is the complete argument vector of the ordinary build, starting
	// with the subcommand.
	Args []string

	// Dir is the working directory of both cargo runs.
	Dir string

	// TargetDir overrides Project.Dir/target (CARGO_TARGET_DIR).
	TargetDir string
}

// BuildResult contains the outcome of a build.
type BuildResult struct {
	// ExitCode is the exit code of the ordinary build.
	ExitCode int

	Entries []ArtifactEntry

	// Warnings are *ArtifactWarning values.
	Warnings []error

	// UsedFallback is set when artifacts were discovered by directory diff.
	UsedFallback bool
}

// BuildRunner implements the two-phase build:
//  1. Run the ordinary build with inherited output.
//  2. If it failed: return its exit code, nothing is copied.
//  3. Run the same build again in report mode. Everything is fresh after
//     step 1, so cargo only replays its artifact messages.
//  4. Hand the reported files to the ArtifactResolver.
type BuildRunner struct {
	Executor  *Executor
	Resolver  *ArtifactResolver
	Discovery DiscoveryMode
	Logger    *zap.Logger
}

// NewBuildRunner creates a BuildRunner with report discovery.
func NewBuildRunner(executor *Executor, resolver *ArtifactResolver, logger *zap.Logger) *BuildRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BuildRunner{
		Executor:  executor,
		Resolver:  resolver,
		Discovery: DiscoveryReport,
		Logger:    logger,
	}
}

// Run executes the build and relocates its artifacts.
func (r *BuildRunner) Run(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if req.Project == nil || req.Project.Manifest == nil {
		return nil, fmt.Errorf("build request has no project")
	}
	if len(req.Args) == 0 {
		return nil, fmt.Errorf("build request has no arguments")
	}

	targetDir := req.TargetDir
	if targetDir == "" {
		targetDir = filepath.Join(req.Project.Dir, "target")
	}
	outDir := OutputDir(targetDir, req.Args[1:])

	before, err := TakeSnapshot(outDir)
	if err != nil {
		r.Logger.Warn("cannot snapshot output directory", zap.String("dir", outDir), zap.Error(err))
		before = nil
	}

	code, err := r.Executor.Run(ctx, Command{Args: req.Args, Dir: req.Dir})
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return &BuildResult{ExitCode: code}, nil
	}

	artifacts, fallback, err := r.discover(ctx, req, outDir, before)
	if err != nil {
		return nil, err
	}

	entries, warnings, err := r.Resolver.Resolve(artifacts, req.Project.Manifest.Tool)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		r.Logger.Warn(w.Error())
	}

	return &BuildResult{
		ExitCode:     0,
		Entries:      entries,
		Warnings:     warnings,
		UsedFallback: fallback,
	}, nil
}

func (r *BuildRunner) discover(ctx context.Context, req BuildRequest, outDir string, before *OutputSnapshot) ([]string, bool, error) {
	if r.Discovery != DiscoveryDiff {
		artifacts, err := r.fromReport(ctx, req)
		if err == nil {
			return artifacts, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, err
		}
		r.Logger.Warn("build report unavailable, falling back to output directory diff", zap.Error(err))
	}

	after, err := TakeSnapshot(outDir)
	if err != nil {
		return nil, true, fmt.Errorf("listing output directory: %w", err)
	}
	if before == nil {
		before = &OutputSnapshot{Dir: outDir}
	}
	return before.Changed(after), true, nil
}

func (r *BuildRunner) fromReport(ctx context.Context, req BuildRequest) ([]string, error) {
	res, err := r.Executor.Output(ctx, Command{Args: reportArgs(req.Args), Dir: req.Dir})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		r.Logger.Debug("report pass failed", zap.ByteString("stderr", res.Stderr))
		return nil, fmt.Errorf("report pass exited with code %d", res.ExitCode)
	}
	report, err := ParseBuildReport(res.Stdout, req.Project.ManifestPath, req.Project.Manifest.PackageName)
	if err != nil {
		return nil, err
	}
	return report.Artifacts, nil
}

// reportArgs returns args with any --message-format option replaced by the
// JSON report format.
func reportArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	inserted := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--" && !inserted:
			out = append(out, reportFormat)
			inserted = true
		case a == "--message-format" && !inserted:
			i++
			continue
		case strings.HasPrefix(a, "--message-format=") && !inserted:
			continue
		}
		out = append(out, a)
	}
	if !inserted {
		out = append(out, reportFormat)
	}
	return out
}
