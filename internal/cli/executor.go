package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"cargowop/internal/config"
	"cargowop/internal/core"
	"cargowop/internal/dispatch"
	"cargowop/internal/trace"
)

// Options carries the collaborators of Execute.
type Options struct {
	Config *config.Config
	Logger *zap.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of an invocation.
type Result struct {
	ExitCode int
	Plan     dispatch.Plan

	// Build is set for the build class when cargo ran.
	Build *core.BuildResult
}

// Execute runs a canonical Invocation.
//
// Responsibilities:
//   - Extract and normalize the manifest before anything is written or
//     spawned.
//   - Resolve the subcommand, including the manifest's default action.
//   - Dispatch by class and translate outcomes to exit codes.
//   - Write the invocation trace when configured, also on failure.
func Execute(ctx context.Context, inv Invocation, opts Options) (res Result, execErr error) {
	res.ExitCode = ExitInternalError
	if opts.Config == nil {
		return res, fmt.Errorf("nil config")
	}
	opts = withDefaults(opts)
	logger := opts.Logger

	var rec trace.Sink = trace.NopSink{}
	if opts.Config.TracePath != "" {
		recorder := trace.NewRecorder()
		rec = recorder
		defer writeTrace(recorder, inv.Source, opts.Config.TracePath, logger)
	}

	cache, err := core.NewProjectCache(opts.Config.CacheDir, logger)
	if err != nil {
		return res, err
	}

	// clear-cache must work even when the manifest no longer parses.
	if inv.Command != "" {
		if class, _ := dispatch.Lookup(inv.Command); class == dispatch.ClassClearCache {
			plan, err := dispatch.NewPlan(inv.Command, inv.Args, dispatch.Project{})
			if err != nil {
				err = invalidInvocationf("%v", err)
				return Result{ExitCode: ExitCode(err)}, err
			}
			res.Plan = plan
			return clearCache(cache, inv.Source, res, rec, logger)
		}
	}

	if info, err := os.Stat(inv.Source); err != nil || info.IsDir() {
		err := invalidInvocationf("source file %q not found", inv.OriginalSource)
		return Result{ExitCode: ExitCode(err)}, err
	}

	project, err := loadProject(cache, inv, rec)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}

	command, args := inv.Command, inv.Args
	if command == "" {
		command, args = dispatch.WithDefaultAction(project.Manifest.Tool.DefaultAction, args)
		logger.Debug("default action", zap.String("command", command), zap.Strings("args", args))
	}

	plan, err := dispatch.NewPlan(command, args, dispatch.Project{ManifestPath: project.ManifestPath, Dir: project.Dir})
	if err != nil {
		err = invalidInvocationf("%v", err)
		return Result{ExitCode: ExitCode(err)}, err
	}
	res.Plan = plan
	trace.SafeRecord(rec, trace.Event{Kind: trace.EventPlanSelected, Subject: plan.Command, Detail: plan.Class.String()})
	if w := plan.Warning(); w != nil {
		logger.Warn(w.Error())
		trace.SafeRecord(rec, trace.Event{Kind: trace.EventWarning, Detail: w.Error()})
	}

	cargo := core.NewExecutor(opts.Config.Cargo, logger)
	cargo.Stdin, cargo.Stdout, cargo.Stderr = opts.Stdin, opts.Stdout, opts.Stderr

	switch plan.Class {
	case dispatch.ClassManifest:
		if _, err := opts.Stdout.Write(project.Manifest.TOML); err != nil {
			return res, fmt.Errorf("writing manifest: %w", err)
		}
		res.ExitCode = ExitSuccess
		return res, nil

	case dispatch.ClassWriteManifest:
		if err := writeManifest(cache, inv, rec, logger); err != nil {
			res.ExitCode = ExitCode(err)
			return res, err
		}
		res.ExitCode = ExitSuccess
		return res, nil

	case dispatch.ClassClearCache:
		return clearCache(cache, inv.Source, res, rec, logger)

	case dispatch.ClassBuild:
		runner := core.NewBuildRunner(cargo, core.NewArtifactResolver(inv.WorkDir, logger), logger)
		runner.Discovery = core.DiscoveryMode(opts.Config.ArtifactDiscovery)
		build, err := runner.Run(ctx, core.BuildRequest{
			Project:   project,
			Args:      plan.CargoArgs,
			Dir:       inv.WorkDir,
			TargetDir: opts.Config.TargetDir,
		})
		if err != nil {
			res.ExitCode = ExitCode(err)
			return res, err
		}
		res.Build = build
		res.ExitCode = build.ExitCode
		recordBuild(rec, plan, build)
		for _, e := range build.Entries {
			logEntry(logger, e)
		}
		return res, nil

	case dispatch.ClassRun, dispatch.ClassPassthrough, dispatch.ClassInstall, dispatch.ClassUnsupported:
		code, err := cargo.Run(ctx, core.Command{Args: plan.CargoArgs, Dir: inv.WorkDir})
		if err != nil {
			res.ExitCode = ExitCode(err)
			return res, err
		}
		trace.SafeRecord(rec, trace.Event{Kind: trace.EventCargoExited, Subject: plan.CargoArgs[0], Detail: strconv.Itoa(code)})
		res.ExitCode = code
		return res, nil

	default:
		return res, fmt.Errorf("unhandled command class %v", plan.Class)
	}
}

func withDefaults(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}

// loadProject materializes the project directory, except for the manifest
// classes which only need the normalized text.
func loadProject(cache *core.ProjectCache, inv Invocation, rec trace.Sink) (*core.Project, error) {
	if inv.Command != "" {
		switch class, _ := dispatch.Lookup(inv.Command); class {
		case dispatch.ClassManifest, dispatch.ClassWriteManifest:
			return cache.Resolve(inv.Source)
		}
	}

	project, err := cache.Prepare(inv.Source)
	if err != nil {
		return nil, err
	}
	kind := trace.EventManifestUnchanged
	if project.Written {
		kind = trace.EventManifestWritten
	}
	trace.SafeRecord(rec, trace.Event{Kind: kind, Subject: project.ManifestPath})
	return project, nil
}

// writeManifest renders the manifest for the invocation directory, so that
// relative dependency paths stay valid there, and writes ./Cargo.toml.
func writeManifest(cache *core.ProjectCache, inv Invocation, rec trace.Sink, logger *zap.Logger) error {
	norm, err := cache.RenderFor(inv.Source, inv.WorkDir)
	if err != nil {
		return err
	}
	path := filepath.Join(inv.WorkDir, core.ManifestFileName)
	written, err := core.WriteFileIfChanged(path, norm.TOML, 0o644)
	if err != nil {
		return &core.CacheError{Op: "write", Path: path, Err: err}
	}

	kind := trace.EventManifestUnchanged
	if written {
		kind = trace.EventManifestWritten
	}
	trace.SafeRecord(rec, trace.Event{Kind: kind, Subject: path})
	logger.Info("manifest written", zap.String("path", path), zap.Bool("changed", written))
	return nil
}

func writeTrace(rec *trace.Recorder, source, path string, logger *zap.Logger) {
	tr := rec.Trace(source)
	if err := tr.WriteFile(path); err != nil {
		logger.Warn("cannot write invocation trace", zap.String("path", path), zap.Error(err))
		return
	}
	if hash, err := tr.Hash(); err == nil {
		logger.Debug("invocation trace written", zap.String("path", path), zap.String("hash", hash))
	}
}

func clearCache(cache *core.ProjectCache, source string, res Result, rec trace.Sink, logger *zap.Logger) (Result, error) {
	dir, err := cache.Remove(source)
	if err != nil {
		res.ExitCode = ExitCode(err)
		return res, err
	}
	trace.SafeRecord(rec, trace.Event{Kind: trace.EventCacheCleared, Subject: dir})
	logger.Info("project directory removed", zap.String("dir", dir))
	res.ExitCode = ExitSuccess
	return res, nil
}

func recordBuild(rec trace.Sink, plan dispatch.Plan, build *core.BuildResult) {
	trace.SafeRecord(rec, trace.Event{Kind: trace.EventCargoExited, Subject: plan.CargoArgs[0], Detail: strconv.Itoa(build.ExitCode)})
	if build.UsedFallback {
		trace.SafeRecord(rec, trace.Event{Kind: trace.EventFallbackUsed, Subject: string(core.DiscoveryDiff)})
	}
	for _, e := range build.Entries {
		name := filepath.Base(e.Source)
		switch {
		case e.Skipped:
			trace.SafeRecord(rec, trace.Event{Kind: trace.EventArtifactSkipped, Subject: name})
		case e.Renamed():
			trace.SafeRecord(rec, trace.Event{Kind: trace.EventArtifactRenamed, Subject: name, Destination: e.Destination})
		default:
			trace.SafeRecord(rec, trace.Event{Kind: trace.EventArtifactCopied, Subject: name, Destination: e.Destination})
		}
	}
	for _, w := range build.Warnings {
		trace.SafeRecord(rec, trace.Event{Kind: trace.EventWarning, Detail: w.Error()})
	}
}

func logEntry(logger *zap.Logger, e core.ArtifactEntry) {
	if e.Skipped {
		logger.Info("artifact skipped", zap.String("artifact", e.Source))
		return
	}
	logger.Info("artifact copied", zap.String("from", e.Source), zap.String("to", e.Destination))
}
