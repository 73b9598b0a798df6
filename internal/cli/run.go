package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"cargowop/internal/config"
	"cargowop/internal/dispatch"
	"cargowop/internal/logging"
)

// Streams are the standard streams of an invocation.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run is a high-level entrypoint suitable for black-box tests. It accepts
// the argument slice (excluding argv[0]) and returns the exit code plus any
// error.
func Run(ctx context.Context, env config.Environment, args []string, streams Streams) (Result, error) {
	inv, err := ParseInvocation(env.WorkDir, args)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}
	if inv.Help {
		fmt.Fprint(streams.Stdout, Usage())
		return Result{ExitCode: ExitSuccess}, nil
	}

	cfg, err := config.Load(env)
	if err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}
	logger, err := logging.New(cfg.LogLevel, streams.Stderr)
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	defer func() { _ = logger.Sync() }()
	logger.Debug("configuration",
		zap.String("file", cfg.File),
		zap.String("cache_dir", cfg.CacheDir),
		zap.String("cargo", cfg.Cargo),
		zap.String("artifact_discovery", cfg.ArtifactDiscovery),
	)

	return Execute(ctx, inv, Options{
		Config: cfg,
		Logger: logger,
		Stdin:  streams.Stdin,
		Stdout: streams.Stdout,
		Stderr: streams.Stderr,
	})
}

// Usage returns the help text.
func Usage() string {
	var b strings.Builder
	b.WriteString("Usage: cargo-wop [subcommand] <source-file> [args...]\n")
	b.WriteString("       cargo wop [subcommand] <source-file> [args...]\n\n")
	b.WriteString("Builds a single Rust source file whose leading //! comment embeds a\n")
	b.WriteString("```cargo manifest block.\n\n")
	b.WriteString("Subcommands:\n")

	byClass := map[dispatch.Class][]string{}
	for _, name := range dispatch.Commands() {
		class, _ := dispatch.Lookup(name)
		byClass[class] = append(byClass[class], name)
	}
	for c := dispatch.ClassPassthrough; c < dispatch.ClassUnsupported; c++ {
		fmt.Fprintf(&b, "  %-15s %s\n", c.String()+":", strings.Join(byClass[c], " "))
	}
	b.WriteString("\nWithout a subcommand the manifest's [cargo-wop] default-action is used,\n")
	b.WriteString("falling back to run. Other subcommands are forwarded to cargo unchecked.\n")
	return b.String()
}
