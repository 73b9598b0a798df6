package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cargowop/internal/config"
	"cargowop/internal/core"
	"cargowop/internal/dispatch"
	"cargowop/internal/manifest"
)

// Exit codes for failures that never reach cargo. Everything else is
// cargo's own exit code.
const (
	ExitSuccess           = 0
	ExitInvalidInvocation = 64
	ExitManifestError     = 65
	ExitSpawnError        = 69
	ExitInternalError     = 70
	ExitCacheError        = 73
)

// subcommandName is the argument cargo passes first when the wrapper runs
// as "cargo wop".
const subcommandName = "wop"

// Invocation is the canonical description of one run.
//
// Source is absolute and resolved against WorkDir, so nothing downstream
// depends on the process working directory.
type Invocation struct {
	// Command is the subcommand; empty when the manifest's default action
	// decides.
	Command string

	Source  string
	Args    []string
	WorkDir string

	// OriginalSource is the source argument as given.
	OriginalSource string

	// Help is set for -h, --help and help.
	Help bool
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation canonicalizes the wrapper's arguments (without argv[0]).
//
// Shapes:
//
//	<subcommand> <source> [args...]
//	<source> [args...]               default action from the manifest
//	wop ...                          same, as a cargo subcommand
//
// A first argument that is not a known subcommand is taken as the source
// when it names an existing file or has an extension; otherwise it is an
// unsupported subcommand that is forwarded anyway.
func ParseInvocation(workDir string, args []string) (Invocation, error) {
	workDir = filepath.Clean(workDir)
	if !filepath.IsAbs(workDir) {
		return Invocation{}, invalidInvocationf("working directory must be absolute (got %q)", workDir)
	}
	if len(args) > 0 && args[0] == subcommandName {
		args = args[1:]
	}
	if len(args) == 0 {
		return Invocation{}, invalidInvocationf("missing source file")
	}

	inv := Invocation{WorkDir: workDir}
	first := args[0]
	switch {
	case isHelp(first):
		inv.Help = true
		return inv, nil
	case strings.HasPrefix(first, "-"):
		return Invocation{}, invalidInvocationf("unexpected option %q: expected a subcommand or source file", first)
	}

	_, known := dispatch.Lookup(first)
	if !known && looksLikeSource(resolveUnderWorkDir(workDir, first)) {
		inv.OriginalSource = first
		inv.Args = args[1:]
	} else {
		if len(args) < 2 {
			return Invocation{}, invalidInvocationf("%s: missing source file", first)
		}
		inv.Command = first
		inv.OriginalSource = args[1]
		inv.Args = args[2:]
	}

	if strings.TrimSpace(inv.OriginalSource) == "" {
		return Invocation{}, invalidInvocationf("source file must not be empty")
	}
	inv.Source = resolveUnderWorkDir(workDir, inv.OriginalSource)
	if inv.Args == nil {
		inv.Args = []string{}
	}
	return inv, nil
}

func isHelp(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

func looksLikeSource(path string) bool {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return true
	}
	return filepath.Ext(path) != ""
}

func resolveUnderWorkDir(workDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(workDir, clean)
}

// ExitCode maps an error to the wrapper's exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	switch {
	case errors.Is(err, manifest.ErrMissingManifest),
		errors.Is(err, manifest.ErrMalformedManifestFence),
		errors.Is(err, manifest.ErrInvalidManifestSyntax),
		errors.Is(err, manifest.ErrConflictingTargetDeclaration):
		return ExitManifestError
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitInvalidInvocation
	case errors.Is(err, core.ErrCacheWrite):
		return ExitCacheError
	case errors.Is(err, core.ErrSpawn):
		return ExitSpawnError
	default:
		return ExitInternalError
	}
}
