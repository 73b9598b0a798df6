package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultCommand is used when no subcommand is given and the manifest has
// no default-action.
const DefaultCommand = "run"

// ErrUnsupportedSubcommand marks subcommands forwarded without a dedicated
// rewrite rule. It is a warning.
var ErrUnsupportedSubcommand = errors.New("unsupported subcommand")

// Project locates the generated project a plan operates on.
type Project struct {
	ManifestPath string
	Dir          string
}

// Plan is the resolved form of one invocation.
type Plan struct {
	Class Class

	// Command is the subcommand as given by the user, e.g. "run-debug".
	Command string

	// CargoArgs is the complete argument vector for cargo, starting with
	// the cargo subcommand. Nil when Class does not spawn cargo.
	CargoArgs []string

	// BinaryArgs are the arguments routed to the produced binary (run).
	// They are already part of CargoArgs, after "--".
	BinaryArgs []string

	// RelocatesArtifacts is set for the build class.
	RelocatesArtifacts bool

	// Unsupported is set when Command has no rewrite rule.
	Unsupported bool
}

// Warning returns the non-fatal diagnostic for the plan, if any.
func (p Plan) Warning() error {
	if !p.Unsupported {
		return nil
	}
	return fmt.Errorf("%w %q: forwarded to cargo, behavior not guaranteed", ErrUnsupportedSubcommand, p.Command)
}

// NewPlan resolves name and args (the arguments following the source file)
// into a Plan for project.
func NewPlan(name string, args []string, project Project) (Plan, error) {
	if name == "" {
		return Plan{}, fmt.Errorf("empty subcommand")
	}
	cmd, ok := commands[name]
	if !ok {
		cmd = command{class: ClassUnsupported, cargo: name}
	}

	plan := Plan{Class: cmd.class, Command: name}
	switch cmd.class {
	case ClassPassthrough:
		plan.CargoArgs = withManifest(cmd.cargo, project, args)
	case ClassRun:
		toolArgs, binArgs := splitRunArgs(args)
		plan.CargoArgs = withManifest(cmd.cargo, project, releaseArgs(cmd.debug, toolArgs))
		if len(binArgs) > 0 {
			plan.CargoArgs = append(plan.CargoArgs, "--")
			plan.CargoArgs = append(plan.CargoArgs, binArgs...)
		}
		plan.BinaryArgs = binArgs
	case ClassBuild:
		plan.CargoArgs = withManifest(cmd.cargo, project, releaseArgs(cmd.debug, args))
		plan.RelocatesArtifacts = true
	case ClassInstall:
		plan.CargoArgs = append([]string{cmd.cargo, "--path", project.Dir}, args...)
	case ClassManifest, ClassWriteManifest, ClassClearCache:
		if len(args) > 0 {
			return Plan{}, fmt.Errorf("%s takes no arguments after the source file, got %q", name, strings.Join(args, " "))
		}
	case ClassUnsupported:
		plan.CargoArgs = withManifest(cmd.cargo, project, args)
		plan.Unsupported = true
	default:
		return Plan{}, fmt.Errorf("unhandled command class %v", cmd.class)
	}
	return plan, nil
}

// WithDefaultAction resolves an invocation without a subcommand. The
// configured action is interpreted as <command> <args...>, followed by the
// arguments given on the command line.
func WithDefaultAction(action, args []string) (string, []string) {
	if len(action) == 0 {
		return DefaultCommand, args
	}
	out := make([]string, 0, len(action)-1+len(args))
	out = append(out, action[1:]...)
	out = append(out, args...)
	return action[0], out
}

func withManifest(sub string, project Project, args []string) []string {
	out := make([]string, 0, len(args)+3)
	out = append(out, sub, "--manifest-path", project.ManifestPath)
	return append(out, args...)
}

// splitRunArgs routes everything to the binary unless a "--" separator is
// present, in which case the arguments before it belong to cargo.
func splitRunArgs(args []string) (toolArgs, binArgs []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i:i], args[i+1:]
		}
	}
	return nil, args
}

func releaseArgs(debug bool, args []string) []string {
	if debug || selectsProfile(args) {
		return args
	}
	return append([]string{"--release"}, args...)
}

func selectsProfile(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "--release" || a == "-r" || a == "--profile" || strings.HasPrefix(a, "--profile=") {
			return true
		}
	}
	return false
}
