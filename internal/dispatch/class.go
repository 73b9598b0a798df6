// Package dispatch maps wrapper subcommands to cargo invocations.
//
// Every subcommand belongs to exactly one Class. NewPlan turns a class plus
// the user's arguments into the argument vector handed to cargo; classes
// that never reach cargo (manifest, write-manifest, clear-cache) produce a
// plan without arguments and are handled by the caller.
package dispatch

import "sort"

// Class is the rewrite rule applied to a subcommand.
type Class int

const (
	// ClassPassthrough forwards the arguments after --manifest-path.
	ClassPassthrough Class = iota

	// ClassRun splits arguments between cargo and the produced binary.
	ClassRun

	// ClassBuild builds and then relocates artifacts.
	ClassBuild

	// ClassInstall passes the project directory with --path, since
	// cargo install does not accept --manifest-path.
	ClassInstall

	// ClassManifest prints the normalized manifest.
	ClassManifest

	// ClassWriteManifest writes the normalized manifest to the current
	// directory.
	ClassWriteManifest

	// ClassClearCache removes the project directory.
	ClassClearCache

	// ClassUnsupported forwards unknown subcommands like ClassPassthrough
	// but flags them.
	ClassUnsupported
)

func (c Class) String() string {
	switch c {
	case ClassPassthrough:
		return "passthrough"
	case ClassRun:
		return "run"
	case ClassBuild:
		return "build"
	case ClassInstall:
		return "install"
	case ClassManifest:
		return "manifest"
	case ClassWriteManifest:
		return "write-manifest"
	case ClassClearCache:
		return "clear-cache"
	case ClassUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

type command struct {
	class Class

	// cargo is the cargo subcommand; empty for classes that do not spawn.
	cargo string

	// debug disables the implicit --release.
	debug bool
}

var commands = map[string]command{
	"bench":             {class: ClassPassthrough, cargo: "bench"},
	"check":             {class: ClassPassthrough, cargo: "check"},
	"clean":             {class: ClassPassthrough, cargo: "clean"},
	"clippy":            {class: ClassPassthrough, cargo: "clippy"},
	"doc":               {class: ClassPassthrough, cargo: "doc"},
	"fetch":             {class: ClassPassthrough, cargo: "fetch"},
	"fix":               {class: ClassPassthrough, cargo: "fix"},
	"fmt":               {class: ClassPassthrough, cargo: "fmt"},
	"generate-lockfile": {class: ClassPassthrough, cargo: "generate-lockfile"},
	"locate-project":    {class: ClassPassthrough, cargo: "locate-project"},
	"metadata":          {class: ClassPassthrough, cargo: "metadata"},
	"pkgid":             {class: ClassPassthrough, cargo: "pkgid"},
	"rustc":             {class: ClassPassthrough, cargo: "rustc"},
	"rustdoc":           {class: ClassPassthrough, cargo: "rustdoc"},
	"test":              {class: ClassPassthrough, cargo: "test"},
	"tree":              {class: ClassPassthrough, cargo: "tree"},
	"update":            {class: ClassPassthrough, cargo: "update"},
	"verify-project":    {class: ClassPassthrough, cargo: "verify-project"},

	"run":         {class: ClassRun, cargo: "run"},
	"run-debug":   {class: ClassRun, cargo: "run", debug: true},
	"build":       {class: ClassBuild, cargo: "build"},
	"build-debug": {class: ClassBuild, cargo: "build", debug: true},
	"install":     {class: ClassInstall, cargo: "install"},

	"manifest":       {class: ClassManifest},
	"write-manifest": {class: ClassWriteManifest},
	"clear-cache":    {class: ClassClearCache},
}

// Lookup returns the class of a subcommand name.
func Lookup(name string) (Class, bool) {
	c, ok := commands[name]
	if !ok {
		return ClassUnsupported, false
	}
	return c.class, true
}

// Commands returns all known subcommand names, sorted.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
