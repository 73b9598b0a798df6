package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cargowop/internal/cli"
	"cargowop/internal/config"
)

// exitCode is set by the root command and handed to os.Exit.
var exitCode int

// rootCmd forwards every argument to the wrapped invocation; flags are
// never parsed here because they belong to cargo or the produced binary.
var rootCmd = &cobra.Command{
	Use:   "cargo-wop [subcommand] <source-file> [args...]",
	Short: "Build and run single-file Rust programs with an embedded manifest",
	Long: `cargo-wop turns a single Rust source file into a cargo project.

The file's leading //! doc comment carries a ` + "```cargo" + ` block holding the
manifest. The wrapper normalizes it into a cached project directory and runs
cargo against it; build copies the artifacts into the current directory.`,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ProcessEnvironment()
		if err != nil {
			exitCode = cli.ExitInternalError
			return err
		}
		res, err := cli.Run(cmd.Context(), env, args, cli.Streams{
			Stdin:  cmd.InOrStdin(),
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
		})
		exitCode = res.ExitCode
		return err
	},
}

func main() {
	// Interrupts are forwarded to cargo by the executor, so the context is
	// not tied to signals.
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "cargo-wop: %v\n", err)
		if exitCode == 0 {
			exitCode = cli.ExitCode(err)
		}
	}
	os.Exit(exitCode)
}
