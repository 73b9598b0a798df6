package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// ErrSpawn marks a build tool that could not be started at all.
var ErrSpawn = errors.New("cannot start build tool")

// Command is one build tool invocation.
type Command struct {
	// Args is the argument vector without the program name.
	Args []string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Env is appended to the inherited environment.
	Env []string
}

// ExecutionResult contains the outcome of a captured invocation.
type ExecutionResult struct {
	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the process exit code.
	// 0 indicates success, non-zero indicates failure.
	ExitCode int
}

// Executor runs the build tool as a child process.
//
// Standard streams are inherited so progress bars and prompts keep working.
// Signals listed in Forward are relayed to the child while it runs; context
// cancellation kills it.
type Executor struct {
	// Program is the build tool binary, usually "cargo".
	Program string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Forward lists the signals relayed to the running child.
	Forward []os.Signal

	Logger *zap.Logger
}

// NewExecutor creates an Executor for program wired to the process's own
// standard streams.
func NewExecutor(program string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Program: program,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Forward: []os.Signal{os.Interrupt, syscall.SIGTERM},
		Logger:  logger,
	}
}

// Run executes cmd with the executor's streams and returns the exit code.
//
// A non-zero exit code is not an error; errors are reserved for failures to
// start the process and for cancellation.
func (e *Executor) Run(ctx context.Context, cmd Command) (int, error) {
	c := e.command(ctx, cmd)
	c.Stdin = e.Stdin
	c.Stdout = e.Stdout
	c.Stderr = e.Stderr
	return e.wait(ctx, c)
}

// Output executes cmd with standard output and error captured.
func (e *Executor) Output(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	c := e.command(ctx, cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	code, err := e.wait(ctx, c)
	if err != nil {
		return nil, err
	}
	return &ExecutionResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: code}, nil
}

func (e *Executor) command(ctx context.Context, cmd Command) *exec.Cmd {
	// CommandContext is not used: cancellation is handled in wait so the
	// process is always reaped before returning.
	c := exec.Command(e.Program, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	return c
}

func (e *Executor) wait(ctx context.Context, c *exec.Cmd) (int, error) {
	e.Logger.Debug("exec", zap.String("program", c.Path), zap.Strings("args", c.Args[1:]), zap.String("dir", c.Dir))

	if err := ctx.Err(); err != nil {
		return -1, fmt.Errorf("execution cancelled: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	if len(e.Forward) > 0 {
		signal.Notify(sigs, e.Forward...)
		defer signal.Stop(sigs)
	}

	if err := c.Start(); err != nil {
		return -1, fmt.Errorf("%w %q: %v", ErrSpawn, e.Program, err)
	}

	// Wait for completion or context cancellation
	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	for {
		select {
		case sig := <-sigs:
			e.Logger.Debug("forwarding signal", zap.Stringer("signal", sig))
			_ = c.Process.Signal(sig)
		case <-ctx.Done():
			_ = c.Process.Kill()
			<-done // Wait for the process to actually exit
			return -1, fmt.Errorf("execution cancelled: %w", ctx.Err())
		case err := <-done:
			return exitCode(err)
		}
	}
}

// exitCode maps the result of Wait to a shell-style exit status.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, fmt.Errorf("waiting for build tool: %w", err)
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
