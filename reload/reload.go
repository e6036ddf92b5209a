package reload

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// Executor creates exec.Cmd instances. The indirection lets tests swap
// in command construction that never touches the real system.
type Executor interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// RealExecutor runs commands through os/exec
type RealExecutor struct{}

func (RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// Result is the observed outcome of one reload invocation
type Result struct {
	Ran      bool
	ExitCode int
	Duration time.Duration
	Err      error
}

// OK reports whether the command either did not need to run or exited
// zero
func (r Result) OK() bool {
	return r.Err == nil
}

// Invoker runs reload commands after a file replacement. A failing
// command is an operator problem, reported but never escalated; the
// daemon keeps syncing.
type Invoker struct {
	executor Executor
}

// NewInvoker creates an invoker using the real command executor
func NewInvoker() *Invoker {
	return &Invoker{executor: RealExecutor{}}
}

// NewInvokerWithExecutor creates an invoker with a custom executor,
// for tests
func NewInvokerWithExecutor(executor Executor) *Invoker {
	return &Invoker{executor: executor}
}

// Invoke runs the command through the shell, synchronously. An empty
// command is a no-op. Output streams pass through to the daemon's own;
// only the exit status is interpreted.
func (i *Invoker) Invoke(ctx context.Context, targetName, command string) Result {
	if command == "" {
		return Result{}
	}

	start := time.Now()
	cmd := i.executor.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	result := Result{
		Ran:      true,
		Duration: time.Since(start),
		Err:      err,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("target", targetName).
			Str("command", command).
			Int("exit_code", result.ExitCode).
			Msg("Reload command failed")
		return result
	}

	log.Debug().
		Str("target", targetName).
		Dur("duration", result.Duration).
		Msg("Reload command completed")
	return result
}
