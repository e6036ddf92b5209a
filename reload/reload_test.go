package reload

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_NoCommand(t *testing.T) {
	inv := NewInvoker()

	result := inv.Invoke(context.Background(), "domains_modified", "")

	assert.False(t, result.Ran)
	assert.True(t, result.OK())
}

func TestInvoke_Success(t *testing.T) {
	inv := NewInvoker()

	result := inv.Invoke(context.Background(), "domains_modified", "true")

	assert.True(t, result.Ran)
	assert.True(t, result.OK())
	assert.Equal(t, 0, result.ExitCode)
}

func TestInvoke_NonZeroExit(t *testing.T) {
	inv := NewInvoker()

	result := inv.Invoke(context.Background(), "domains_modified", "exit 3")

	// Failure is reported, never raised
	assert.True(t, result.Ran)
	assert.False(t, result.OK())
	assert.Equal(t, 3, result.ExitCode)
	assert.Error(t, result.Err)
}

func TestInvoke_ShellCommandLine(t *testing.T) {
	inv := NewInvoker()

	// Commands are full shell lines, not bare argv
	result := inv.Invoke(context.Background(), "domains_modified", "test 1 -eq 1 && true")

	assert.True(t, result.OK())
}

type recordingExecutor struct {
	name string
	args []string
}

func (r *recordingExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	r.name = name
	r.args = args
	return exec.CommandContext(ctx, "true")
}

func TestInvoke_RunsThroughShell(t *testing.T) {
	rec := &recordingExecutor{}
	inv := NewInvokerWithExecutor(rec)

	result := inv.Invoke(context.Background(), "domains_modified", "rndc reload example.com")
	require.True(t, result.OK())

	assert.Equal(t, "sh", rec.name)
	assert.Equal(t, []string{"-c", "rndc reload example.com"}, rec.args)
}
