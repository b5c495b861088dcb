package binary

import (
	"context"
	"os"
	"os/exec"
)

// CommandRunner runs an external program with a discrete argument list.
// Arguments are never joined into a shell command line.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, env []string) ([]byte, error)
	LookPath(file string) (string, error)
}

// ExecRunner is the CommandRunner backed by os/exec.
type ExecRunner struct{}

// Run executes name with args and returns combined output. env entries are
// appended to the current environment.
func (ExecRunner) Run(ctx context.Context, name string, args []string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd.CombinedOutput()
}

// LookPath resolves file against PATH.
func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}
