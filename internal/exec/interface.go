// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking git, tmux, hook and forge invocations in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunShell executes a shell command through "sh -c".
	// env entries ("KEY=value") are appended to the inherited environment.
	RunShell(ctx context.Context, workDir string, env []string, command string) (output []byte, err error)

	// LookPath reports the resolved path of an executable, or an error if it is not installed.
	LookPath(name string) (string, error)
}
