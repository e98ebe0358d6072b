// Package tmux drives the tmux server that keeps session processes alive
// across terminal disconnects. All commands run on a private socket so
// ClaudeMix sessions never collide with the user's own tmux sessions.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	cmdexec "github.com/Draidel/ClaudeMix/internal/exec"
)

// DefaultSocket is the tmux -L socket name used when none is configured.
const DefaultSocket = "claudemix"

// Client executes tmux commands.
type Client struct {
	runner cmdexec.CommandRunner
	socket string
	binary string
}

// NewClient returns a tmux client on the given socket using the default command runner.
func NewClient(socket string) *Client {
	return NewClientWithRunner(socket, cmdexec.NewRunner())
}

// NewClientWithRunner returns a tmux client using a custom command runner.
func NewClientWithRunner(socket string, runner cmdexec.CommandRunner) *Client {
	if socket == "" {
		socket = DefaultSocket
	}
	return &Client{runner: runner, socket: socket, binary: "tmux"}
}

// Socket returns the socket name passed to -L.
func (c *Client) Socket() string {
	return c.socket
}

// Installed reports whether the tmux binary is on PATH.
func (c *Client) Installed() bool {
	if c == nil || c.runner == nil {
		return false
	}
	_, err := c.runner.LookPath(c.binary)
	return err == nil
}

// Version returns the tmux version string, e.g. "tmux 3.4".
func (c *Client) Version(ctx context.Context) (string, error) {
	if c == nil || c.runner == nil {
		return "", errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run(ctx, "", c.binary, "-V")
	if err != nil {
		return "", fmt.Errorf("tmux -V failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// NewSession creates a detached session in dir and optionally runs a command.
func (c *Client) NewSession(ctx context.Context, name, dir string, command []string) error {
	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if len(command) > 0 {
		args = append(args, "--")
		args = append(args, command...)
	}
	return c.run(ctx, args...)
}

// SetEnvironment sets a session-scoped environment variable.
func (c *Client) SetEnvironment(ctx context.Context, name, key, value string) error {
	return c.run(ctx, "set-environment", "-t", name, key, value)
}

// KillSession terminates a tmux session.
func (c *Client) KillSession(ctx context.Context, name string) error {
	return c.run(ctx, "kill-session", "-t", name)
}

// DetachClients detaches every client attached to the session.
// A session with no attached clients is not an error.
func (c *Client) DetachClients(ctx context.Context, name string) error {
	return c.run(ctx, "detach-client", "-s", name)
}

// HasSession reports whether the named session exists.
func (c *Client) HasSession(ctx context.Context, name string) (bool, error) {
	if c == nil || c.runner == nil {
		return false, errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run(ctx, "", c.binary, c.withSocket("has-session", "-t", "="+name)...)
	if err != nil {
		if missing(err, output) {
			return false, nil
		}
		if len(output) > 0 {
			return false, fmt.Errorf("tmux has-session failed: %s", bytes.TrimSpace(output))
		}
		return false, fmt.Errorf("tmux has-session failed: %w", err)
	}
	return true, nil
}

// ListSessions returns the names of all sessions on the socket.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	if c == nil || c.runner == nil {
		return nil, errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run(ctx, "", c.binary, c.withSocket("list-sessions", "-F", "#{session_name}")...)
	if err != nil {
		if missing(err, output) {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux list-sessions failed: %w", err)
	}
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil, nil
	}
	var names []string
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// AttachCommand returns a command that attaches the terminal to a named session.
// Callers wire it to the terminal (directly or through tea.ExecProcess).
func (c *Client) AttachCommand(name string) *exec.Cmd {
	return exec.Command(c.binary, c.withSocket("attach-session", "-t", "="+name)...)
}

// missing reports whether a failed query only means the session or server does not exist.
// Exit status 1 covers both "can't find session" and "no server running".
func missing(err error, output []byte) bool {
	if cmdexec.ExitCode(err) > 0 {
		return true
	}
	out := string(output)
	return strings.Contains(out, "can't find session") ||
		strings.Contains(out, "no server running") ||
		strings.Contains(out, "error connecting to")
}

func (c *Client) withSocket(args ...string) []string {
	return append([]string{"-L", c.socket}, args...)
}

func (c *Client) run(ctx context.Context, args ...string) error {
	if c == nil || c.runner == nil {
		return errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run(ctx, "", c.binary, c.withSocket(args...)...)
	if err != nil {
		if len(output) > 0 {
			return fmt.Errorf("tmux %s failed: %s", args[0], bytes.TrimSpace(output))
		}
		return fmt.Errorf("tmux %s failed: %w", args[0], err)
	}
	return nil
}
