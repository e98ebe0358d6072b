// Package persist keeps session processes running independently of the
// terminal that started them. The tmux backend is the only real
// implementation; when tmux is missing every session runs in the foreground.
package persist

import (
	"context"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/internal/tmux"
)

// Backend manages detachable session processes.
type Backend interface {
	// Name identifies the backend in status output.
	Name() string
	// Available reports whether the backend can host sessions.
	Available() bool
	// Attach starts a detached process for sessionID in workDir and returns its handle.
	Attach(ctx context.Context, sessionID, workDir string) (string, error)
	// Detach disconnects any terminal from the handle, leaving the process running.
	Detach(ctx context.Context, handle string) error
	// IsAlive reports whether the process behind handle still exists.
	IsAlive(ctx context.Context, handle string) (bool, error)
	// Kill terminates the process behind handle. A dead handle is not an error.
	Kill(ctx context.Context, handle string) error
	// AttachCommand returns the command that connects the current terminal to handle.
	AttachCommand(handle string) *exec.Cmd
}

// Lister is implemented by backends that can report every live handle in
// one call. Startup reconciliation prefers it over IsAlive per session.
type Lister interface {
	LiveHandles(ctx context.Context) (map[string]bool, error)
}

// HandleName builds a unique handle for a session.
// tmux rejects '.' and ':' in session names.
func HandleName(sessionID string) string {
	safe := strings.NewReplacer(".", "_", ":", "_").Replace(sessionID)
	return "claudemix-" + safe + "-" + uuid.New().String()[:8]
}

// Probe checks once whether tmux works and returns the matching backend.
// command is what runs inside each new session.
func Probe(ctx context.Context, client *tmux.Client, command []string) Backend {
	log := logging.Component("persist")
	if client == nil || !client.Installed() {
		log.Info("tmux not found, sessions run in the foreground")
		return Unavailable{Reason: "tmux is not installed"}
	}
	version, err := client.Version(ctx)
	if err != nil {
		log.Warn("tmux probe failed, sessions run in the foreground", "error", err)
		return Unavailable{Reason: err.Error()}
	}
	log.Info("persistence backend ready", "backend", "tmux", "version", version, "socket", client.Socket())
	return NewTmuxBackend(client, command)
}

// TmuxBackend hosts each session in its own tmux session.
type TmuxBackend struct {
	client  *tmux.Client
	command []string
}

// NewTmuxBackend creates a backend that runs command in every new session.
func NewTmuxBackend(client *tmux.Client, command []string) *TmuxBackend {
	return &TmuxBackend{client: client, command: command}
}

func (b *TmuxBackend) Name() string    { return "tmux" }
func (b *TmuxBackend) Available() bool { return true }

// Attach creates a detached tmux session rooted at workDir.
func (b *TmuxBackend) Attach(ctx context.Context, sessionID, workDir string) (string, error) {
	handle := HandleName(sessionID)
	if err := b.client.NewSession(ctx, handle, workDir, b.command); err != nil {
		return "", cmerrors.PersistenceUnavailable("persist.Attach", err)
	}
	_ = b.client.SetEnvironment(ctx, handle, "CLAUDEMIX_SESSION", sessionID)
	return handle, nil
}

// Detach disconnects attached clients; a session nobody is attached to is left alone.
func (b *TmuxBackend) Detach(ctx context.Context, handle string) error {
	alive, err := b.client.HasSession(ctx, handle)
	if err != nil {
		return err
	}
	if !alive {
		return nil
	}
	// detach-client fails when no client is attached.
	_ = b.client.DetachClients(ctx, handle)
	return nil
}

func (b *TmuxBackend) IsAlive(ctx context.Context, handle string) (bool, error) {
	if handle == "" {
		return false, nil
	}
	return b.client.HasSession(ctx, handle)
}

// LiveHandles lists the sessions on the claudemix tmux socket.
func (b *TmuxBackend) LiveHandles(ctx context.Context) (map[string]bool, error) {
	names, err := b.client.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(names))
	for _, n := range names {
		live[n] = true
	}
	return live, nil
}

func (b *TmuxBackend) Kill(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	alive, err := b.client.HasSession(ctx, handle)
	if err != nil {
		return err
	}
	if !alive {
		return nil
	}
	return b.client.KillSession(ctx, handle)
}

func (b *TmuxBackend) AttachCommand(handle string) *exec.Cmd {
	return b.client.AttachCommand(handle)
}

var _ Lister = (*TmuxBackend)(nil)

// Unavailable is the backend used when no persistence mechanism exists.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Name() string    { return "none" }
func (u Unavailable) Available() bool { return false }

func (u Unavailable) Attach(context.Context, string, string) (string, error) {
	return "", u.err("persist.Attach")
}

func (u Unavailable) Detach(context.Context, string) error {
	return u.err("persist.Detach")
}

func (u Unavailable) IsAlive(context.Context, string) (bool, error) {
	return false, u.err("persist.IsAlive")
}

// Kill succeeds: without a backend there is nothing to terminate.
func (u Unavailable) Kill(context.Context, string) error {
	return nil
}

func (u Unavailable) AttachCommand(string) *exec.Cmd {
	return nil
}

func (u Unavailable) err(op cmerrors.Op) error {
	if u.Reason == "" {
		return cmerrors.PersistenceUnavailable(op, nil)
	}
	return cmerrors.E(op, cmerrors.KindPersistenceUnavailable, u.Reason)
}

// Verify implementations at compile time.
var (
	_ Backend = (*TmuxBackend)(nil)
	_ Backend = Unavailable{}
)
