// Package hooks runs the user-configured shell commands attached to session
// lifecycle phases. Blocking phases can veto the transition they guard;
// the others are informational and only logged.
package hooks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/exec"
	"github.com/Draidel/ClaudeMix/internal/logging"
)

// Phase names a lifecycle point a hook can attach to.
type Phase string

const (
	PreStart     Phase = "pre_start"
	PostStart    Phase = "post_start"
	PreMerge     Phase = "pre_merge"
	PostMerge    Phase = "post_merge"
	SessionClose Phase = "session_close"
)

// DefaultTimeout bounds a hook when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// maxOutput caps how much hook output is kept for error messages.
const maxOutput = 4096

// Phases returns every phase in lifecycle order.
func Phases() []Phase {
	return []Phase{PreStart, PostStart, PreMerge, PostMerge, SessionClose}
}

// ParsePhase accepts both "pre_merge" and "pre-merge".
func ParsePhase(s string) (Phase, bool) {
	p := Phase(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Phases() {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Blocking reports whether a failure in this phase rejects the transition.
func (p Phase) Blocking() bool {
	return p == PreStart || p == PreMerge
}

// Context describes the session a hook runs for. It is exported to the hook
// as CLAUDEMIX_* environment variables.
type Context struct {
	Session  string
	Branch   string
	Target   string
	Worktree string
	Repo     string
}

// Env returns the environment entries for the hook process.
func (c Context) Env(phase Phase) []string {
	return []string{
		"CLAUDEMIX_PHASE=" + string(phase),
		"CLAUDEMIX_SESSION=" + c.Session,
		"CLAUDEMIX_BRANCH=" + c.Branch,
		"CLAUDEMIX_TARGET=" + c.Target,
		"CLAUDEMIX_WORKTREE=" + c.Worktree,
		"CLAUDEMIX_REPO=" + c.Repo,
	}
}

func (c Context) workDir() string {
	if c.Worktree != "" {
		return c.Worktree
	}
	return c.Repo
}

// Result is the outcome of one hook invocation.
type Result struct {
	Phase    Phase
	Command  string
	ExitCode int
	Output   string
	Elapsed  time.Duration
	TimedOut bool
	// Skipped is set when no command is configured for the phase.
	Skipped bool
}

// OK reports whether the hook passed. Timeouts always fail.
func (r Result) OK() bool {
	return r.Skipped || (!r.TimedOut && r.ExitCode == 0)
}

// Runner is the capability the session engine and merge queue depend on.
type Runner interface {
	// Check runs the hook for phase and returns a HookRejected error when a
	// blocking phase fails. Non-blocking failures are logged and return nil.
	Check(ctx context.Context, phase Phase, hc Context) error
}

// Dispatcher runs hooks through a command runner.
type Dispatcher struct {
	runner exec.CommandRunner

	mu       sync.RWMutex
	commands map[Phase]string
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher for the given phase commands.
func NewDispatcher(runner exec.CommandRunner, commands map[Phase]string, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{runner: runner}
	d.SetCommands(commands, timeout)
	return d
}

// SetCommands replaces the configured commands, e.g. after a config reload.
// Hooks already running keep their old command.
func (d *Dispatcher) SetCommands(commands map[Phase]string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	copied := make(map[Phase]string, len(commands))
	for p, c := range commands {
		if c = strings.TrimSpace(c); c != "" {
			copied[p] = c
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = copied
	d.timeout = timeout
}

// Command returns the command configured for phase, or "".
func (d *Dispatcher) Command(phase Phase) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.commands[phase]
}

// Configured returns the configured phases in lifecycle order.
func (d *Dispatcher) Configured() []Phase {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var phases []Phase
	for p := range d.commands {
		phases = append(phases, p)
	}
	order := map[Phase]int{}
	for i, p := range Phases() {
		order[p] = i
	}
	sort.Slice(phases, func(i, j int) bool { return order[phases[i]] < order[phases[j]] })
	return phases
}

// Timeout returns the per-hook timeout.
func (d *Dispatcher) Timeout() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.timeout
}

// Run executes the hook for phase. A phase without a command succeeds immediately.
func (d *Dispatcher) Run(ctx context.Context, phase Phase, hc Context) Result {
	d.mu.RLock()
	command := d.commands[phase]
	timeout := d.timeout
	d.mu.RUnlock()

	res := Result{Phase: phase, Command: command}
	if command == "" {
		res.Skipped = true
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := d.runner.RunShell(runCtx, hc.workDir(), hc.Env(phase), command)
	res.Elapsed = time.Since(start)
	res.Output = tail(strings.TrimSpace(string(out)), maxOutput)
	res.ExitCode = exec.ExitCode(err)

	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
	}

	logging.Component("hooks").Info("hook finished",
		"phase", phase, "session", hc.Session, "exit", res.ExitCode,
		"timed_out", res.TimedOut, "elapsed", res.Elapsed.Round(time.Millisecond))
	return res
}

// Check runs the hook and enforces the phase's blocking rule.
func (d *Dispatcher) Check(ctx context.Context, phase Phase, hc Context) error {
	res := d.Run(ctx, phase, hc)
	if res.OK() {
		return nil
	}

	output := res.Output
	if res.TimedOut {
		output = "timed out after " + d.Timeout().String()
	}
	if phase.Blocking() {
		return cmerrors.HookRejected(string(phase), res.ExitCode, output)
	}
	logging.Component("hooks").Warn("non-blocking hook failed",
		"phase", phase, "session", hc.Session, "exit", res.ExitCode, "output", output)
	return nil
}

// tail keeps at most the last n bytes of s, cut on a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}

// Verify Dispatcher implements Runner at compile time.
var _ Runner = (*Dispatcher)(nil)
