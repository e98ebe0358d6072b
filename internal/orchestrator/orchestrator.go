// Package orchestrator is the single entry point the CLI uses. It opens the
// repository's state, wires the session engine, worktree manager,
// persistence backend, hook dispatcher and merge queue together, and tears
// them down again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Draidel/ClaudeMix/internal/config"
	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	cmdexec "github.com/Draidel/ClaudeMix/internal/exec"
	"github.com/Draidel/ClaudeMix/internal/forge"
	"github.com/Draidel/ClaudeMix/internal/git"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/internal/merge"
	"github.com/Draidel/ClaudeMix/internal/persist"
	"github.com/Draidel/ClaudeMix/internal/session"
	"github.com/Draidel/ClaudeMix/internal/state"
	"github.com/Draidel/ClaudeMix/internal/tmux"
	"github.com/Draidel/ClaudeMix/internal/worktree"
)

// DefaultLockTimeout is how long Open waits for another process to release
// the repository.
const DefaultLockTimeout = 30 * time.Second

// Options configures Open. The zero value probes everything from the
// environment and the configuration files.
type Options struct {
	// Config overrides config.Load. Paths left empty are resolved against the repository.
	Config *config.Config
	// Runner runs git, tmux, hooks and forge clients.
	Runner cmdexec.CommandRunner
	// Backend overrides the tmux probe.
	Backend persist.Backend
	// RunQueue starts merge workers. Without it requests are only persisted
	// and run by the next process that does.
	RunQueue bool
	// LockTimeout bounds the wait for the repository lock.
	LockTimeout time.Duration
	// NoLogFile keeps logging disabled.
	NoLogFile bool
	// EventBuffer enables Events with the given channel capacity.
	EventBuffer int
}

// Orchestrator coordinates the components for one repository. Only one
// process holds an Orchestrator for a repository at a time.
type Orchestrator struct {
	repo string
	cfg  *config.Config

	git       git.Runner
	db        *state.DB
	lock      *state.Lock
	worktrees *worktree.Manager
	hooks     *hooks.Dispatcher
	sessions  *session.Engine
	queue     *merge.Queue
	forge     forge.Forge
	events    *EventEmitter

	report      session.ReconcileReport
	restored    []*merge.Ticket
	interrupted int
	logging     bool
	closed      bool
}

// Open prepares the orchestrator for the repository containing dir:
// it takes the repository lock, loads and reconciles the registry, retries
// deferred worktree removals and restores the merge queue.
func Open(ctx context.Context, dir string, opts Options) (_ *Orchestrator, err error) {
	const op cmerrors.Op = "orchestrator.Open"

	runner := opts.Runner
	if runner == nil {
		runner = cmdexec.NewRunner()
	}
	repo, err := git.NewRunnerWith(dir, runner).TopLevel(ctx)
	if err != nil {
		return nil, cmerrors.E(op, cmerrors.KindGit, "not inside a git repository", err)
	}

	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.Load(dir); err != nil {
			return nil, err
		}
	} else {
		copied := *cfg
		cfg = &copied
	}
	cfg.Resolve(repo)

	o := &Orchestrator{repo: repo, cfg: cfg, git: git.NewRunnerWith(repo, runner)}
	defer func() {
		if err != nil {
			o.release()
		}
	}()

	wait := opts.LockTimeout
	if wait <= 0 {
		wait = DefaultLockTimeout
	}
	if o.lock, err = state.AcquireLock(ctx, state.LockPath(cfg.State.Path), wait); err != nil {
		return nil, cmerrors.E(op, err)
	}

	if !opts.NoLogFile {
		if err := logging.Init(cfg.Log.Path, logging.ParseLevel(cfg.Log.Level)); err != nil {
			return nil, cmerrors.E(op, cmerrors.KindConfig, err)
		}
		o.logging = true
	}
	log := logging.Component("orchestrator")

	if o.db, err = state.Open(cfg.State.Path); err != nil {
		return nil, cmerrors.E(op, err)
	}
	if err = o.db.Migrate(); err != nil {
		return nil, cmerrors.E(op, err)
	}

	if o.worktrees, err = worktree.NewManager(cfg.Worktree.BaseDir, repo, o.git, o.db); err != nil {
		return nil, cmerrors.E(op, err)
	}

	backend := opts.Backend
	if backend == nil {
		if cfg.Persistence.Enabled {
			client := tmux.NewClientWithRunner(cfg.Persistence.Socket, runner)
			backend = persist.Probe(ctx, client, cfg.Persistence.AgentCommand())
		} else {
			backend = persist.Unavailable{Reason: "persistence is disabled in the configuration"}
		}
	}

	if opts.EventBuffer > 0 {
		o.events = NewEventEmitter(opts.EventBuffer)
	}
	o.hooks = hooks.NewDispatcher(runner, cfg.Hooks.Commands(), cfg.Hooks.Timeout)
	o.sessions = session.New(session.Config{RepoPath: repo, Target: cfg.Merge.Target},
		o.db, o.worktrees, backend, o.hooks)

	if o.report, err = o.sessions.Load(ctx); err != nil {
		return nil, err
	}
	if n, err := o.worktrees.RetryPending(ctx); err != nil {
		log.Warn("retrying deferred worktree removals", "error", err)
	} else if n > 0 {
		log.Info("removed deferred worktrees", "count", n)
	}

	strategy := merge.Strategy(cfg.Merge.Strategy)
	if strategy == merge.StrategyPR {
		o.forge = forge.Detect(ctx, o.git, runner, repo)
		if o.forge == nil {
			log.Warn("merge strategy is pr but no supported forge was detected")
		}
	}
	executor := merge.NewGitExecutor(o.git, o.worktrees, o.forge, merge.ExecutorConfig{
		Strategy:     strategy,
		Timeout:      cfg.Merge.Timeout,
		Rebase:       cfg.Merge.Rebase,
		DeleteBranch: cfg.Merge.DeleteBranch,
	})
	o.queue = merge.NewQueue(merge.Config{
		RepoPath:      repo,
		DefaultTarget: cfg.Merge.Target,
		Deferred:      !opts.RunQueue,
	}, &reporter{engine: o.sessions, events: o.events}, o.hooks, executor, o.db)

	if o.restored, o.interrupted, err = o.queue.Restore(); err != nil {
		return nil, cmerrors.E(op, err)
	}

	log.Info("orchestrator ready",
		"repo", repo,
		"backend", backend.Name(),
		"sessions", len(o.sessions.List()),
		"orphaned", len(o.report.Orphaned),
		"requeued", len(o.restored),
		"interrupted", o.interrupted,
		"queue_running", opts.RunQueue)
	return o, nil
}

// Shutdown flushes the registry, waits for running merges and releases
// the repository. Queued merge requests stay persisted.
func (o *Orchestrator) Shutdown() error {
	if o.closed {
		return nil
	}
	var errs []error
	if o.sessions != nil {
		if err := o.sessions.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flushing registry: %w", err))
		}
	}
	logging.Component("orchestrator").Info("orchestrator shutting down", "repo", o.repo)
	errs = append(errs, o.release())
	return errors.Join(errs...)
}

// release closes whatever Open managed to acquire, in reverse order.
func (o *Orchestrator) release() error {
	o.closed = true
	var errs []error
	if o.queue != nil {
		o.queue.Stop()
	}
	if o.db != nil {
		if err := o.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing state: %w", err))
		}
	}
	if o.lock != nil {
		if err := o.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	o.events.Close()
	if o.logging {
		logging.Close()
	}
	return errors.Join(errs...)
}

// Repo returns the repository root.
func (o *Orchestrator) Repo() string { return o.repo }

// Config returns the resolved configuration.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// Backend returns the persistence backend chosen at startup.
func (o *Orchestrator) Backend() persist.Backend { return o.sessions.Backend() }

// Hooks returns the hook dispatcher.
func (o *Orchestrator) Hooks() *hooks.Dispatcher { return o.hooks }

// Forge returns the detected forge, nil unless the pr strategy is configured.
func (o *Orchestrator) Forge() forge.Forge { return o.forge }

// Events returns the event stream, nil unless Options.EventBuffer was set.
func (o *Orchestrator) Events() <-chan Event { return o.events.Events() }

// Report returns how the registry was reconciled at Open.
func (o *Orchestrator) Report() session.ReconcileReport { return o.report }

// Restored returns the tickets of merge requests re-enqueued at Open and
// how many interrupted requests were marked failed.
func (o *Orchestrator) Restored() ([]*merge.Ticket, int) { return o.restored, o.interrupted }

// DroppedEvents returns how many events were dropped because nobody read them.
func (o *Orchestrator) DroppedEvents() uint64 { return o.events.DroppedCount() }

// ReloadConfig applies a changed configuration to a running orchestrator.
// Only the hook table and the log level take effect; everything else
// needs a new process.
func (o *Orchestrator) ReloadConfig(cfg *config.Config) {
	o.hooks.SetCommands(cfg.Hooks.Commands(), cfg.Hooks.Timeout)
	logging.SetLevel(logging.ParseLevel(cfg.Log.Level))
	logging.Component("orchestrator").Info("configuration reloaded", "hooks", len(o.hooks.Configured()))
	o.events.Emit(Event{Type: EventConfigReloaded, Message: fmt.Sprintf("%d hooks configured", len(o.hooks.Configured()))})
}
