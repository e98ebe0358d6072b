// Package merge serializes merges of finished sessions into their target
// branches. Each target branch has its own FIFO lane and worker; lanes for
// different targets run concurrently.
package merge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

var (
	// ErrWithdrawn is the outcome of a request withdrawn before it ran.
	ErrWithdrawn = errors.New("merge request withdrawn")
	// ErrStopped is the outcome of a request still queued when the queue stopped.
	ErrStopped = errors.New("merge queue stopped")
)

// Reporter receives merge transitions. The session engine implements it;
// the queue never writes session state itself.
type Reporter interface {
	BeginMerge(ctx context.Context, name string) error
	FinishMerge(ctx context.Context, name string, mergeErr error) error
	// RejectMerge reports a request the queue-side pre-merge hook turned
	// down before the merge began.
	RejectMerge(ctx context.Context, name string, hookErr error) error
}

// Executor performs the version-control side of a merge.
type Executor interface {
	// Execute merges req.SourceBranch into req.TargetBranch.
	Execute(ctx context.Context, req models.MergeRequest) error
	// Finalize runs after a successful merge has been reported and the
	// session's resources are released.
	Finalize(ctx context.Context, req models.MergeRequest)
}

// Store persists merge requests.
type Store interface {
	SaveMergeRequest(r *models.MergeRequest) error
	SaveMergeRequests(rs []models.MergeRequest) error
	ListMergeRequests(state *models.MergeState) ([]models.MergeRequest, error)
}

// Outcome is delivered once per request on its Ticket.
type Outcome struct {
	Request models.MergeRequest
	Err     error
}

// Ticket tracks an enqueued request.
type Ticket struct {
	ID   string
	done chan Outcome
}

// Done receives the request's outcome exactly once.
func (t *Ticket) Done() <-chan Outcome {
	return t.done
}

// Stats tracks merge queue statistics.
type Stats struct {
	Total     int
	Succeeded int
	Failed    int
	Withdrawn int
}

// Config contains configuration for the merge queue.
type Config struct {
	// RepoPath is exported to hooks as CLAUDEMIX_REPO.
	RepoPath string
	// DefaultTarget is used when a request names no target.
	DefaultTarget string
	// Deferred queues accept and persist requests but run nothing until Start.
	Deferred bool
}

type item struct {
	req  models.MergeRequest
	done chan Outcome
}

type lane struct {
	target  string
	items   []*item
	running *item
	wake    chan struct{}
}

// Queue is the per-target-branch merge queue.
type Queue struct {
	mu          sync.Mutex
	lanes       map[string]*lane
	outstanding map[string]*item // by session name
	stats       Stats
	stopped     bool
	running     bool

	reporter Reporter
	hooks    hooks.Runner
	exec     Executor
	store    Store
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// NewQueue creates a merge queue. store may be nil.
func NewQueue(cfg Config, reporter Reporter, hookRunner hooks.Runner, executor Executor, store Store) *Queue {
	if cfg.DefaultTarget == "" {
		cfg.DefaultTarget = "main"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:       make(map[string]*lane),
		outstanding: make(map[string]*item),
		reporter:    reporter,
		hooks:       hookRunner,
		exec:        executor,
		store:       store,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		running:     !cfg.Deferred,
		Now:         time.Now,
	}
}

// Start launches the workers of a deferred queue.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running || q.stopped {
		return
	}
	q.running = true
	for _, l := range q.lanes {
		q.startWorker(l)
	}
}

// Running reports whether workers process requests.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Enqueue appends a merge request for the session to its target's FIFO.
// It fails with AlreadyQueued while the session has an outstanding request.
func (q *Queue) Enqueue(s models.Session, target string) (*Ticket, error) {
	if target == "" {
		target = q.cfg.DefaultTarget
	}
	now := q.Now()
	return q.add(models.MergeRequest{
		ID:           uuid.NewString(),
		Session:      s.Name,
		SourceBranch: s.Branch,
		TargetBranch: target,
		WorktreePath: s.WorktreePath,
		State:        models.MergeQueued,
		PreMergeDone: s.PreMergeDone,
		EnqueuedAt:   now,
		UpdatedAt:    now,
	})
}

func (q *Queue) add(req models.MergeRequest) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return nil, ErrStopped
	}
	if existing, ok := q.outstanding[req.Session]; ok {
		return nil, cmerrors.AlreadyQueued(req.Session, existing.req.TargetBranch)
	}
	if err := q.save(&req); err != nil {
		return nil, cmerrors.E(cmerrors.Op("merge.Enqueue"), err)
	}

	it := &item{req: req, done: make(chan Outcome, 1)}
	q.outstanding[req.Session] = it
	l := q.laneLocked(req.TargetBranch)
	l.items = append(l.items, it)
	select {
	case l.wake <- struct{}{}:
	default:
	}

	logging.Component("merge").Info("merge enqueued",
		"session", req.Session, "target", req.TargetBranch, "position", len(l.items))
	return &Ticket{ID: req.ID, done: it.done}, nil
}

// laneLocked returns the lane for target, starting its worker on first use.
func (q *Queue) laneLocked(target string) *lane {
	l, ok := q.lanes[target]
	if !ok {
		l = &lane{target: target, wake: make(chan struct{}, 1)}
		q.lanes[target] = l
		if q.running {
			q.startWorker(l)
		}
	}
	return l
}

// startWorker runs l's worker. Caller holds q.mu.
func (q *Queue) startWorker(l *lane) {
	q.wg.Add(1)
	go q.worker(l)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Withdraw removes the session's queued request. A request that already
// started cannot be withdrawn and yields SessionBusy.
func (q *Queue) Withdraw(session string) error {
	const op cmerrors.Op = "merge.Withdraw"

	q.mu.Lock()
	it, ok := q.outstanding[session]
	if !ok {
		q.mu.Unlock()
		return cmerrors.E(op, cmerrors.KindNotFound, "no outstanding merge request for session "+session)
	}
	l := q.lanes[it.req.TargetBranch]
	if l.running == it {
		q.mu.Unlock()
		return cmerrors.SessionBusy(op, session, "merge in progress")
	}
	for i, other := range l.items {
		if other == it {
			l.items = append(l.items[:i], l.items[i+1:]...)
			break
		}
	}
	delete(q.outstanding, session)
	it.req.State = models.MergeWithdrawn
	q.stats.Withdrawn++
	err := q.save(&it.req)
	req := it.req
	q.mu.Unlock()

	logging.Component("merge").Info("merge withdrawn", "session", session, "target", req.TargetBranch)
	it.done <- Outcome{Request: req, Err: ErrWithdrawn}
	if err != nil {
		return cmerrors.E(op, err)
	}
	return nil
}

// worker processes one lane's requests sequentially.
func (q *Queue) worker(l *lane) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for len(l.items) == 0 {
			q.mu.Unlock()
			select {
			case <-l.wake:
			case <-q.ctx.Done():
				return
			}
			q.mu.Lock()
		}
		if q.ctx.Err() != nil {
			q.mu.Unlock()
			return
		}
		it := l.items[0]
		l.items = l.items[1:]
		l.running = it
		it.req.State = models.MergeRunning
		if err := q.save(&it.req); err != nil {
			logging.Component("merge").Error("persist merge request", "id", it.req.ID, "error", err)
		}
		req := it.req
		q.mu.Unlock()

		err := q.process(req)

		q.mu.Lock()
		l.running = nil
		delete(q.outstanding, req.Session)
		q.stats.Total++
		if err != nil {
			it.req.State = models.MergeFailed
			it.req.LastError = err.Error()
			q.stats.Failed++
		} else {
			it.req.State = models.MergeSucceeded
			q.stats.Succeeded++
		}
		if serr := q.save(&it.req); serr != nil {
			logging.Component("merge").Error("persist merge request", "id", it.req.ID, "error", serr)
		}
		final := it.req
		q.mu.Unlock()

		it.done <- Outcome{Request: final, Err: err}
	}
}

// process runs one request to completion. It is never cancelled midway;
// the executor bounds the version-control work itself.
func (q *Queue) process(req models.MergeRequest) error {
	ctx := context.Background()
	log := logging.Component("merge")
	hc := hooks.Context{
		Session:  req.Session,
		Branch:   req.SourceBranch,
		Target:   req.TargetBranch,
		Worktree: req.WorktreePath,
		Repo:     q.cfg.RepoPath,
	}

	if !req.PreMergeDone {
		if err := q.hooks.Check(ctx, hooks.PreMerge, hc); err != nil {
			log.Warn("pre-merge hook rejected request", "session", req.Session, "error", err)
			if rerr := q.reporter.RejectMerge(ctx, req.Session, err); rerr != nil {
				log.Warn("hook rejection not applied to session", "session", req.Session, "error", rerr)
			}
			return err
		}
	}

	if err := q.reporter.BeginMerge(ctx, req.Session); err != nil {
		log.Warn("session cannot start merging", "session", req.Session, "error", err)
		return err
	}

	start := q.Now()
	log.Info("merge started", "session", req.Session, "source", req.SourceBranch, "target", req.TargetBranch)
	mergeErr := q.exec.Execute(ctx, req)
	if mergeErr == nil {
		_ = q.hooks.Check(ctx, hooks.PostMerge, hc)
		log.Info("merge succeeded", "session", req.Session, "target", req.TargetBranch, "elapsed", q.Now().Sub(start))
	} else {
		log.Warn("merge failed", "session", req.Session, "target", req.TargetBranch, "error", mergeErr)
	}

	if err := q.reporter.FinishMerge(ctx, req.Session, mergeErr); err != nil {
		log.Warn("merge outcome not applied to session", "session", req.Session, "error", err)
	}
	if mergeErr == nil {
		q.exec.Finalize(ctx, req)
	}
	return mergeErr
}

// Restore loads persisted requests after a restart. Requests left queued
// are re-enqueued in their original order and their tickets returned;
// requests left merging were interrupted and are marked failed.
func (q *Queue) Restore() (requeued []*Ticket, interrupted int, err error) {
	if q.store == nil {
		return nil, 0, nil
	}

	running := models.MergeRunning
	stale, err := q.store.ListMergeRequests(&running)
	if err != nil {
		return nil, 0, err
	}
	if len(stale) > 0 {
		now := q.Now()
		for i := range stale {
			stale[i].State = models.MergeFailed
			stale[i].LastError = "interrupted"
			stale[i].UpdatedAt = now
		}
		// All or none.
		if err := q.store.SaveMergeRequests(stale); err != nil {
			return nil, 0, err
		}
		interrupted = len(stale)
	}

	queued := models.MergeQueued
	pending, err := q.store.ListMergeRequests(&queued)
	if err != nil {
		return requeued, interrupted, err
	}
	for _, r := range pending {
		tk, err := q.add(r)
		if err != nil {
			logging.Component("merge").Warn("dropping restored merge request", "id", r.ID, "session", r.Session, "error", err)
			continue
		}
		requeued = append(requeued, tk)
	}
	return requeued, interrupted, nil
}

// Get returns the session's outstanding request.
func (q *Queue) Get(session string) (models.MergeRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.outstanding[session]
	if !ok {
		return models.MergeRequest{}, false
	}
	return it.req, true
}

// Pending returns outstanding requests grouped by target, each lane's
// running request first and then its FIFO order.
func (q *Queue) Pending() []models.MergeRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	targets := make([]string, 0, len(q.lanes))
	for t := range q.lanes {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	var out []models.MergeRequest
	for _, t := range targets {
		l := q.lanes[t]
		if l.running != nil {
			out = append(out, l.running.req)
		}
		for _, it := range l.items {
			out = append(out, it.req)
		}
	}
	return out
}

// Stats returns a copy of the current statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Stop waits for running merges to finish and stops all workers. Requests
// still queued stay persisted for the next Restore.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range q.lanes {
		for _, it := range l.items {
			it.done <- Outcome{Request: it.req, Err: ErrStopped}
		}
		l.items = nil
	}
	q.outstanding = make(map[string]*item)
}

// save persists r. Caller holds q.mu.
func (q *Queue) save(r *models.MergeRequest) error {
	r.UpdatedAt = q.Now()
	if q.store == nil {
		return nil
	}
	return q.store.SaveMergeRequest(r)
}
