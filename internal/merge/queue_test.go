package merge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

// fakeReporter records transitions in order.
type fakeReporter struct {
	mu       sync.Mutex
	begun    []string
	finished []string
	rejected map[string]error
	beginErr map[string]error
}

func (r *fakeReporter) BeginMerge(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.beginErr[name]; err != nil {
		return err
	}
	r.begun = append(r.begun, name)
	return nil
}

func (r *fakeReporter) FinishMerge(_ context.Context, name string, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, name)
	return nil
}

func (r *fakeReporter) RejectMerge(_ context.Context, name string, hookErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejected == nil {
		r.rejected = map[string]error{}
	}
	r.rejected[name] = hookErr
	return nil
}

func (r *fakeReporter) rejection(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejected[name]
}

func (r *fakeReporter) begins() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.begun...)
}

// fakeExecutor delays or fails chosen sessions and can block until released.
type fakeExecutor struct {
	mu        sync.Mutex
	delay     map[string]time.Duration
	fail      map[string]error
	gate      map[string]chan struct{}
	started   chan string
	completed []string
	finalized []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		delay:   map[string]time.Duration{},
		fail:    map[string]error{},
		gate:    map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

func (x *fakeExecutor) Execute(_ context.Context, req models.MergeRequest) error {
	x.started <- req.Session
	x.mu.Lock()
	d, gate, err := x.delay[req.Session], x.gate[req.Session], x.fail[req.Session]
	x.mu.Unlock()
	if gate != nil {
		<-gate
	}
	time.Sleep(d)
	x.mu.Lock()
	x.completed = append(x.completed, req.Session)
	x.mu.Unlock()
	return err
}

func (x *fakeExecutor) Finalize(_ context.Context, req models.MergeRequest) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.finalized = append(x.finalized, req.Session)
}

// fakeHooks rejects the phases listed in reject.
type fakeHooks struct {
	mu     sync.Mutex
	reject map[hooks.Phase]bool
	calls  []hooks.Phase
}

func (h *fakeHooks) Check(_ context.Context, phase hooks.Phase, _ hooks.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, phase)
	if h.reject[phase] {
		return cmerrors.HookRejected(string(phase), 2, "checks failed")
	}
	return nil
}

// memStore is an in-memory Store.
type memStore struct {
	mu   sync.Mutex
	reqs []models.MergeRequest
}

func (m *memStore) SaveMergeRequest(r *models.MergeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.reqs {
		if m.reqs[i].ID == r.ID {
			m.reqs[i] = *r
			return nil
		}
	}
	m.reqs = append(m.reqs, *r)
	return nil
}

func (m *memStore) SaveMergeRequests(rs []models.MergeRequest) error {
	for i := range rs {
		if err := m.SaveMergeRequest(&rs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) ListMergeRequests(state *models.MergeState) ([]models.MergeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MergeRequest
	for _, r := range m.reqs {
		if state == nil || r.State == *state {
			out = append(out, r)
		}
	}
	return out, nil
}

func session(name string) models.Session {
	return models.Session{
		Name:         name,
		Branch:       name,
		WorktreePath: "/wt/" + name,
		State:        models.SessionReadyToMerge,
		PreMergeDone: true,
	}
}

func newTestQueue(t *testing.T, store Store) (*Queue, *fakeReporter, *fakeExecutor, *fakeHooks) {
	t.Helper()
	rep := &fakeReporter{beginErr: map[string]error{}}
	x := newFakeExecutor()
	h := &fakeHooks{reject: map[hooks.Phase]bool{}}
	q := NewQueue(Config{RepoPath: "/repo"}, rep, h, x, store)
	t.Cleanup(q.Stop)
	return q, rep, x, h
}

func wait(t *testing.T, tk *Ticket) Outcome {
	t.Helper()
	select {
	case o := <-tk.Done():
		return o
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for request %s", tk.ID)
		return Outcome{}
	}
}

func TestQueue_FIFOPerTarget(t *testing.T) {
	q, _, x, _ := newTestQueue(t, nil)
	x.delay["first"] = 100 * time.Millisecond

	var tickets []*Ticket
	for _, name := range []string{"first", "second", "third"} {
		tk, err := q.Enqueue(session(name), "main")
		if err != nil {
			t.Fatalf("Enqueue(%s) error = %v", name, err)
		}
		tickets = append(tickets, tk)
	}

	var order []string
	for _, tk := range tickets {
		o := wait(t, tk)
		if o.Err != nil {
			t.Fatalf("merge %s failed: %v", o.Request.Session, o.Err)
		}
		order = append(order, o.Request.Session)
	}

	x.mu.Lock()
	completed := append([]string(nil), x.completed...)
	x.mu.Unlock()
	want := []string{"first", "second", "third"}
	for i := range want {
		if completed[i] != want[i] || order[i] != want[i] {
			t.Fatalf("completion order = %v, want %v", completed, want)
		}
	}
	if s := q.Stats(); s.Total != 3 || s.Succeeded != 3 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestQueue_TargetsRunConcurrently(t *testing.T) {
	q, _, x, _ := newTestQueue(t, nil)
	gate := make(chan struct{})
	x.gate["blocked"] = gate

	blocked, err := q.Enqueue(session("blocked"), "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	<-x.started

	other, err := q.Enqueue(session("other"), "release")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if o := wait(t, other); o.Err != nil {
		t.Fatalf("release merge failed: %v", o.Err)
	}

	close(gate)
	if o := wait(t, blocked); o.Err != nil {
		t.Fatalf("main merge failed: %v", o.Err)
	}
}

func TestQueue_AlreadyQueued(t *testing.T) {
	q, _, x, _ := newTestQueue(t, nil)
	gate := make(chan struct{})
	x.gate["feature"] = gate
	defer close(gate)

	if _, err := q.Enqueue(session("feature"), "main"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	_, err := q.Enqueue(session("feature"), "release")
	if !errors.Is(err, cmerrors.ErrAlreadyQueued) {
		t.Errorf("second Enqueue() error = %v, want already queued", err)
	}
}

func TestQueue_PreMergeRejectedNeverMerges(t *testing.T) {
	q, rep, x, h := newTestQueue(t, nil)
	h.reject[hooks.PreMerge] = true

	s := session("feature")
	s.PreMergeDone = false
	tk, err := q.Enqueue(s, "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	o := wait(t, tk)
	if !errors.Is(o.Err, cmerrors.ErrHookRejected) {
		t.Fatalf("outcome error = %v, want hook rejected", o.Err)
	}
	if o.Request.State != models.MergeFailed {
		t.Errorf("request State = %q, want failed", o.Request.State)
	}
	if len(rep.begins()) != 0 {
		t.Error("session reached merging despite the rejected hook")
	}
	if err := rep.rejection("feature"); !errors.Is(err, cmerrors.ErrHookRejected) {
		t.Errorf("reported rejection = %v, want hook rejected", err)
	}
	if len(q.Pending()) != 0 {
		t.Errorf("Pending() = %v, want empty", q.Pending())
	}
	if _, ok := q.Get("feature"); ok {
		t.Error("rejected request still outstanding")
	}
	select {
	case name := <-x.started:
		t.Errorf("executor ran for %s", name)
	default:
	}
}

func TestQueue_SkipsPreMergeWhenDone(t *testing.T) {
	q, _, _, h := newTestQueue(t, nil)
	h.reject[hooks.PreMerge] = true

	tk, err := q.Enqueue(session("feature"), "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if o := wait(t, tk); o.Err != nil {
		t.Fatalf("outcome error = %v", o.Err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.calls {
		if p == hooks.PreMerge {
			t.Error("pre-merge hook ran although the session already passed it")
		}
	}
}

func TestQueue_FailureReportedAndNotRetried(t *testing.T) {
	q, rep, x, _ := newTestQueue(t, nil)
	x.fail["feature"] = cmerrors.MergeConflict("feature", "main", []string{"a.txt"})

	tk, err := q.Enqueue(session("feature"), "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	o := wait(t, tk)
	if !errors.Is(o.Err, cmerrors.ErrMergeConflict) {
		t.Fatalf("outcome error = %v, want merge conflict", o.Err)
	}
	if o.Request.LastError == "" {
		t.Error("LastError not recorded")
	}

	rep.mu.Lock()
	finished := len(rep.finished)
	rep.mu.Unlock()
	x.mu.Lock()
	runs, finalized := len(x.completed), len(x.finalized)
	x.mu.Unlock()
	if finished != 1 || runs != 1 || finalized != 0 {
		t.Errorf("finished=%d runs=%d finalized=%d, want 1 1 0", finished, runs, finalized)
	}

	// The session may be enqueued again after fixing the conflict.
	delete(x.fail, "feature")
	tk, err = q.Enqueue(session("feature"), "main")
	if err != nil {
		t.Fatalf("re-Enqueue() error = %v", err)
	}
	if o := wait(t, tk); o.Err != nil {
		t.Errorf("second attempt error = %v", o.Err)
	}
}

func TestQueue_Withdraw(t *testing.T) {
	q, rep, x, _ := newTestQueue(t, nil)
	gate := make(chan struct{})
	x.gate["running"] = gate

	running, err := q.Enqueue(session("running"), "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	<-x.started
	waiting, err := q.Enqueue(session("waiting"), "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := q.Withdraw("running"); !errors.Is(err, cmerrors.ErrSessionBusy) {
		t.Errorf("Withdraw(running) error = %v, want session busy", err)
	}
	if err := q.Withdraw("waiting"); err != nil {
		t.Fatalf("Withdraw(waiting) error = %v", err)
	}
	if o := wait(t, waiting); !errors.Is(o.Err, ErrWithdrawn) || o.Request.State != models.MergeWithdrawn {
		t.Errorf("withdrawn outcome = %+v", o)
	}
	if err := q.Withdraw("nobody"); !errors.Is(err, cmerrors.ErrNotFound) {
		t.Errorf("Withdraw(nobody) error = %v, want not found", err)
	}

	close(gate)
	wait(t, running)
	for _, name := range rep.begins() {
		if name == "waiting" {
			t.Error("withdrawn request reached the session engine")
		}
	}
	if s := q.Stats(); s.Withdrawn != 1 || s.Total != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestQueue_BeginMergeRefused(t *testing.T) {
	q, rep, x, _ := newTestQueue(t, nil)
	rep.beginErr["feature"] = cmerrors.InvalidTransition("session.BeginMerge", "feature", "active", "merging")

	tk, err := q.Enqueue(session("feature"), "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if o := wait(t, tk); !errors.Is(o.Err, cmerrors.ErrInvalidTransition) {
		t.Errorf("outcome error = %v, want invalid transition", o.Err)
	}
	select {
	case <-x.started:
		t.Error("executor ran for a session that could not start merging")
	default:
	}
}

func TestQueue_PersistAndRestore(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	store.reqs = []models.MergeRequest{
		{ID: "1", Session: "a", SourceBranch: "a", TargetBranch: "main", State: models.MergeRunning, EnqueuedAt: now},
		{ID: "2", Session: "b", SourceBranch: "b", TargetBranch: "main", State: models.MergeQueued, PreMergeDone: true, EnqueuedAt: now.Add(time.Second)},
		{ID: "3", Session: "c", SourceBranch: "c", TargetBranch: "main", State: models.MergeQueued, PreMergeDone: true, EnqueuedAt: now.Add(2 * time.Second)},
		{ID: "4", Session: "d", SourceBranch: "d", TargetBranch: "main", State: models.MergeSucceeded, EnqueuedAt: now},
	}

	q, rep, x, _ := newTestQueue(t, store)
	gate := make(chan struct{})
	x.gate["b"] = gate

	requeued, interrupted, err := q.Restore()
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(requeued) != 2 || interrupted != 1 {
		t.Errorf("Restore() = %d, %d, want 2, 1", len(requeued), interrupted)
	}
	<-x.started

	pending := q.Pending()
	if len(pending) != 2 || pending[0].ID != "2" || pending[0].State != models.MergeRunning || pending[1].ID != "3" {
		t.Errorf("Pending() = %+v", pending)
	}
	close(gate)

	deadline := time.Now().Add(5 * time.Second)
	for len(rep.begins()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := rep.begins(); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("merge order = %v, want [b c]", got)
	}

	failed := models.MergeFailed
	stale, _ := store.ListMergeRequests(&failed)
	if len(stale) != 1 || stale[0].ID != "1" || stale[0].LastError != "interrupted" {
		t.Errorf("interrupted requests = %+v", stale)
	}
}

func TestQueue_StopLeavesQueuedPersisted(t *testing.T) {
	store := &memStore{}
	q, _, x, _ := newTestQueue(t, store)
	gate := make(chan struct{})
	x.gate["running"] = gate

	first, _ := q.Enqueue(session("running"), "main")
	<-x.started
	second, err := q.Enqueue(session("waiting"), "main")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	for q.ctx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	<-stopped

	if o := wait(t, first); o.Err != nil {
		t.Errorf("running merge error = %v, want completion", o.Err)
	}
	if o := wait(t, second); !errors.Is(o.Err, ErrStopped) {
		t.Errorf("queued outcome = %v, want stopped", o.Err)
	}
	queued := models.MergeQueued
	left, _ := store.ListMergeRequests(&queued)
	if len(left) != 1 || left[0].Session != "waiting" {
		t.Errorf("persisted queued = %+v", left)
	}
	if _, err := q.Enqueue(session("late"), "main"); !errors.Is(err, ErrStopped) {
		t.Errorf("Enqueue after Stop error = %v", err)
	}
}

func TestQueue_DeferredRunsOnStart(t *testing.T) {
	rep := &fakeReporter{beginErr: map[string]error{}}
	x := newFakeExecutor()
	q := NewQueue(Config{Deferred: true}, rep, &fakeHooks{}, x, &memStore{})
	t.Cleanup(q.Stop)

	tk, err := q.Enqueue(session("feature"), "")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := q.Enqueue(session("feature"), ""); !errors.Is(err, cmerrors.ErrAlreadyQueued) {
		t.Errorf("deferred queue lost track of outstanding request: %v", err)
	}
	select {
	case <-x.started:
		t.Fatal("deferred queue ran a request before Start")
	case <-time.After(50 * time.Millisecond):
	}
	if p := q.Pending(); len(p) != 1 || p[0].TargetBranch != "main" {
		t.Errorf("Pending() = %+v", p)
	}

	q.Start()
	if o := wait(t, tk); o.Err != nil {
		t.Errorf("outcome error = %v", o.Err)
	}
}
