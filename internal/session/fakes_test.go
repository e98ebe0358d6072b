package session

import (
	"context"
	"errors"
	"os/exec"
	"sync"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	saveErr  error
}

func newMemStore() *memStore { return &memStore{sessions: map[string]models.Session{}} }

func (m *memStore) SaveSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[s.Name] = *s
	return nil
}

func (m *memStore) ListSessions() ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) DeleteSession(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, name)
	return nil
}

func (m *memStore) get(name string) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}

// fakeWorktrees tracks acquired paths in memory.
type fakeWorktrees struct {
	mu         sync.Mutex
	live       map[string]string // path -> branch
	released   []string
	acquireErr error
	// onAcquire runs before an acquire succeeds.
	onAcquire func(branch string)
}

func newFakeWorktrees() *fakeWorktrees { return &fakeWorktrees{live: map[string]string{}} }

func (f *fakeWorktrees) PathFor(branch string) string { return "/wt/" + branch }

func (f *fakeWorktrees) Acquire(_ context.Context, branch, _ string) (string, error) {
	if f.onAcquire != nil {
		f.onAcquire(branch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return "", f.acquireErr
	}
	path := f.PathFor(branch)
	f.live[path] = branch
	return path, nil
}

func (f *fakeWorktrees) Release(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, path)
	f.released = append(f.released, path)
	return nil
}

func (f *fakeWorktrees) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[path]
	return ok, nil
}

func (f *fakeWorktrees) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// fakeBackend is an in-memory persistence backend.
type fakeBackend struct {
	mu         sync.Mutex
	handles    map[string]bool
	detached   []string
	next       int
	aliveCalls int
	listCalls  int
}

func newFakeBackend() *fakeBackend { return &fakeBackend{handles: map[string]bool{}} }

func (b *fakeBackend) Name() string    { return "fake" }
func (b *fakeBackend) Available() bool { return true }

func (b *fakeBackend) Attach(_ context.Context, sessionID, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	h := sessionID + "-" + string(rune('a'+b.next))
	b.handles[h] = true
	return h, nil
}

func (b *fakeBackend) Detach(_ context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detached = append(b.detached, handle)
	return nil
}

func (b *fakeBackend) IsAlive(_ context.Context, handle string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aliveCalls++
	return b.handles[handle], nil
}

func (b *fakeBackend) LiveHandles(context.Context) (map[string]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	live := make(map[string]bool, len(b.handles))
	for h := range b.handles {
		live[h] = true
	}
	return live, nil
}

func (b *fakeBackend) Kill(_ context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handles, handle)
	return nil
}

func (b *fakeBackend) AttachCommand(handle string) *exec.Cmd {
	return exec.Command("true", handle)
}

func (b *fakeBackend) live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handles)
}

// fakeHooks rejects the phases listed in reject. onCheck, when set, runs
// before each check without the lock held.
type fakeHooks struct {
	mu      sync.Mutex
	reject  map[hooks.Phase]bool
	calls   []hooks.Phase
	onCheck func(phase hooks.Phase)
}

func (h *fakeHooks) Check(_ context.Context, phase hooks.Phase, _ hooks.Context) error {
	if h.onCheck != nil {
		h.onCheck(phase)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, phase)
	if h.reject[phase] && phase.Blocking() {
		return cmerrors.HookRejected(string(phase), 1, "rejected by test")
	}
	return nil
}

func (h *fakeHooks) called(phase hooks.Phase) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, p := range h.calls {
		if p == phase {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
