package hooks

import (
	"context"
	"errors"
	osexec "os/exec"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/exec"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := osexec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newDispatcher(commands map[Phase]string, timeout time.Duration) *Dispatcher {
	return NewDispatcher(exec.NewRunner(), commands, timeout)
}

func TestRun_NoCommandSucceeds(t *testing.T) {
	d := newDispatcher(nil, 0)
	res := d.Run(context.Background(), PreMerge, Context{Session: "a"})
	if !res.Skipped || !res.OK() {
		t.Errorf("Run() = %+v, want skipped success", res)
	}
	if err := d.Check(context.Background(), PreMerge, Context{}); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestRun_Environment(t *testing.T) {
	requireShell(t)
	d := newDispatcher(map[Phase]string{
		PostStart: `echo "$CLAUDEMIX_PHASE|$CLAUDEMIX_SESSION|$CLAUDEMIX_BRANCH|$CLAUDEMIX_TARGET"`,
	}, time.Minute)

	res := d.Run(context.Background(), PostStart, Context{
		Session: "feature-a", Branch: "feature/a", Target: "main", Repo: t.TempDir(),
	})
	if !res.OK() {
		t.Fatalf("Run() = %+v, want success", res)
	}
	if res.Output != "post_start|feature-a|feature/a|main" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestRun_WorkDirPrefersWorktree(t *testing.T) {
	requireShell(t)
	worktree := t.TempDir()
	d := newDispatcher(map[Phase]string{PreStart: "pwd -P"}, time.Minute)

	res := d.Run(context.Background(), PreStart, Context{Worktree: worktree, Repo: t.TempDir()})
	if !res.OK() {
		t.Fatalf("Run() = %+v", res)
	}
	if !strings.HasSuffix(res.Output, strings.TrimPrefix(worktree, "/private")) {
		t.Errorf("hook ran in %q, want %q", res.Output, worktree)
	}
}

func TestCheck_BlockingFailureRejects(t *testing.T) {
	requireShell(t)
	d := newDispatcher(map[Phase]string{PreMerge: "echo lint failed; exit 2"}, time.Minute)

	err := d.Check(context.Background(), PreMerge, Context{Repo: t.TempDir()})
	if !errors.Is(err, cmerrors.ErrHookRejected) {
		t.Fatalf("Check() error = %v, want hook rejected", err)
	}
	if !strings.Contains(err.Error(), "lint failed") || !strings.Contains(err.Error(), "status 2") {
		t.Errorf("error %q should carry output and exit code", err)
	}
}

func TestCheck_NonBlockingFailureIsLogged(t *testing.T) {
	requireShell(t)
	d := newDispatcher(map[Phase]string{PostMerge: "exit 1"}, time.Minute)

	if err := d.Check(context.Background(), PostMerge, Context{Repo: t.TempDir()}); err != nil {
		t.Errorf("Check(post_merge) error = %v, want nil", err)
	}
}

func TestRun_TimeoutFails(t *testing.T) {
	requireShell(t)
	d := newDispatcher(map[Phase]string{PreStart: "sleep 30"}, 200*time.Millisecond)

	start := time.Now()
	res := d.Run(context.Background(), PreStart, Context{Repo: t.TempDir()})
	if !res.TimedOut || res.OK() {
		t.Fatalf("Run() = %+v, want timed out failure", res)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("timed out hook took %v", time.Since(start))
	}

	err := d.Check(context.Background(), PreStart, Context{Repo: t.TempDir()})
	if !errors.Is(err, cmerrors.ErrHookRejected) {
		t.Errorf("Check() error = %v, want hook rejected on timeout", err)
	}
}

func TestSetCommands_Reload(t *testing.T) {
	d := newDispatcher(map[Phase]string{PreMerge: "make lint"}, 0)
	if d.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want default", d.Timeout())
	}

	d.SetCommands(map[Phase]string{PostMerge: "make notify", PreStart: "  "}, time.Second)
	if d.Command(PreMerge) != "" {
		t.Error("old pre_merge command survived reload")
	}
	if got := d.Configured(); len(got) != 1 || got[0] != PostMerge {
		t.Errorf("Configured() = %v, want [post_merge]", got)
	}
}

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in   string
		want Phase
		ok   bool
	}{
		{"pre_merge", PreMerge, true},
		{"pre-merge", PreMerge, true},
		{"SESSION_CLOSE", SessionClose, true},
		{"merge", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePhase(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePhase(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPhase_Blocking(t *testing.T) {
	for _, p := range Phases() {
		want := p == PreStart || p == PreMerge
		if p.Blocking() != want {
			t.Errorf("%s.Blocking() = %v, want %v", p, p.Blocking(), want)
		}
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "ok", 10, "ok"},
		{"ascii", "abcdef", 3, "...def"},
		// "é" is two bytes; a cut after its first byte skips the rune.
		{"mid rune", "aéb", 2, "...b"},
		{"on rune start", "aéb", 3, "...éb"},
		{"all continuation", "日本", 2, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tail(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("tail(%q, %d) = %q is not valid UTF-8", tt.in, tt.n, got)
			}
		})
	}
}
