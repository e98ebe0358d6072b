package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/internal/version"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

func TestUpdateGitignore(t *testing.T) {
	tests := []struct {
		name     string
		existing *string
		want     string
	}{
		{"missing file", nil, "\n# ClaudeMix\n.claudemix/\n"},
		{"no trailing newline", strPtr("bin/"), "bin/\n\n# ClaudeMix\n.claudemix/\n"},
		{"already present", strPtr("bin/\n.claudemix/\n"), "bin/\n.claudemix/\n"},
		{"similar entry is not enough", strPtr(".claudemix/logs/\n"), ".claudemix/logs/\n\n# ClaudeMix\n.claudemix/\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, ".gitignore")
			if tt.existing != nil {
				if err := os.WriteFile(path, []byte(*tt.existing), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if err := updateGitignore(dir); err != nil {
				t.Fatalf("updateGitignore() error = %v", err)
			}
			// A second run must not duplicate the entry.
			if err := updateGitignore(dir); err != nil {
				t.Fatalf("updateGitignore() second run error = %v", err)
			}
			got, _ := os.ReadFile(path)
			if string(got) != tt.want {
				t.Errorf(".gitignore = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"duplicate", cmerrors.DuplicateSession("session.Start", "api", "web"), "attach to the existing session"},
		{"orphaned", fmt.Errorf("resume: %w", cmerrors.ErrOrphaned), "orphans --adopt"},
		{"busy", cmerrors.SessionBusy("session.Close", "api", "merging"), "--force"},
		{"conflict", cmerrors.MergeConflict("mix/api", "main", []string{"a.go"}), "resolve the conflict"},
		{"worktree", cmerrors.WorktreeConflict("mix/api", "/tmp/x"), "checked out elsewhere"},
		{"joined", errors.Join(cmerrors.MergeConflict("mix/api", "main", nil), errors.New("shutdown")), "resolve the conflict"},
		{"foreign git hook", fmt.Errorf("install: %w", hooks.ErrForeignHook), "hooks install --force"},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hint(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("hint() = %q, want none", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("hint() = %q, want it to mention %q", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	history := []models.MergeRequest{
		{State: models.MergeSucceeded},
		{State: models.MergeSucceeded},
		{State: models.MergeFailed},
		{State: models.MergeWithdrawn},
	}
	if got, want := summarize(history), "2 succeeded, 1 failed, 1 withdrawn"; got != want {
		t.Errorf("summarize() = %q, want %q", got, want)
	}
	if got, want := summarize(nil), "0 succeeded, 0 failed, 0 withdrawn"; got != want {
		t.Errorf("summarize(nil) = %q, want %q", got, want)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"start", "attach", "pause", "resume", "ready", "merge", "withdraw", "close",
		"ls", "queue", "orphans", "cleanup", "serve", "menu", "init", "hooks", "config", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, sub := range []string{"run", "install"} {
		cmd, _, err := rootCmd.Find([]string{"hooks", sub})
		if err != nil || cmd.Name() != sub {
			t.Errorf("command \"hooks %s\" not registered", sub)
		}
	}
}

func TestVersionLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0.2.0", "claudemix v0.2.0"},
		{"v1.0.0", "claudemix v1.0.0"},
	}
	for _, tt := range tests {
		if got := versionLine(tt.in); got != tt.want {
			t.Errorf("versionLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionCommandOutput(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	if got, want := out.String(), "claudemix v"+version.Get()+"\n"; got != want {
		t.Errorf("version output = %q, want %q", got, want)
	}
}

func strPtr(s string) *string { return &s }
