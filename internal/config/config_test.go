package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
)

// isolate points the user config at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Merge.Target != "main" {
		t.Errorf("expected default target 'main', got %q", cfg.Merge.Target)
	}
	if cfg.Merge.Strategy != "local" {
		t.Errorf("expected default strategy 'local', got %q", cfg.Merge.Strategy)
	}
	if cfg.Merge.Timeout != 5*time.Minute {
		t.Errorf("expected merge timeout 5m, got %v", cfg.Merge.Timeout)
	}
	if !cfg.Merge.DeleteBranch || !cfg.Merge.Rebase {
		t.Error("expected delete_branch and rebase to default to true")
	}
	if cfg.Hooks.Timeout != 60*time.Second {
		t.Errorf("expected hook timeout 60s, got %v", cfg.Hooks.Timeout)
	}
	if !cfg.Persistence.Enabled || cfg.Persistence.Socket != "claudemix" {
		t.Errorf("unexpected persistence defaults: %+v", cfg.Persistence)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, `
worktree:
  branch_prefix: cm/
persistence:
  enabled: false
  command: claude --continue
hooks:
  timeout: 30s
  pre_merge: make test
merge:
  target: develop
  strategy: pr
  timeout: 2m
  delete_branch: false
log:
  level: debug
`)

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Worktree.BranchPrefix != "cm/" {
		t.Errorf("branch_prefix = %q", cfg.Worktree.BranchPrefix)
	}
	if cfg.Persistence.Enabled {
		t.Error("expected persistence disabled")
	}
	if got := cfg.Persistence.AgentCommand(); len(got) != 2 || got[1] != "--continue" {
		t.Errorf("AgentCommand() = %v", got)
	}
	if cfg.Hooks.Timeout != 30*time.Second || cfg.Hooks.PreMerge != "make test" {
		t.Errorf("hooks = %+v", cfg.Hooks)
	}
	if cfg.Merge.Target != "develop" || cfg.Merge.Strategy != "pr" || cfg.Merge.Timeout != 2*time.Minute {
		t.Errorf("merge = %+v", cfg.Merge)
	}
	if cfg.Merge.DeleteBranch {
		t.Error("expected delete_branch false")
	}
	// Unset keys keep their defaults.
	if !cfg.Merge.Rebase || cfg.Persistence.Socket != "claudemix" {
		t.Errorf("defaults lost: rebase=%v socket=%q", cfg.Merge.Rebase, cfg.Persistence.Socket)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q", cfg.Log.Level)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown strategy", "merge:\n  strategy: squash\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"zero timeout", "merge:\n  timeout: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tt.content)
			_, err := LoadFromPath(path)
			if !cmerrors.Is(err, cmerrors.KindConfig) {
				t.Errorf("LoadFromPath() error = %v, want config error", err)
			}
		})
	}
}

func TestLoadFromPath_NotFound(t *testing.T) {
	if _, err := LoadFromPath("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)
	userDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "claudemix")
	if err := os.MkdirAll(userDir, 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(userDir, "config.yaml"), "merge:\n  target: user-target\n  strategy: pr\nlog:\n  level: warn\n")

	repo := t.TempDir()
	nested := filepath.Join(repo, "pkg", "deep")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(repo, ProjectFileName), "merge:\n  target: project-target\n")
	t.Setenv("CLAUDEMIX_LOG_LEVEL", "error")

	cfg, err := Load(nested)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Merge.Target != "project-target" {
		t.Errorf("target = %q, want project value", cfg.Merge.Target)
	}
	if cfg.Merge.Strategy != "pr" {
		t.Errorf("strategy = %q, want user value", cfg.Merge.Strategy)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log.level = %q, want environment value", cfg.Log.Level)
	}
}

func TestFindProjectConfig(t *testing.T) {
	repo := t.TempDir()
	sub := filepath.Join(repo, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if got := FindProjectConfig(sub); got != "" && strings.HasPrefix(got, repo) {
		t.Errorf("FindProjectConfig() = %q before the file exists", got)
	}
	writeFile(t, filepath.Join(repo, ProjectFileName), "{}\n")
	if got := FindProjectConfig(sub); got != filepath.Join(repo, ProjectFileName) {
		t.Errorf("FindProjectConfig() = %q", got)
	}
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.Resolve("/repo")

	if cfg.Worktree.BaseDir != "/repo/.claudemix/worktrees" {
		t.Errorf("BaseDir = %q", cfg.Worktree.BaseDir)
	}
	if cfg.State.Path != "/repo/.claudemix/state.db" {
		t.Errorf("State.Path = %q", cfg.State.Path)
	}
	if cfg.Log.Path != "/repo/.claudemix/logs/claudemix.log" {
		t.Errorf("Log.Path = %q", cfg.Log.Path)
	}

	cfg = Default()
	cfg.Worktree.BaseDir = "../trees"
	cfg.Resolve("/work/repo")
	if cfg.Worktree.BaseDir != "/work/trees" {
		t.Errorf("relative BaseDir resolved to %q", cfg.Worktree.BaseDir)
	}
}

func TestHooksConfig_Commands(t *testing.T) {
	h := HooksConfig{PreMerge: "make lint", PostStart: "  ", SessionClose: "echo bye"}
	got := h.Commands()

	if len(got) != 2 {
		t.Fatalf("Commands() = %v, want 2 entries", got)
	}
	if got[hooks.PreMerge] != "make lint" || got[hooks.SessionClose] != "echo bye" {
		t.Errorf("Commands() = %v", got)
	}
}

func TestTemplate_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectFileName)
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("WriteTemplate() error = %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Error("WriteTemplate() should refuse to overwrite")
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# ClaudeMix project configuration.") {
		t.Errorf("template missing header:\n%s", data)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath(template) error = %v", err)
	}
	if cfg.Merge.Timeout != 5*time.Minute || cfg.Hooks.Timeout != time.Minute || cfg.Merge.Target != "main" {
		t.Errorf("template did not round-trip: %+v", cfg)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	isolate(t)
	repo := t.TempDir()
	file := filepath.Join(repo, ProjectFileName)
	writeFile(t, file, "hooks:\n  pre_merge: make test\n")

	changes := make(chan *Config, 4)
	w, err := Watch(repo, file, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	writeFile(t, file, "hooks:\n  pre_merge: make lint\n")

	select {
	case cfg := <-changes:
		if cfg.Hooks.PreMerge != "make lint" {
			t.Errorf("reloaded pre_merge = %q", cfg.Hooks.PreMerge)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config change")
	}
}

func TestConfig_Value(t *testing.T) {
	cfg := Default()
	tests := []struct {
		key  string
		want string
	}{
		{"merge.target", "main"},
		{"MERGE.REBASE", "true"},
		{"merge.timeout", "5m0s"},
		{"persistence.command", "claude"},
	}
	for _, tt := range tests {
		got, err := cfg.Value(tt.key)
		if err != nil {
			t.Errorf("Value(%q) error = %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Value(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
	if _, err := cfg.Value("anthropic.api_key"); err == nil {
		t.Error("Value() should reject unknown keys")
	}
}

func TestConfig_SetValue(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
		check   func(*Config) bool
	}{
		{"string", "merge.target", "develop", false, func(c *Config) bool { return c.Merge.Target == "develop" }},
		{"bool", "merge.delete_branch", "false", false, func(c *Config) bool { return !c.Merge.DeleteBranch }},
		{"duration", "hooks.timeout", "30s", false, func(c *Config) bool { return c.Hooks.Timeout == 30*time.Second }},
		{"bad bool", "merge.rebase", "maybe", true, func(c *Config) bool { return c.Merge.Rebase }},
		{"bad duration", "merge.timeout", "soon", true, func(c *Config) bool { return c.Merge.Timeout == 5*time.Minute }},
		{"fails validation", "merge.strategy", "squash", true, func(c *Config) bool { return c.Merge.Strategy == "local" }},
		{"unknown", "tui.refresh_rate", "1s", true, func(c *Config) bool { return true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.SetValue(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.check(cfg) {
				t.Errorf("SetValue(%q, %q) left %+v", tt.key, tt.value, cfg)
			}
		})
	}
}

func TestConfig_KeysCoverDefaults(t *testing.T) {
	cfg := Default()
	keys := cfg.Keys()
	if len(keys) != len(settings(cfg)) {
		t.Fatalf("Keys() = %d keys, settings = %d", len(keys), len(settings(cfg)))
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("Keys() not sorted: %v", keys)
	}
}
