// Package config handles configuration loading and management for ClaudeMix.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Draidel/ClaudeMix/internal/hooks"
)

// ProjectFileName is the project-level config file looked up from the
// working directory upwards.
const ProjectFileName = ".claudemix.yaml"

// EnvPrefix prefixes environment overrides, e.g. CLAUDEMIX_MERGE_TARGET.
const EnvPrefix = "CLAUDEMIX"

// Config holds all configuration for ClaudeMix.
type Config struct {
	Worktree    WorktreeConfig    `mapstructure:"worktree"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Hooks       HooksConfig       `mapstructure:"hooks"`
	Merge       MergeConfig       `mapstructure:"merge"`
	State       StateConfig       `mapstructure:"state"`
	Log         LogConfig         `mapstructure:"log"`
}

// WorktreeConfig holds worktree placement settings.
type WorktreeConfig struct {
	// BaseDir holds one directory per session; defaults to <repo>/.claudemix/worktrees.
	BaseDir string `mapstructure:"base_dir"`
	// BranchPrefix is prepended to session names to derive branch names.
	BranchPrefix string `mapstructure:"branch_prefix"`
}

// PersistenceConfig holds tmux settings.
type PersistenceConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Socket is the tmux -L socket name, isolating ClaudeMix sessions.
	Socket string `mapstructure:"socket"`
	// Command is the agent launched inside each tmux session.
	Command string `mapstructure:"command"`
}

// HooksConfig holds the lifecycle hook commands.
type HooksConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PreStart     string        `mapstructure:"pre_start"`
	PostStart    string        `mapstructure:"post_start"`
	PreMerge     string        `mapstructure:"pre_merge"`
	PostMerge    string        `mapstructure:"post_merge"`
	SessionClose string        `mapstructure:"session_close"`
}

// MergeConfig holds merge queue settings.
type MergeConfig struct {
	Target       string        `mapstructure:"target"`
	Strategy     string        `mapstructure:"strategy"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DeleteBranch bool          `mapstructure:"delete_branch"`
	Rebase       bool          `mapstructure:"rebase"`
}

// StateConfig holds the registry database location.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// Commands returns the hook table keyed by phase. Empty commands are omitted.
func (h HooksConfig) Commands() map[hooks.Phase]string {
	out := make(map[hooks.Phase]string)
	for phase, cmd := range map[hooks.Phase]string{
		hooks.PreStart:     h.PreStart,
		hooks.PostStart:    h.PostStart,
		hooks.PreMerge:     h.PreMerge,
		hooks.PostMerge:    h.PostMerge,
		hooks.SessionClose: h.SessionClose,
	} {
		if strings.TrimSpace(cmd) != "" {
			out[phase] = cmd
		}
	}
	return out
}

// AgentCommand splits the persistence command into argv.
func (p PersistenceConfig) AgentCommand() []string {
	return strings.Fields(p.Command)
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// The project file is searched from dir upwards.
// Precedence (highest to lowest):
// 1. Environment variables (CLAUDEMIX_*)
// 2. Project config (.claudemix.yaml in dir or a parent)
// 3. User config (~/.config/claudemix/config.yaml)
// 4. Built-in defaults
func Load(dir string) (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := FindProjectConfig(dir); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve fills the repository-relative defaults for paths left empty.
func (c *Config) Resolve(repoRoot string) {
	dataDir := filepath.Join(repoRoot, ".claudemix")
	if c.Worktree.BaseDir == "" {
		c.Worktree.BaseDir = filepath.Join(dataDir, "worktrees")
	} else if !filepath.IsAbs(c.Worktree.BaseDir) {
		c.Worktree.BaseDir = filepath.Join(repoRoot, c.Worktree.BaseDir)
	}
	if c.State.Path == "" {
		c.State.Path = filepath.Join(dataDir, "state.db")
	}
	if c.Log.Path == "" {
		c.Log.Path = filepath.Join(dataDir, "logs", "claudemix.log")
	}
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}
	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for key, value := range settings(d) {
		v.SetDefault(key, value)
	}
}

// getUserConfigDir returns the XDG config directory for ClaudeMix.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "claudemix")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "claudemix")
	}
	return filepath.Join(home, ".config", "claudemix")
}

// FindProjectConfig searches for .claudemix.yaml in dir and its parents.
func FindProjectConfig(dir string) string {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}

	for {
		configPath := filepath.Join(dir, ProjectFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Persistence: PersistenceConfig{
			Enabled: true,
			Socket:  "claudemix",
			Command: "claude",
		},
		Hooks: HooksConfig{
			Timeout: hooks.DefaultTimeout,
		},
		Merge: MergeConfig{
			Target:       "main",
			Strategy:     "local",
			Timeout:      5 * time.Minute,
			DeleteBranch: true,
			Rebase:       true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
