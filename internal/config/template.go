package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// fileConfig mirrors Config as it is written to disk, durations as strings.
type fileConfig struct {
	Worktree struct {
		BaseDir      string `yaml:"base_dir"`
		BranchPrefix string `yaml:"branch_prefix"`
	} `yaml:"worktree"`
	Persistence struct {
		Enabled bool   `yaml:"enabled"`
		Socket  string `yaml:"socket"`
		Command string `yaml:"command"`
	} `yaml:"persistence"`
	Hooks struct {
		Timeout      string `yaml:"timeout"`
		PreStart     string `yaml:"pre_start"`
		PostStart    string `yaml:"post_start"`
		PreMerge     string `yaml:"pre_merge"`
		PostMerge    string `yaml:"post_merge"`
		SessionClose string `yaml:"session_close"`
	} `yaml:"hooks"`
	Merge struct {
		Target       string `yaml:"target"`
		Strategy     string `yaml:"strategy"`
		Timeout      string `yaml:"timeout"`
		DeleteBranch bool   `yaml:"delete_branch"`
		Rebase       bool   `yaml:"rebase"`
	} `yaml:"merge"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

const templateHeader = `# ClaudeMix project configuration.
# Values here override ~/.config/claudemix/config.yaml; CLAUDEMIX_* environment
# variables override both (e.g. CLAUDEMIX_MERGE_TARGET=develop).
#
# Hooks are shell commands run with CLAUDEMIX_PHASE, CLAUDEMIX_SESSION,
# CLAUDEMIX_BRANCH, CLAUDEMIX_TARGET, CLAUDEMIX_WORKTREE and CLAUDEMIX_REPO set.
# A non-zero exit from pre_start or pre_merge blocks the transition.

`

// Template renders cfg as a commented project config file.
func Template(cfg *Config) ([]byte, error) {
	var f fileConfig
	f.Worktree.BaseDir = cfg.Worktree.BaseDir
	f.Worktree.BranchPrefix = cfg.Worktree.BranchPrefix
	f.Persistence.Enabled = cfg.Persistence.Enabled
	f.Persistence.Socket = cfg.Persistence.Socket
	f.Persistence.Command = cfg.Persistence.Command
	f.Hooks.Timeout = cfg.Hooks.Timeout.String()
	f.Hooks.PreStart = cfg.Hooks.PreStart
	f.Hooks.PostStart = cfg.Hooks.PostStart
	f.Hooks.PreMerge = cfg.Hooks.PreMerge
	f.Hooks.PostMerge = cfg.Hooks.PostMerge
	f.Hooks.SessionClose = cfg.Hooks.SessionClose
	f.Merge.Target = cfg.Merge.Target
	f.Merge.Strategy = cfg.Merge.Strategy
	f.Merge.Timeout = cfg.Merge.Timeout.String()
	f.Merge.DeleteBranch = cfg.Merge.DeleteBranch
	f.Merge.Rebase = cfg.Merge.Rebase
	f.Log.Level = cfg.Log.Level

	body, err := yaml.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("marshal config template: %w", err)
	}
	return append([]byte(templateHeader), body...), nil
}

// WriteTemplate writes the default project config to path. An existing
// file is left alone unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := Template(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
