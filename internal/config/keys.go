package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// fields maps dot-notation keys to the fields they address.
func (c *Config) fields() map[string]any {
	return map[string]any{
		"worktree.base_dir":      &c.Worktree.BaseDir,
		"worktree.branch_prefix": &c.Worktree.BranchPrefix,
		"persistence.enabled":    &c.Persistence.Enabled,
		"persistence.socket":     &c.Persistence.Socket,
		"persistence.command":    &c.Persistence.Command,
		"hooks.timeout":          &c.Hooks.Timeout,
		"hooks.pre_start":        &c.Hooks.PreStart,
		"hooks.post_start":       &c.Hooks.PostStart,
		"hooks.pre_merge":        &c.Hooks.PreMerge,
		"hooks.post_merge":       &c.Hooks.PostMerge,
		"hooks.session_close":    &c.Hooks.SessionClose,
		"merge.target":           &c.Merge.Target,
		"merge.strategy":         &c.Merge.Strategy,
		"merge.timeout":          &c.Merge.Timeout,
		"merge.delete_branch":    &c.Merge.DeleteBranch,
		"merge.rebase":           &c.Merge.Rebase,
		"state.path":             &c.State.Path,
		"log.level":              &c.Log.Level,
		"log.path":               &c.Log.Path,
	}
}

// settings flattens cfg into viper keys.
func settings(cfg *Config) map[string]any {
	out := make(map[string]any)
	for key, field := range cfg.fields() {
		switch p := field.(type) {
		case *string:
			out[key] = *p
		case *bool:
			out[key] = *p
		case *time.Duration:
			out[key] = p.String()
		}
	}
	return out
}

// Keys returns every configuration key, sorted.
func (c *Config) Keys() []string {
	fields := c.fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the value of a dot-notation key as a string.
func (c *Config) Value(key string) (string, error) {
	switch p := c.fields()[strings.ToLower(key)].(type) {
	case *string:
		return *p, nil
	case *bool:
		return strconv.FormatBool(*p), nil
	case *time.Duration:
		return p.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// SetValue parses value and assigns it to a dot-notation key. The result is
// validated; an invalid value leaves c unchanged.
func (c *Config) SetValue(key, value string) error {
	next := *c
	switch p := next.fields()[strings.ToLower(key)].(type) {
	case *string:
		*p = value
	case *bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		*p = b
	case *time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		*p = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
