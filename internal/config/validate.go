package config

import (
	"fmt"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
)

// Validate rejects values the orchestrator cannot act on.
func (c *Config) Validate() error {
	const op cmerrors.Op = "config.Validate"

	switch c.Merge.Strategy {
	case "local", "pr":
	default:
		return cmerrors.E(op, cmerrors.KindConfig, fmt.Sprintf("merge.strategy must be local or pr, got %q", c.Merge.Strategy))
	}
	if c.Merge.Target == "" {
		return cmerrors.E(op, cmerrors.KindConfig, "merge.target must not be empty")
	}
	if c.Merge.Timeout <= 0 {
		return cmerrors.E(op, cmerrors.KindConfig, "merge.timeout must be positive")
	}
	if c.Hooks.Timeout <= 0 {
		return cmerrors.E(op, cmerrors.KindConfig, "hooks.timeout must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return cmerrors.E(op, cmerrors.KindConfig, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if c.Persistence.Enabled && c.Persistence.Socket == "" {
		return cmerrors.E(op, cmerrors.KindConfig, "persistence.socket must not be empty")
	}
	return nil
}
