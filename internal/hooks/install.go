package hooks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/logging"
)

// shimMarker identifies git hooks written by Install.
const shimMarker = "# managed by claudemix"

// ErrForeignHook is returned when a git hook Install would replace was not
// written by claudemix.
var ErrForeignHook = errors.New("git hook not managed by claudemix")

// GitShim binds a git hook to the phase it runs.
type GitShim struct {
	GitHook string
	Phase   Phase
}

// GitShims are the git hooks Install manages. A push from a session
// worktree runs the session's pre_merge checks first.
var GitShims = []GitShim{
	{GitHook: "pre-push", Phase: PreMerge},
}

// Shim returns the script for one git hook. It does nothing outside a
// session, where CLAUDEMIX_SESSION is unset. Git runs hooks from the
// worktree, so the shim names the main repository explicitly.
func Shim(exe, repo string, phase Phase) string {
	return fmt.Sprintf(`#!/bin/sh
%s
[ -n "$CLAUDEMIX_SESSION" ] || exit 0
exec %s -C %s hooks run --check %s "$CLAUDEMIX_SESSION"
`, shimMarker, shellQuote(exe), shellQuote(repo), phase)
}

// Install writes the git hook shims for repo into dir and returns their
// paths. Existing hooks without the marker are only replaced when force is
// set; nothing is written if any of them would be refused.
func Install(dir, exe, repo string, force bool) ([]string, error) {
	const op cmerrors.Op = "hooks.Install"

	if !force {
		for _, s := range GitShims {
			path := filepath.Join(dir, s.GitHook)
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, cmerrors.E(op, err)
			}
			if !strings.Contains(string(data), shimMarker) {
				return nil, cmerrors.E(op, fmt.Errorf("%s: %w (use --force to replace it)", path, ErrForeignHook))
			}
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cmerrors.E(op, err)
	}
	var written []string
	for _, s := range GitShims {
		path := filepath.Join(dir, s.GitHook)
		if err := os.WriteFile(path, []byte(Shim(exe, repo, s.Phase)), 0o755); err != nil {
			return written, cmerrors.E(op, err)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(path, 0o755); err != nil {
			return written, cmerrors.E(op, err)
		}
		written = append(written, path)
	}
	logging.Component("hooks").Info("git hooks installed", "dir", dir, "hooks", len(written))
	return written, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
