// Package forge opens pull requests on the hosting service of a repository
// through its command line client.
package forge

import (
	"context"
	"fmt"
	"strings"

	cmdexec "github.com/Draidel/ClaudeMix/internal/exec"
)

// CreateOpts are the parameters for opening a pull (or merge) request.
type CreateOpts struct {
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
	Draft      bool
}

// Forge opens pull requests for a repository.
type Forge interface {
	// Kind returns "github" or "gitlab".
	Kind() string
	// CreatePR opens a request and returns its URL when the client prints one.
	CreatePR(ctx context.Context, dir string, opts CreateOpts) (string, error)
}

// Remotes reads the URL of a git remote.
type Remotes interface {
	RemoteURL(ctx context.Context, remote string) (string, error)
}

// Detect returns the forge serving the origin remote, or nil when the
// remote is missing or unrecognised.
func Detect(ctx context.Context, remotes Remotes, runner cmdexec.CommandRunner, dir string) Forge {
	url, err := remotes.RemoteURL(ctx, "origin")
	if err != nil {
		return nil
	}
	remote := strings.ToLower(strings.TrimSpace(url))

	switch {
	case strings.Contains(remote, "github.com"):
		return &gitHub{runner: runner}
	case strings.Contains(remote, "gitlab"):
		return &gitLab{runner: runner}
	default:
		// Self-hosted GitLab: glab knows the repo when it is configured for it.
		if _, err := runner.Run(ctx, dir, "glab", "repo", "view"); err == nil {
			return &gitLab{runner: runner}
		}
		return nil
	}
}

type gitHub struct {
	runner cmdexec.CommandRunner
}

func (g *gitHub) Kind() string { return "github" }

func (g *gitHub) CreatePR(ctx context.Context, dir string, opts CreateOpts) (string, error) {
	args := []string{
		"pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--base", opts.BaseBranch,
		"--head", opts.HeadBranch,
	}
	if opts.Draft {
		args = append(args, "--draft")
	}
	out, err := g.runner.Run(ctx, dir, "gh", args...)
	if err != nil {
		return "", fmt.Errorf("gh pr create: %w: %s", err, trimOutput(out))
	}
	return lastURL(out), nil
}

type gitLab struct {
	runner cmdexec.CommandRunner
}

func (g *gitLab) Kind() string { return "gitlab" }

func (g *gitLab) CreatePR(ctx context.Context, dir string, opts CreateOpts) (string, error) {
	args := []string{
		"mr", "create",
		"--title", opts.Title,
		"--description", opts.Body,
		"--target-branch", opts.BaseBranch,
		"--source-branch", opts.HeadBranch,
		"--yes",
	}
	if opts.Draft {
		args = append(args, "--draft")
	}
	out, err := g.runner.Run(ctx, dir, "glab", args...)
	if err != nil {
		return "", fmt.Errorf("glab mr create: %w: %s", err, trimOutput(out))
	}
	return lastURL(out), nil
}

// lastURL returns the last line of out that looks like a web URL.
func lastURL(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "https://") || strings.HasPrefix(line, "http://") {
			return line
		}
	}
	return ""
}

func trimOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
