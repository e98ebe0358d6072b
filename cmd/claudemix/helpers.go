package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/internal/orchestrator"
	"github.com/Draidel/ClaudeMix/internal/session"
)

// openRepo opens the orchestrator for the repository around repoDir.
func openRepo(ctx context.Context, opts orchestrator.Options) (*orchestrator.Orchestrator, error) {
	return orchestrator.Open(ctx, repoDir, opts)
}

// withRepo opens the orchestrator, runs fn and shuts it down again.
func withRepo(ctx context.Context, fn func(o *orchestrator.Orchestrator) error) error {
	o, err := openRepo(ctx, orchestrator.Options{})
	if err != nil {
		return err
	}
	err = fn(o)
	return errors.Join(err, o.Shutdown())
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

func printOK(format string, args ...any) {
	printStatus("✓", fmt.Sprintf(format, args...), color.FgGreen)
}

func printWarn(format string, args ...any) {
	printStatus("⚠", fmt.Sprintf(format, args...), color.FgYellow)
}

func printFail(format string, args ...any) {
	printStatus("✗", fmt.Sprintf(format, args...), color.FgRed)
}

// printError reports err on stderr with a hint when one applies.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
	if h := hint(err); h != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.New(color.Faint).Sprint("hint:"), h)
	}
}

// hint returns a follow-up suggestion for well-known failures.
func hint(err error) string {
	switch {
	case errors.Is(err, cmerrors.ErrDuplicateSession):
		return "attach to the existing session with 'claudemix <name>' or pick another name"
	case errors.Is(err, cmerrors.ErrOrphaned):
		return "run 'claudemix orphans --adopt <name>' or 'claudemix orphans --discard <name>'"
	case errors.Is(err, cmerrors.ErrSessionBusy):
		return "wait for the merge to finish or use --force"
	case errors.Is(err, cmerrors.ErrMergeConflict):
		return "resolve the conflict in the session worktree and run 'claudemix merge <name>' again"
	case errors.Is(err, cmerrors.ErrWorktreeConflict):
		return "the branch is checked out elsewhere; remove that worktree or use another branch"
	case errors.Is(err, hooks.ErrForeignHook):
		return "merge it into your own hook by hand, or replace it with 'claudemix hooks install --force'"
	}
	return ""
}

// attach connects the terminal to the session. It runs after the
// orchestrator has shut down, so the repository is free while the user works.
func attach(att *session.Attachment, agent []string) error {
	var cmd *exec.Cmd
	if att.Command != nil {
		cmd = att.Command
	} else {
		if len(agent) == 0 {
			return fmt.Errorf("no agent command configured (persistence.command)")
		}
		printWarn("running %s in the foreground in %s", strings.Join(agent, " "), att.Dir)
		cmd = exec.Command(agent[0], agent[1:]...)
		cmd.Dir = att.Dir
		cmd.Env = append(os.Environ(), "CLAUDEMIX_SESSION="+att.Session.Name)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// resumeAndAttach shuts o down and attaches to the result of a resume.
// A missing persistence handle is reported and falls back to the foreground.
func resumeAndAttach(o *orchestrator.Orchestrator, att *session.Attachment, err error) error {
	agent := o.Config().Persistence.AgentCommand()
	if err != nil && !(att != nil && errors.Is(err, cmerrors.ErrPersistenceUnavailable)) {
		return errors.Join(err, o.Shutdown())
	}
	if err != nil {
		printWarn("%v", err)
	}
	if err := o.Shutdown(); err != nil {
		return err
	}
	return attach(att, agent)
}
