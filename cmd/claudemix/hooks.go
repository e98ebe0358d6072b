package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/internal/orchestrator"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "List or test lifecycle hooks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			d := o.Hooks()
			fmt.Printf("timeout: %s\n", d.Timeout())
			for _, phase := range hooks.Phases() {
				command := d.Command(phase)
				if command == "" {
					command = color.New(color.Faint).Sprint("(none)")
				}
				kind := "notify"
				if phase.Blocking() {
					kind = "blocking"
				}
				fmt.Printf("  %-14s %-9s %s\n", phase, kind, command)
			}
			return nil
		})
	},
}

var (
	hooksRunCheck     bool
	hooksInstallForce bool
)

var hooksRunCmd = &cobra.Command{
	Use:   "run <phase> <name>",
	Short: "Run a hook in a session's context without changing its state",
	Long: `Run the hook configured for phase with the environment it would get
for the named session. Phases: pre_start, post_start, pre_merge, post_merge,
session_close. With --check a failing hook makes the command fail, which
is how the installed git hooks use it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, ok := hooks.ParsePhase(args[0])
		if !ok {
			return fmt.Errorf("unknown hook phase %q", args[0])
		}
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			res, err := o.RunHook(cmd.Context(), phase, args[1])
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Printf("No %s hook configured.\n", phase)
				return nil
			}
			if out := strings.TrimRight(res.Output, "\n"); out != "" {
				fmt.Println(out)
			}
			switch {
			case res.TimedOut:
				printFail("%s timed out after %s", phase, res.Elapsed.Round(time.Millisecond))
			case res.OK():
				printOK("%s passed in %s", phase, res.Elapsed.Round(time.Millisecond))
			default:
				printFail("%s exited %d after %s", phase, res.ExitCode, res.Elapsed.Round(time.Millisecond))
			}
			if hooksRunCheck && !res.OK() {
				return fmt.Errorf("%s hook failed for %s", phase, args[1])
			}
			return nil
		})
	},
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Set up git hooks that run claudemix hooks",
	Long: `Write git hooks into the repository's hooks directory. A push from a
session worktree then runs the session's pre_merge hook and is refused when
it fails. Outside a session the git hooks do nothing.

Existing git hooks not written by claudemix are left alone unless --force
is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locating the claudemix binary: %w", err)
		}
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			paths, err := o.InstallGitHooks(cmd.Context(), exe, hooksInstallForce)
			if err != nil {
				return err
			}
			for _, p := range paths {
				printOK("Installed %s", p)
			}
			return nil
		})
	},
}

func init() {
	hooksRunCmd.Flags().BoolVar(&hooksRunCheck, "check", false, "Exit non-zero when the hook fails")
	hooksInstallCmd.Flags().BoolVarP(&hooksInstallForce, "force", "f", false, "Replace git hooks not written by claudemix")

	hooksCmd.AddCommand(hooksRunCmd, hooksInstallCmd)
}
