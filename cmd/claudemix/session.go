package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/orchestrator"
)

var (
	startFrom  string
	startQuiet bool
	closeForce bool
	readyInto  string
)

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a new session without attaching",
	Long: `Create a session: a branch (prefix + name unless --branch is given),
a worktree for it and, when tmux is available, a detached tmux session
running the agent.

The pre_start hook can veto the start; post_start runs afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			s, err := o.Start(cmd.Context(), args[0], orchestrator.StartOptions{
				Branch:    startBranch,
				From:      startFrom,
				NoPersist: noPersist,
			})
			if err != nil {
				return err
			}
			printOK("Started %s on branch %s", s.Name, s.Branch)
			if !startQuiet {
				fmt.Printf("  worktree: %s\n", s.WorktreePath)
				if s.Persistent() {
					fmt.Printf("  attach:   claudemix attach %s\n", s.Name)
				} else {
					printWarn("no persistence backend (%s); the session runs when you attach", o.Backend().Name())
				}
			}
			return nil
		})
	},
}

var attachCmd = &cobra.Command{
	Use:     "attach <name>",
	Aliases: []string{"a"},
	Short:   "Attach the terminal to a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openRepo(cmd.Context(), orchestrator.Options{})
		if err != nil {
			return err
		}
		att, err := o.Resume(cmd.Context(), args[0])
		return resumeAndAttach(o, att, err)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <name>",
	Short: "Mark a paused session active again without attaching",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			att, err := o.Resume(cmd.Context(), args[0])
			if att == nil {
				return err
			}
			if err != nil {
				printWarn("%v", err)
				printOK("Resumed %s (foreground: attach to run the agent)", args[0])
				return nil
			}
			printOK("Resumed %s", args[0])
			return nil
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <name>",
	Short: "Detach a session, keeping it running in tmux",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			if _, err := o.Pause(cmd.Context(), args[0]); err != nil {
				return err
			}
			printOK("Paused %s", args[0])
			return nil
		})
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready <name>",
	Short: "Run the pre-merge hook and mark a session ready to merge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			if _, err := o.Ready(cmd.Context(), args[0], readyInto); err != nil {
				return err
			}
			printOK("%s is ready to merge", args[0])
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:     "close <name>",
	Aliases: []string{"rm"},
	Short:   "Close a session and remove its worktree",
	Long: `Close a session: its queued merge request is withdrawn, the
session_close hook runs, the tmux session is killed and the worktree is
removed. The branch is kept.

A session being merged is refused unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			if err := o.Close(cmd.Context(), args[0], closeForce); err != nil {
				return err
			}
			printOK("Closed %s", args[0])
			return nil
		})
	},
}

// runStartOrAttach backs `claudemix <name>`.
func runStartOrAttach(ctx context.Context, name string) error {
	o, err := openRepo(ctx, orchestrator.Options{})
	if err != nil {
		return err
	}
	att, err := o.StartOrAttach(ctx, name, orchestrator.StartOptions{Branch: startBranch, NoPersist: noPersist})
	return resumeAndAttach(o, att, err)
}

func init() {
	startCmd.Flags().StringVarP(&startBranch, "branch", "b", "", "Branch to work on (default: prefix + name)")
	startCmd.Flags().StringVar(&startFrom, "from", "", "Start a new branch from this ref (default: merge target)")
	startCmd.Flags().BoolVar(&noPersist, "no-persist", false, "Run in the foreground instead of tmux")
	startCmd.Flags().BoolVarP(&startQuiet, "quiet", "q", false, "Only print the result line")

	readyCmd.Flags().StringVarP(&readyInto, "target", "t", "", "Branch the pre-merge hook checks against (default: merge.target)")

	closeCmd.Flags().BoolVarP(&closeForce, "force", "f", false, "Close even while a merge is running")
}
