package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/orchestrator"
	"github.com/Draidel/ClaudeMix/internal/tui"
)

var (
	orphansAdopt   string
	orphansDiscard string
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List or resolve sessions whose tmux session is gone",
	Long: `A session becomes orphaned when its tmux session disappears while
ClaudeMix is not running, for example after a reboot. Its worktree and branch
are kept until you decide:

  --adopt <name>    take the session back (a new tmux session is started)
  --discard <name>  close it and remove its worktree; the branch is kept`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if orphansAdopt != "" && orphansDiscard != "" {
			return fmt.Errorf("--adopt and --discard are mutually exclusive")
		}
		ctx := cmd.Context()
		return withRepo(ctx, func(o *orchestrator.Orchestrator) error {
			switch {
			case orphansAdopt != "":
				s, err := o.Adopt(ctx, orphansAdopt)
				if err != nil {
					return err
				}
				printOK("Adopted %s (%s)", s.Name, s.State)
				return nil
			case orphansDiscard != "":
				if err := o.Discard(ctx, orphansDiscard); err != nil {
					return err
				}
				printOK("Discarded %s", orphansDiscard)
				return nil
			}

			orphans := o.Orphans()
			if len(orphans) == 0 {
				fmt.Println("No orphaned sessions.")
				return nil
			}
			fmt.Print(tui.RenderSessions(orphans, nil, time.Now()))
			return nil
		})
	},
}

func init() {
	orphansCmd.Flags().StringVar(&orphansAdopt, "adopt", "", "Adopt the named orphan")
	orphansCmd.Flags().StringVar(&orphansDiscard, "discard", "", "Discard the named orphan")
}
