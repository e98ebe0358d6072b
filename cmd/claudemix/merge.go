package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/merge"
	"github.com/Draidel/ClaudeMix/internal/orchestrator"
	"github.com/Draidel/ClaudeMix/internal/tui"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

var (
	mergeTarget  string
	mergeNoWait  bool
	queueHistory int
)

var mergeCmd = &cobra.Command{
	Use:   "merge <name>",
	Short: "Queue a session for merging into its target branch",
	Long: `Queue a session for merging. An active or paused session runs the
pre_merge hook first and becomes ready to merge; a rejected hook stops here.

Requests for the same target branch merge one at a time in queue order.
By default the command runs the queue and waits for the outcome. With
--no-wait the request is only queued; it runs the next time a claudemix
process runs the queue (another merge, or serve).

On success the session is closed. On a conflict the session stays ready to
merge so you can resolve it and merge again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge(cmd.Context(), args[0], mergeTarget, mergeNoWait)
	},
}

// runMerge queues name for target and, unless noWait, runs the queue until
// the request finishes.
func runMerge(ctx context.Context, name, target string, noWait bool) error {
	o, err := openRepo(ctx, orchestrator.Options{RunQueue: !noWait})
	if err != nil {
		return err
	}

	ticket, err := o.Merge(ctx, name, target)
	if err != nil {
		return errors.Join(err, o.Shutdown())
	}
	if target == "" {
		target = o.Config().Merge.Target
	}
	if noWait {
		printOK("Queued %s for %s", name, target)
		return o.Shutdown()
	}

	fmt.Printf("Merging %s into %s...\n", name, target)
	var outcome merge.Outcome
	select {
	case outcome = <-ticket.Done():
	case <-ctx.Done():
		printWarn("interrupted; a running merge finishes, a queued one stays queued")
		return errors.Join(ctx.Err(), o.Shutdown())
	}
	if outcome.Err != nil {
		printFail("Merge of %s failed", name)
		return errors.Join(outcome.Err, o.Shutdown())
	}
	printOK("Merged %s into %s", name, target)
	return o.Shutdown()
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <name>",
	Short: "Remove a session's queued merge request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			if err := o.Withdraw(args[0]); err != nil {
				return err
			}
			printOK("Withdrew the merge request of %s", args[0])
			return nil
		})
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show pending merge requests per target branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			now := time.Now()
			pending := o.Pending()
			fmt.Print(tui.RenderQueue(pending, now))
			if len(pending) > 0 && !o.QueueRunning() {
				fmt.Println(color.New(color.Faint).Sprint("queued requests run on the next 'claudemix merge' or 'claudemix serve'"))
			}
			if _, interrupted := o.Restored(); interrupted > 0 {
				printWarn("%d merge(s) were interrupted by a crash and marked failed", interrupted)
			}
			if queueHistory > 0 {
				history, err := o.MergeHistory(queueHistory)
				if err != nil {
					return err
				}
				fmt.Println()
				fmt.Print(tui.RenderHistory(history, now))
				fmt.Println(summarize(history))
			}
			return nil
		})
	},
}

// summarize counts finished requests by outcome.
func summarize(history []models.MergeRequest) string {
	counts := make(map[models.MergeState]int)
	for _, r := range history {
		counts[r.State]++
	}
	return fmt.Sprintf("%d succeeded, %d failed, %d withdrawn",
		counts[models.MergeSucceeded], counts[models.MergeFailed], counts[models.MergeWithdrawn])
}

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list", "status"},
	Short:   "List sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(o *orchestrator.Orchestrator) error {
			queued := make(map[string]string)
			for _, r := range o.Pending() {
				queued[r.Session] = r.TargetBranch
			}
			fmt.Print(tui.RenderSessions(o.Sessions(), queued, time.Now()))
			if n := len(o.Orphans()); n > 0 {
				printWarn("%d orphaned session(s); see 'claudemix orphans'", n)
			}
			fmt.Printf("persistence: %s\n", o.Backend().Name())
			return nil
		})
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeTarget, "target", "t", "", "Branch to merge into (default: merge.target)")
	mergeCmd.Flags().BoolVar(&mergeNoWait, "no-wait", false, "Only queue the request")

	queueCmd.Flags().IntVar(&queueHistory, "history", 0, "Also show the last N finished merges")
}
