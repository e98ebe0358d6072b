package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/orchestrator"
)

var (
	cleanupForce   bool
	cleanupDryRun  bool
	cleanupHistory time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stray worktrees and old merge history",
	Long: `Clean up after crashes and interrupted runs.

This command:
  - Retries worktree removals that failed earlier
  - Runs git worktree prune
  - Lists managed worktrees no session owns and offers to remove them

With --history, finished merge requests older than the given age are purged.

Examples:
  claudemix cleanup                 # Interactive cleanup with confirmation
  claudemix cleanup --force         # Skip confirmation prompt
  claudemix cleanup --dry-run       # Show what would be removed
  claudemix cleanup --history 720h  # Also purge merges older than 30 days`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
	cleanupCmd.Flags().DurationVar(&cleanupHistory, "history", 0, "Purge finished merge requests older than this")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withRepo(ctx, func(o *orchestrator.Orchestrator) error {
		opts := orchestrator.CleanupOptions{}
		if !cleanupDryRun {
			opts.HistoryAge = cleanupHistory
		}
		report, err := o.Cleanup(ctx, opts)
		if err != nil {
			return err
		}
		if report.Retried > 0 {
			printOK("Removed %d worktree(s) left over from earlier failures", report.Retried)
		}
		if report.Purged > 0 {
			printOK("Purged %d finished merge request(s)", report.Purged)
		}

		if len(report.Stray) == 0 {
			fmt.Println("No stray worktrees found.")
			return nil
		}
		fmt.Printf("Found %d stray worktree(s):\n", len(report.Stray))
		for _, path := range report.Stray {
			fmt.Printf("  - %s\n", path)
		}
		fmt.Println()

		if cleanupDryRun {
			fmt.Println("Dry run mode - no worktrees were removed.")
			return nil
		}
		if !cleanupForce && !confirm("Remove these worktrees?") {
			fmt.Println("Worktree cleanup cancelled.")
			return nil
		}

		report, err = o.Cleanup(ctx, orchestrator.CleanupOptions{RemoveStray: true})
		if err != nil {
			return err
		}
		printOK("Removed %d stray worktree(s)", len(report.Removed))
		return nil
	})
}

// confirm asks a yes/no question on the terminal. Anything but y/yes is no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	response, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
