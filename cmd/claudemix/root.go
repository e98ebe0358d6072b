package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	repoDir     string
	noPersist   bool
	startBranch string
)

var rootCmd = &cobra.Command{
	Use:   "claudemix [name]",
	Short: "Run parallel Claude Code sessions on one repository",
	Long: `ClaudeMix runs several independent coding sessions against one
repository. Each session gets its own branch and git worktree, keeps running
inside tmux when you detach, and is merged back through a per-branch merge
queue when it is done.

With a name, attaches to that session (starting it first if needed).
Without arguments, opens the interactive session menu.

Examples:
  claudemix login-form       # start or attach session "login-form"
  claudemix ls               # list sessions
  claudemix merge login-form # run the pre-merge hook and merge into main`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runMenu(cmd.Context())
		}
		return runStartOrAttach(cmd.Context(), args[0])
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "Run as if started in this directory")
	rootCmd.Flags().BoolVar(&noPersist, "no-persist", false, "Run a new session in the foreground instead of tmux")
	rootCmd.Flags().StringVarP(&startBranch, "branch", "b", "", "Branch for a new session (default: prefix + name)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(hooksCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
