package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/config"
	"github.com/Draidel/ClaudeMix/internal/git"
	"github.com/Draidel/ClaudeMix/internal/orchestrator"
	"github.com/Draidel/ClaudeMix/internal/state"
)

var serveInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run queued merges as they arrive",
	Long: `Run the merge queue in the background. Every interval, serve takes
the repository lock, runs the requests queued with 'claudemix merge --no-wait'
and releases the lock again so other commands can run in between.

Changes to .claudemix.yaml take effect immediately: the hook table and the log
level are swapped in place and a new cycle starts.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 30*time.Second, "Time between queue runs")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if serveInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	top, err := git.NewRunner(repoDir).TopLevel(ctx)
	if err != nil {
		return fmt.Errorf("not inside a git repository: %w", err)
	}
	configPath := config.FindProjectConfig(top)
	if configPath == "" {
		configPath = filepath.Join(top, config.ProjectFileName)
	}
	changes := make(chan *config.Config, 1)
	watcher, err := config.Watch(top, configPath, func(cfg *config.Config) {
		select {
		case changes <- cfg:
		default:
		}
	})
	if err != nil {
		printWarn("not watching %s: %v", configPath, err)
	} else {
		defer watcher.Close()
	}

	fmt.Printf("Serving the merge queue for %s every %s (Ctrl+C to stop)\n", top, serveInterval)
	for {
		err := serveCycle(ctx, changes)
		switch {
		case errors.Is(err, state.ErrLocked):
			printWarn("repository busy; retrying in %s", serveInterval)
		case err != nil && ctx.Err() == nil:
			printFail("%v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			// The next cycle loads the new configuration.
		case <-time.After(serveInterval):
		}
	}
}

// serveCycle opens the repository with workers running and waits until
// every restored request has finished.
func serveCycle(ctx context.Context, changes <-chan *config.Config) error {
	o, err := openRepo(ctx, orchestrator.Options{
		RunQueue:    true,
		LockTimeout: time.Second,
		EventBuffer: 64,
	})
	if err != nil {
		return err
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range o.Events() {
			printEvent(ev)
		}
	}()

	tickets, interrupted := o.Restored()
	if interrupted > 0 {
		printWarn("%d interrupted merge(s) marked failed", interrupted)
	}
	for _, t := range tickets {
	wait:
		for {
			select {
			case <-t.Done():
				break wait
			case cfg := <-changes:
				o.ReloadConfig(cfg)
			case <-ctx.Done():
				break wait
			}
		}
	}

	stats := o.QueueStats()
	err = o.Shutdown()
	<-printed
	if stats.Total > 0 {
		fmt.Printf("%d merged, %d failed\n", stats.Succeeded, stats.Failed)
	}
	if n := o.DroppedEvents(); n > 0 {
		printWarn("%d event(s) dropped", n)
	}
	return err
}

func printEvent(ev orchestrator.Event) {
	stamp := color.New(color.Faint).Sprint(ev.Timestamp.Format("15:04:05"))
	switch ev.Type {
	case orchestrator.EventMergeStarted:
		fmt.Printf("%s merging %s\n", stamp, ev.Session)
	case orchestrator.EventMergeSucceeded:
		fmt.Printf("%s %s merged %s\n", stamp, color.GreenString("✓"), ev.Session)
	case orchestrator.EventMergeFailed:
		fmt.Printf("%s %s %s: %v\n", stamp, color.RedString("✗"), ev.Session, ev.Error)
	case orchestrator.EventConfigReloaded:
		fmt.Printf("%s configuration reloaded (%s)\n", stamp, ev.Message)
	default:
		fmt.Printf("%s %s %s\n", stamp, ev.Type, ev.Session)
	}
}
