package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Draidel/ClaudeMix/internal/orchestrator"
	"github.com/Draidel/ClaudeMix/internal/tui"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Pick a session interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd.Context())
	},
}

// runMenu shows the session picker and performs the chosen action. Pause,
// ready and close return to the picker; attach, new and merge end it.
func runMenu(ctx context.Context) error {
	for {
		var sessions []models.Session
		err := withRepo(ctx, func(o *orchestrator.Orchestrator) error {
			sessions = o.Sessions()
			return nil
		})
		if err != nil {
			return err
		}

		choice, err := tui.Pick(sessions)
		if err != nil {
			return err
		}

		name := choice.Session
		switch choice.Action {
		case tui.ActionNone:
			return nil
		case tui.ActionAttach, tui.ActionNew:
			return runStartOrAttach(ctx, name)
		case tui.ActionMerge:
			return runMerge(ctx, name, "", false)
		case tui.ActionPause:
			err = withRepo(ctx, func(o *orchestrator.Orchestrator) error {
				_, err := o.Pause(ctx, name)
				return err
			})
		case tui.ActionReady:
			err = withRepo(ctx, func(o *orchestrator.Orchestrator) error {
				_, err := o.Ready(ctx, name, "")
				return err
			})
		case tui.ActionClose:
			err = withRepo(ctx, func(o *orchestrator.Orchestrator) error {
				return o.Close(ctx, name, false)
			})
		}
		if err != nil {
			printError(err)
		} else {
			printOK("%s: %s", choice.Action, name)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
