// Package tui renders sessions and the merge queue for the terminal: plain
// tables for the listing commands and an interactive picker for the menu.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Draidel/ClaudeMix/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("245"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// StateStyle colors a session state.
func StateStyle(s models.SessionState) lipgloss.Style {
	style := lipgloss.NewStyle()
	switch s {
	case models.SessionActive:
		return style.Foreground(lipgloss.Color("42"))
	case models.SessionPaused:
		return style.Foreground(lipgloss.Color("245"))
	case models.SessionReadyToMerge:
		return style.Foreground(lipgloss.Color("39"))
	case models.SessionMerging:
		return style.Foreground(lipgloss.Color("214")).Bold(true)
	case models.SessionOrphaned:
		return style.Foreground(lipgloss.Color("208"))
	case models.SessionFailed:
		return style.Foreground(lipgloss.Color("196"))
	default:
		return style.Foreground(lipgloss.Color("240"))
	}
}

// MergeStateStyle colors a merge request state.
func MergeStateStyle(s models.MergeState) lipgloss.Style {
	style := lipgloss.NewStyle()
	switch s {
	case models.MergeRunning:
		return style.Foreground(lipgloss.Color("214")).Bold(true)
	case models.MergeSucceeded:
		return style.Foreground(lipgloss.Color("42"))
	case models.MergeFailed:
		return style.Foreground(lipgloss.Color("196"))
	default:
		return style.Foreground(lipgloss.Color("245"))
	}
}

// Age formats d the way the listings show ages: "now", "42s", "5m", "3h", "2d".
func Age(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
