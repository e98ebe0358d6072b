package tui

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Draidel/ClaudeMix/pkg/models"
)

// cell is one table cell with the style applied to its padded text.
type cell struct {
	text  string
	style lipgloss.Style
}

func plain(s string) cell { return cell{text: s, style: lipgloss.NewStyle()} }

// renderTable aligns rows under headers. Widths come from the unstyled
// text so colors never shift columns.
func renderTable(headers []string, rows [][]cell) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if w := lipgloss.Width(c.text); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	line := make([]string, len(headers))
	for i, h := range headers {
		line[i] = headerStyle.Width(widths[i]).Render(h)
	}
	b.WriteString(strings.TrimRight(strings.Join(line, "  "), " "))
	b.WriteByte('\n')
	for _, row := range rows {
		for i, c := range row {
			line[i] = c.style.Width(widths[i]).Render(c.text)
		}
		b.WriteString(strings.TrimRight(strings.Join(line, "  "), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderSessions renders the session listing. queued maps session names to
// the target of their outstanding merge request.
func RenderSessions(sessions []models.Session, queued map[string]string, now time.Time) string {
	if len(sessions) == 0 {
		return dimStyle.Render("No sessions. Start one with: claudemix <name>") + "\n"
	}

	rows := make([][]cell, 0, len(sessions))
	for _, s := range sessions {
		mode := "tmux"
		if !s.Persistent() {
			mode = "foreground"
		}
		note := s.LastError
		if target, ok := queued[s.Name]; ok {
			note = "queued for " + target
		}
		rows = append(rows, []cell{
			plain(s.Name),
			plain(s.Branch),
			{text: string(s.State), style: StateStyle(s.State)},
			plain(mode),
			plain(Age(now.Sub(s.LastActivity))),
			{text: truncate(note, 60), style: dimStyle},
		})
	}
	return renderTable([]string{"NAME", "BRANCH", "STATE", "MODE", "ACTIVE", "NOTE"}, rows)
}

// RenderQueue renders outstanding merge requests, grouped by target.
func RenderQueue(requests []models.MergeRequest, now time.Time) string {
	if len(requests) == 0 {
		return dimStyle.Render("Merge queue is empty.") + "\n"
	}

	rows := make([][]cell, 0, len(requests))
	position := map[string]int{}
	for _, r := range requests {
		position[r.TargetBranch]++
		rows = append(rows, []cell{
			plain(r.TargetBranch),
			plain(strconv.Itoa(position[r.TargetBranch])),
			plain(r.Session),
			plain(r.SourceBranch),
			{text: string(r.State), style: MergeStateStyle(r.State)},
			plain(Age(now.Sub(r.EnqueuedAt))),
		})
	}
	return renderTable([]string{"TARGET", "#", "SESSION", "SOURCE", "STATE", "WAITING"}, rows)
}

// RenderHistory renders finished merge requests, newest first.
func RenderHistory(requests []models.MergeRequest, now time.Time) string {
	if len(requests) == 0 {
		return dimStyle.Render("No finished merges.") + "\n"
	}
	rows := make([][]cell, 0, len(requests))
	for _, r := range requests {
		rows = append(rows, []cell{
			plain(r.Session),
			plain(r.TargetBranch),
			{text: string(r.State), style: MergeStateStyle(r.State)},
			plain(Age(now.Sub(r.UpdatedAt))),
			{text: truncate(r.LastError, 60), style: errorStyle},
		})
	}
	return renderTable([]string{"SESSION", "TARGET", "RESULT", "AGO", "ERROR"}, rows)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
