package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func yesNo(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// StatusMarkdown renders a status as a markdown document.
func StatusMarkdown(st domain.Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Project `%s`\n\n", st.ProjectID)
	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| State | **%s** |\n", st.State)
	if st.SessionID != "" {
		fmt.Fprintf(&sb, "| Session | `%s` |\n", st.SessionID)
	}
	fmt.Fprintf(&sb, "| Pending changes | %d |\n", st.Pending)
	if st.RunningTask != "" {
		fmt.Fprintf(&sb, "| Running | %s (%d queued) |\n", st.RunningTask, st.QueuedTasks)
	}
	fmt.Fprintf(&sb, "| Last update | %s |\n", st.LastUpdate)
	fmt.Fprintf(&sb, "| Data directory | `%s` |\n", st.DataDir)
	fmt.Fprintf(&sb, "| Continuous update | %s |\n", yesNo(st.ContinuousSync))
	fmt.Fprintf(&sb, "| Continuous analysis | %s |\n", yesNo(st.Analysis))
	if st.LastError != "" {
		fmt.Fprintf(&sb, "\n> **Last error:** %s\n", st.LastError)
	}
	return sb.String()
}

// SettingsMarkdown renders stored settings as a markdown document.
func SettingsMarkdown(s *domain.Settings) string {
	return StatusMarkdown(domain.Status{
		ProjectID:      s.ProjectID,
		State:          domain.StateDisconnected.String(),
		LastUpdate:     s.LastUpdate,
		DataDir:        s.DataDir,
		ContinuousSync: s.ContinuousUpdate,
		Analysis:       s.ContinuousAnalysis,
	})
}

// StateLabel colors a state name for one-line output.
func StateLabel(state string) string {
	p := termenv.ColorProfile()
	color := "#9ca3af"
	switch state {
	case domain.StateReady.String():
		color = "#34d399"
	case domain.StateFlushing.String(), domain.StateConnecting.String():
		color = "#fbbf24"
	case domain.StateClosing.String():
		color = "#f87171"
	}
	return termenv.String(state).Foreground(p.Color(color)).String()
}

// PrintStatusLine writes a compact one-line status, used for periodic updates.
func PrintStatusLine(w io.Writer, st domain.Status) {
	fmt.Fprintf(w, "%s  %-12s pending=%-4d last=%s\n",
		st.CapturedAt.Format(time.TimeOnly), StateLabel(st.State), st.Pending, st.LastUpdate)
}
