package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sttts/kcore/pkg/actions"
	"github.com/sttts/kcore/pkg/live"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warningStyle = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	checkMark = "[OK]"
	crossMark = "[!!]"
	spinner   = "[..]"
	pending   = "[  ]"
	skipMark  = "[--]"
)

// renderEvent formats one action status line.
func renderEvent(ev actions.Event) string {
	var mark string
	var style lipgloss.Style
	switch ev.State {
	case actions.StatePending:
		mark, style = pending, dimStyle
	case actions.StateRunning:
		mark, style = spinner, lipgloss.NewStyle()
	case actions.StateConfirmed:
		mark, style = checkMark, okStyle
	case actions.StateCancelled:
		mark, style = skipMark, warningStyle
	default:
		mark, style = crossMark, errorStyle
	}
	line := style.Render(mark + " " + ev.Message)
	if ev.Err != nil {
		line += "\n" + dimStyle.Render(indent(ev.Err.Error(), "     "))
	}
	return line
}

// renderHealth summarizes per-cluster live health.
func renderHealth(unavailable []string, clusters map[string]live.Snapshot) string {
	if len(unavailable) == 0 {
		return okStyle.Render(fmt.Sprintf("%d cluster(s) synced", len(clusters)))
	}
	parts := make([]string, 0, len(unavailable))
	for _, c := range unavailable {
		msg := c
		if s, ok := clusters[c]; ok && s.Err != nil {
			msg += ": " + s.Err.Error()
		}
		parts = append(parts, msg)
	}
	return warningStyle.Render("unavailable: " + strings.Join(parts, "; "))
}

// renderTable aligns rows under a styled header.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	line := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(cells))
		for i, cell := range cells {
			out[i] = cell
			if i < len(cells)-1 {
				out[i] += strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+3)
			}
		}
		return style.Render(strings.Join(out, ""))
	}

	var b strings.Builder
	b.WriteString(line(headers, headerStyle))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(line(r, lipgloss.NewStyle()))
		b.WriteString("\n")
	}
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
