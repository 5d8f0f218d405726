package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badgeStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	idStyle      = lipgloss.NewStyle().Width(26).Foreground(lipgloss.Color("12"))
)

func statusColor(s projects.Status) lipgloss.Color {
	switch s {
	case projects.StatusTrustworthy:
		return lipgloss.Color("2")
	case projects.StatusNeutral:
		return lipgloss.Color("3")
	case projects.StatusRisky:
		return lipgloss.Color("1")
	}
	return lipgloss.Color("8")
}

// badge renders "<status> <score>/100" on the status colour.
func badge(s projects.Status, score float64) string {
	return badgeStyle.
		Foreground(lipgloss.Color("0")).
		Background(statusColor(s)).
		Render(fmt.Sprintf("%s %.0f/100", s, score))
}

func projectLine(p projects.Project) string {
	line := idStyle.Render(string(p.ID)) + " " + badge(p.Status(), p.TrustScore) + " " + titleStyle.Render(p.Name)
	if p.Category != "" {
		line += dimStyle.Render(" · " + p.Category)
	}
	if n := p.History.Len(); n > 0 {
		line += dimStyle.Render(fmt.Sprintf(" · %d analyses", n))
	}
	return line
}

func printVerdict(w io.Writer, score float64, s projects.Status, markdown string) {
	fmt.Fprintln(w, badge(s, score))
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimSpace(markdown))
}
