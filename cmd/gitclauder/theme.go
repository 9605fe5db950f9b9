package main

import "github.com/charmbracelet/lipgloss"

// Theme defines the terminal styling for status output.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default theme.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),  // Blue
		Success: lipgloss.Color("10"),  // Green
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// styles are the rendered variants used by the status command.
type styles struct {
	title lipgloss.Style
	label lipgloss.Style
	muted lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		label: lipgloss.NewStyle().Width(12),
		muted: lipgloss.NewStyle().Foreground(t.Muted),
		ok:    lipgloss.NewStyle().Foreground(t.Success),
		warn:  lipgloss.NewStyle().Foreground(t.Warning),
		bad:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
	}
}

// levelStyle colours a priority level by how far it escalated.
func (s styles) levelStyle(level int) lipgloss.Style {
	switch level {
	case 1:
		return s.ok
	case 2:
		return s.warn
	default:
		return s.bad
	}
}
