package tui

import "github.com/charmbracelet/lipgloss"

// Color palette. Single source of truth for all TUI colors.
var (
	amber     = lipgloss.Color("#FFB454") // primary accent
	mintGreen = lipgloss.Color("#A8E6CF") // success states
	softRed   = lipgloss.Color("#FF6B6B") // error states
	mutedGray = lipgloss.Color("#6B7280") // secondary text
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(amber).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	focusedLabelStyle = lipgloss.NewStyle().
				Foreground(amber).
				Bold(true)

	solvingStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)

	tokenStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(softRed)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Padding(1, 0, 0, 0)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(amber).
			Padding(0, 1)
)
