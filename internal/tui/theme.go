package tui

import "github.com/charmbracelet/lipgloss"

var (
	Base     = lipgloss.Color("#11111b")
	Surface1 = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Red      = lipgloss.Color("#f38ba8")
	Peach    = lipgloss.Color("#fab387")

	App = lipgloss.NewStyle().
		Foreground(Text).
		Padding(1, 2)

	Title  = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Muted  = lipgloss.NewStyle().Foreground(Subtext0)
	Hot    = lipgloss.NewStyle().Foreground(Peach).Bold(true)
	Denied = lipgloss.NewStyle().Foreground(Red).Bold(true)

	Mirror = lipgloss.NewStyle().Foreground(Lavender)

	Field = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Surface1).
		Width(24)

	Card = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Green).
		Padding(1, 3)

	CardHeading = lipgloss.NewStyle().Foreground(Green).Bold(true)
	CardLabel   = lipgloss.NewStyle().Foreground(Subtext0).Width(11)
)
