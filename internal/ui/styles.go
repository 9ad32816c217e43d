package ui

import "github.com/charmbracelet/lipgloss"

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF") // headings
	colorAccent  = lipgloss.Color("#FFD700") // warnings, minor bumps
	colorSuccess = lipgloss.Color("#00E676") // success, patch bumps
	colorDanger  = lipgloss.Color("#FF5252") // errors, major bumps
	colorMuted   = lipgloss.Color("#636363") // de-emphasized text
	colorBorder  = lipgloss.Color("#444444") // table borders
)

// Status icons.
const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconWarn    = "⚠"
	iconWatch   = "◎"
	iconPending = "·"
)

var (
	styleTitle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)

	styleHeader = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleTable  = lipgloss.NewStyle().Foreground(colorBorder)
)

// bumpStyle colors a bump level by severity.
func bumpStyle(level string) lipgloss.Style {
	switch level {
	case "Major":
		return styleCell.Foreground(colorDanger).Bold(true)
	case "Minor":
		return styleCell.Foreground(colorAccent)
	case "Patch":
		return styleCell.Foreground(colorSuccess)
	default:
		return styleCell.Foreground(colorMuted)
	}
}
