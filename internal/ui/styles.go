// Package ui holds the terminal styling shared by mw subcommands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// Title renders a bold heading.
func Title(s string) string { return titleStyle.Render(s) }

// Success renders positive status text.
func Success(s string) string { return successStyle.Render(s) }

// Warn renders cautionary status text, used for conflict results.
func Warn(s string) string { return warnStyle.Render(s) }

// Error renders failure text.
func Error(s string) string { return errorStyle.Render(s) }

// Faint renders secondary detail like timestamps and ids.
func Faint(s string) string { return faintStyle.Render(s) }

// Accent renders identifiers and backend names.
func Accent(s string) string { return accentStyle.Render(s) }

// StatusBadge maps a sync status to a colored label.
func StatusBadge(status string) string {
	switch status {
	case "success":
		return Success("✓ " + status)
	case "conflict":
		return Warn("! " + status)
	case "error":
		return Error("✗ " + status)
	default:
		return Faint(status)
	}
}
