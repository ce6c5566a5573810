package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/grokbox/grokbox/internal/vm"
)

var (
	greenColor  = lipgloss.Color("#10B981") // Green
	amberColor  = lipgloss.Color("#F59E0B") // Amber
	redColor    = lipgloss.Color("#F87171") // Red
	mutedColor  = lipgloss.Color("#9CA3AF") // Gray
	borderColor = lipgloss.Color("#6B7280") // Gray

	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	runningStyle = lipgloss.NewStyle().Foreground(greenColor)
	stoppedStyle = lipgloss.NewStyle().Foreground(amberColor)
	unknownStyle = lipgloss.NewStyle().Foreground(redColor)
	borderStyle  = lipgloss.NewStyle().Foreground(borderColor)
)

// statusStyle maps a VM status to its display style.
func statusStyle(s vm.Status) lipgloss.Style {
	switch s {
	case vm.StatusRunning:
		return runningStyle
	case vm.StatusStopped:
		return stoppedStyle
	default:
		return unknownStyle
	}
}
