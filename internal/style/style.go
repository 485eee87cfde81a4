package style

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorGreen     = lipgloss.Color("42")
	colorRed       = lipgloss.Color("196")
)

// --- General Purpose Styles ---
var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	ErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
	OKStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	HelpStyle  = lipgloss.NewStyle().Faint(true)
)

// --- Panel Styles ---
var (
	ActiveTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	InactiveTabStyle = lipgloss.NewStyle().Foreground(colorDarkGray).Padding(0, 1)
	StatusBoxStyle   = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colorDarkGray).
				Padding(0, 1)
	CursorStyle   = lipgloss.NewStyle().Foreground(colorCyan).SetString("> ")
	NoCursorStyle = lipgloss.NewStyle().SetString("  ")
	OutputStyle   = lipgloss.NewStyle().Foreground(colorLightGray)
)

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}
