package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/pkg/models"
)

// Palette used by help, tables and status output.
var (
	colorBlue    = lipgloss.Color("12")
	colorCyan    = lipgloss.Color("14")
	colorGreen   = lipgloss.Color("10")
	colorYellow  = lipgloss.Color("11")
	colorRed     = lipgloss.Color("9")
	colorOrange  = lipgloss.Color("208")
	colorViolet  = lipgloss.Color("13")
	colorMuted   = lipgloss.Color("8")
	colorBorder  = lipgloss.Color("240")
	colorSubtle  = lipgloss.Color("235")
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	italicStyle  = lipgloss.NewStyle().Italic(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	errorMark    = lipgloss.NewStyle().Bold(true).Foreground(colorRed).Render("✗")
	successStyle = lipgloss.NewStyle().Foreground(colorGreen)
)

// StateStyle returns the style used to render a session state.
func StateStyle(s models.State) lipgloss.Style {
	switch s {
	case models.StateBusy:
		return lipgloss.NewStyle().Foreground(colorCyan)
	case models.StateIdle:
		return successStyle
	case models.StateWaitingInput:
		return lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	case models.StateInterrupted:
		return lipgloss.NewStyle().Foreground(colorOrange)
	case models.StateExited:
		return lipgloss.NewStyle().Foreground(colorRed)
	default:
		return mutedStyle
	}
}

// RenderState renders a state with its waiting-input kind, if any.
func RenderState(s *models.Session) string {
	label := string(s.State)
	if s.WaitingInputType != "" {
		label += " (" + string(s.WaitingInputType) + ")"
	}
	return StateStyle(s.State).Render(label)
}

// Muted renders text in the muted color.
func Muted(text string) string {
	return mutedStyle.Render(text)
}

// Success renders a checkmark line.
func Success(text string) string {
	return successStyle.Render("✓") + " " + text
}

// ConfigureColor drops all styling when NO_COLOR is set or --json was given.
func ConfigureColor(cmd *cobra.Command) {
	if termenv.EnvNoColor() || GetOptions(cmd).JSONOutput {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
