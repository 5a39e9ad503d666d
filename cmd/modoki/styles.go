package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	cyanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	greenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	redStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	magentaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// colorsOn gates every styled write. It is decided once at startup and
// switched off for piped output and the protocol modes.
var colorsOn = true

func colorEnabled(noColorFlag bool) bool {
	if noColorFlag || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func paint(style lipgloss.Style, s string) string {
	if !colorsOn {
		return s
	}
	return style.Render(s)
}
