package main

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

const (
	colorYellow = "#E3D367"
	colorGray   = "#82878B"
	colorFg     = "#E1E2E3"
	colorGreen  = "#9CD57B"
	colorRed    = "#F76C7C"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorYellow))
	styleKey    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen))
	styleBad    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed))
)

// promptTheme returns a huh theme using pulsewirectl's palette.
func promptTheme() *huh.Theme {
	t := huh.ThemeDracula()
	yellow := lipgloss.Color(colorYellow)
	gray := lipgloss.Color(colorGray)
	fg := lipgloss.Color(colorFg)

	t.Focused.Base = t.Focused.Base.BorderForeground(yellow).Foreground(fg)
	t.Blurred.Base = t.Blurred.Base.BorderForeground(gray).Foreground(fg)
	t.Focused.Title = t.Focused.Title.Foreground(yellow).Bold(true)
	t.Blurred.Title = t.Blurred.Title.Foreground(gray)
	t.Focused.TextInput.Cursor = t.Focused.TextInput.Cursor.Foreground(yellow)

	return t
}
