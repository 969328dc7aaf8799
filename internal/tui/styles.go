// SPDX-License-Identifier: MIT

// Package tui holds the terminal front ends: a live meter that drives the
// render loop and a device browser.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	hotBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0553D"))
)

// bar renders fraction (clamped to [0, 1]) of width cells.
func bar(fraction float64, width int) string {
	if width < 1 {
		return ""
	}
	fraction = max(0, min(1, fraction))
	filled := int(fraction*float64(width) + 0.5)

	style := barStyle
	if fraction > 0.9 {
		style = hotBarStyle
	}
	return style.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", width-filled))
}
