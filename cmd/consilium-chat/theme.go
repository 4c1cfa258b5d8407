package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// fallbackColors are cycled for participants without a configured color.
var fallbackColors = []string{"#7aa2f7", "#9ece6a", "#e0af68", "#bb9af7", "#f7768e"} //nolint:gochecknoglobals // static palette

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#c0caf5")) //nolint:gochecknoglobals // shared style
	statusStyle = lipgloss.NewStyle().Faint(true)                                      //nolint:gochecknoglobals // shared style
	noticeStyle = lipgloss.NewStyle().Faint(true).Italic(true)                         //nolint:gochecknoglobals // shared style
	secretStyle = lipgloss.NewStyle().Faint(true)                                      //nolint:gochecknoglobals // shared style
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true) //nolint:gochecknoglobals // shared style
	helpStyle   = lipgloss.NewStyle().Faint(true)                                      //nolint:gochecknoglobals // shared style
)

// secretMark prefixes messages only part of the room can read.
const secretMark = "🔒 "

// senderStyle returns the name style for a participant, preferring the
// configured color.
func senderStyle(p protocol.Participant, index int) lipgloss.Style {
	color := p.Color
	if color == "" {
		color = fallbackColors[index%len(fallbackColors)]
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
}
