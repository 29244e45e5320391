package tui

import "github.com/charmbracelet/lipgloss"

var (
	DocStyle    = lipgloss.NewStyle().Margin(1, 2)
	TitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("228")).Bold(true).Render
	StatusStyle = lipgloss.NewStyle().MarginTop(1)
	ErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	HelpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	LabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	lightSquare = lipgloss.NewStyle().Background(lipgloss.Color("#EEEED2")).Width(3).Align(lipgloss.Center)
	darkSquare  = lipgloss.NewStyle().Background(lipgloss.Color("#769656")).Width(3).Align(lipgloss.Center)
	whitePiece  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	blackPiece  = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Bold(true)
)

// glyphs maps FEN piece letters to chess symbols. Both sides use the filled
// set and are told apart by color.
var glyphs = map[byte]string{
	'K': "♚", 'Q': "♛", 'R': "♜", 'B': "♝", 'N': "♞", 'P': "♟",
	'k': "♚", 'q': "♛", 'r': "♜", 'b': "♝", 'n': "♞", 'p': "♟",
}
