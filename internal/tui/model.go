// Package tui renders a board widget in the terminal and feeds typed moves
// back into it.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chesslink/internal/board"
	"chesslink/internal/game"
	"chesslink/internal/rules"
)

// RefreshMsg asks the model to redraw after a controller update.
type RefreshMsg struct{}

// resultMsg carries the outcome of a move or command run off the UI loop.
type resultMsg struct {
	err error
}

// Config wires the model to whichever controller drives the board.
type Config struct {
	Title string
	// Status returns the controller's status line.
	Status func() string
	// Sync asks for the current game again; nil disables /sync.
	Sync func() error
	// Leave gives up the seat; nil disables /leave.
	Leave func() error
	// New starts a fresh game; nil disables /new.
	New func() error
	// Join takes a seat in the game with the given code; nil disables /join.
	Join func(code string) error
}

// Model is the Bubble Tea model of a terminal board.
type Model struct {
	board    *board.Board
	cfg      Config
	input    textinput.Model
	err      string
	quitting bool
}

// New creates a model for b.
func New(b *board.Board, cfg Config) *Model {
	ti := textinput.New()
	ti.Placeholder = "e2e4, /new, /join CODE, /sync, /quit"
	ti.CharLimit = 16
	ti.Width = 28
	ti.Focus()
	return &Model{board: b, cfg: cfg, input: ti}
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			return m, m.submit(line)
		}
	case RefreshMsg:
		return m, nil
	case resultMsg:
		m.err = describe(msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit turns an input line into a command. Moves and controller calls
// may touch the network, so they run as tea.Cmds.
func (m *Model) submit(line string) tea.Cmd {
	m.err = ""
	switch {
	case line == "":
		return nil
	case line == "/quit":
		m.quitting = true
		return tea.Quit
	case line == "/sync":
		return m.run(m.cfg.Sync, "/sync")
	case line == "/leave":
		return m.run(m.cfg.Leave, "/leave")
	case line == "/new":
		return m.run(m.cfg.New, "/new")
	case line == "/join" || strings.HasPrefix(line, "/join "):
		return m.join(strings.TrimSpace(strings.TrimPrefix(line, "/join")))
	case strings.HasPrefix(line, "/"):
		m.err = fmt.Sprintf("Unknown command %s.", line)
		return nil
	}
	b := m.board
	return func() tea.Msg {
		return resultMsg{err: b.Drag(line)}
	}
}

func (m *Model) run(fn func() error, name string) tea.Cmd {
	if fn == nil {
		m.err = fmt.Sprintf("%s is not available here.", name)
		return nil
	}
	return func() tea.Msg {
		return resultMsg{err: fn()}
	}
}

func (m *Model) join(code string) tea.Cmd {
	if m.cfg.Join == nil {
		return m.run(nil, "/join")
	}
	if code == "" || strings.ContainsAny(code, " \t") {
		m.err = "Usage: /join CODE."
		return nil
	}
	fn := m.cfg.Join
	return m.run(func() error { return fn(code) }, "/join")
}

func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, board.ErrNotDraggable):
		return "Not your move."
	case errors.Is(err, board.ErrIllegalMove):
		return "Illegal move."
	}
	return err.Error()
}

// Err returns the message shown under the board.
func (m *Model) Err() string {
	return m.err
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	if m.cfg.Title != "" {
		sb.WriteString(TitleStyle(m.cfg.Title))
		sb.WriteString("\n\n")
	}
	sb.WriteString(RenderBoard(m.board.Squares(), m.board.Reversed()))
	if m.cfg.Status != nil {
		sb.WriteString(StatusStyle.Render(m.cfg.Status()))
	}
	sb.WriteString("\n")
	if last := m.board.LastMove(); last != "" {
		sb.WriteString(HelpStyle.Render("Last move: " + last))
		sb.WriteString("\n")
	}
	if m.err != "" {
		sb.WriteString(ErrorStyle.Render(m.err))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(HelpStyle.Render("enter: play  esc: quit"))
	return DocStyle.Render(sb.String())
}

// RenderBoard draws squares in view order with rank and file labels that
// follow the orientation.
func RenderBoard(squares [8][8]byte, reversed bool) string {
	files := "abcdefgh"
	if reversed {
		files = "hgfedcba"
	}

	rows := make([]string, 0, 9)
	for r := 0; r < 8; r++ {
		rank := 8 - r
		if reversed {
			rank = r + 1
		}
		cells := []string{LabelStyle.Render(fmt.Sprintf("%d ", rank))}
		for f := 0; f < 8; f++ {
			style := lightSquare
			if (r+f)%2 == 1 {
				style = darkSquare
			}
			cells = append(cells, style.Render(piece(squares[r][f])))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	labels := []string{"  "}
	for i := 0; i < len(files); i++ {
		labels = append(labels, lipgloss.NewStyle().Width(3).Align(lipgloss.Center).Render(string(files[i])))
	}
	rows = append(rows, LabelStyle.Render(strings.Join(labels, "")))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func piece(p byte) string {
	g, ok := glyphs[p]
	if !ok {
		return " "
	}
	if rules.SideOf(p) == game.White {
		return whitePiece.Render(g)
	}
	return blackPiece.Render(g)
}
