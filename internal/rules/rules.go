package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"

	"chesslink/internal/game"
)

// StartFEN is the standard starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	// ErrInvalidPosition is returned for position strings the engine rejects.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrIllegalMove is returned for moves that are not legal in the current position.
	ErrIllegalMove = errors.New("illegal move")
)

// Engine wraps a chess game and answers the few questions the sync layer asks.
type Engine struct {
	g *chess.Game
}

// NewEngine returns an engine at the starting position.
func NewEngine() *Engine {
	return &Engine{g: chess.NewGame()}
}

// Load replaces the current game with the given position.
func (e *Engine) Load(position string) (err error) {
	position = strings.TrimSpace(position)
	if err := checkKings(position); err != nil {
		return err
	}

	// decoder panics are reported as invalid positions
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPosition, r)
		}
	}()

	opt, err := chess.FEN(position)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	e.g = chess.NewGame(opt)
	return nil
}

// Reset returns the engine to the starting position.
func (e *Engine) Reset() {
	e.g = chess.NewGame()
}

// FEN returns the canonical position string.
func (e *Engine) FEN() string {
	return e.g.FEN()
}

// Turn returns the side to move.
func (e *Engine) Turn() game.Role {
	return roleOf(e.g.Position().Turn())
}

// IsCheckmate reports whether the side to move is checkmated.
func (e *Engine) IsCheckmate() bool {
	return e.g.Method() == chess.Checkmate
}

// Move plays a UCI move (e2e4, e7e8q) from the current position. The
// decoder accepts any square pair, so the move must also appear among the
// position's legal moves.
func (e *Engine) Move(uci string) error {
	uci = strings.ToLower(strings.TrimSpace(uci))
	mv, err := chess.UCINotation{}.Decode(e.g.Position(), uci)
	if err != nil || mv == nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	for _, legal := range e.g.ValidMoves() {
		if legal.S1() != mv.S1() || legal.S2() != mv.S2() || legal.Promo() != mv.Promo() {
			continue
		}
		if err := e.g.Move(&legal, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrIllegalMove, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
}

// Clone returns an independent engine at the same position.
func (e *Engine) Clone() *Engine {
	c := NewEngine()
	// FEN() of a loaded game always round-trips
	_ = c.Load(e.FEN())
	return c
}

// Normalize returns the engine's canonical form of position.
func Normalize(position string) (string, error) {
	e := NewEngine()
	if err := e.Load(position); err != nil {
		return "", err
	}
	return e.FEN(), nil
}

// Reaches reports whether playing uci from prev produces next.
func Reaches(prev, uci, next string) bool {
	e := NewEngine()
	if e.Load(prev) != nil || e.Move(uci) != nil {
		return false
	}
	want, err := Normalize(next)
	if err != nil {
		return false
	}
	return e.FEN() == want
}

// AppendPromotion adds a queen promotion to a bare four-character pawn move
// onto the last rank.
func AppendPromotion(position, uci string) string {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if !isPromotionToLastRank(uci) {
		return uci
	}
	e := NewEngine()
	if e.Load(position) != nil {
		return uci
	}
	sq, ok := parseSquare(uci[:2])
	if ok && e.piece(sq).Type() == chess.Pawn {
		return uci + "q"
	}
	return uci
}

func isPromotionToLastRank(uci string) bool {
	if len(uci) != 4 {
		return false
	}
	return uci[3] == '1' || uci[3] == '8'
}

func (e *Engine) piece(sq chess.Square) chess.Piece {
	return e.g.Position().Board().Piece(sq)
}

func parseSquare(s string) (chess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return chess.NoSquare, false
	}
	return chess.NewSquare(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), true
}

func checkKings(position string) error {
	placement, _, _ := strings.Cut(position, " ")
	if strings.Count(placement, "K") != 1 || strings.Count(placement, "k") != 1 {
		return fmt.Errorf("%w: need exactly one king per side", ErrInvalidPosition)
	}
	return nil
}

func roleOf(c chess.Color) game.Role {
	if c == chess.Black {
		return game.Black
	}
	return game.White
}

// Placement returns the pieces of position as FEN letters, rank 8 first and
// file a first. Empty squares are 0, as is every square of an invalid position.
func Placement(position string) [8][8]byte {
	var grid [8][8]byte
	e := NewEngine()
	if e.Load(position) != nil {
		return grid
	}
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			grid[r][f] = letter(e.piece(chess.NewSquare(chess.File(f), chess.Rank(7-r))))
		}
	}
	return grid
}

func letter(p chess.Piece) byte {
	name := p.Type().String()
	if name == "" {
		return 0
	}
	if p.Color() == chess.White {
		return name[0] - 'a' + 'A'
	}
	return name[0]
}

// SideOf returns the owner of a FEN piece letter.
func SideOf(piece byte) game.Role {
	switch {
	case piece >= 'A' && piece <= 'Z':
		return game.White
	case piece >= 'a' && piece <= 'z':
		return game.Black
	}
	return game.NoRole
}
