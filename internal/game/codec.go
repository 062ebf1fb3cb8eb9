package game

import (
	"strings"

	"github.com/park285/flipflop-server/internal/apperrors"
)

// Wire board encoding, one character per cell in row-major order:
//
//	o  empty
//	a  black rook    b  black bishop
//	x  white rook    y  white bishop
//
// Rows are joined with '/' and a trailing digit gives the side to move
// (1 white, 2 black). Example 3x3 start: "aaa/ooo/xxx1".
func encode(board [][]*Piece, turn Color) string {
	var b strings.Builder
	for i, row := range board {
		for _, piece := range row {
			switch {
			case piece == nil:
				b.WriteByte('o')
			case piece.Color == Black && piece.Side == SideRook:
				b.WriteByte('a')
			case piece.Color == Black && piece.Side == SideBishop:
				b.WriteByte('b')
			case piece.Color == White && piece.Side == SideRook:
				b.WriteByte('x')
			case piece.Color == White && piece.Side == SideBishop:
				b.WriteByte('y')
			}
		}
		if i < len(board)-1 {
			b.WriteByte('/')
		}
	}
	if turn == White {
		b.WriteByte('1')
	} else {
		b.WriteByte('2')
	}
	return b.String()
}

// Encode returns the wire form of an arbitrary board plus turn.
func Encode(board [][]*Piece, turn Color) string {
	return encode(board, turn)
}

// Decode rebuilds a playable game from its wire encoding. It is the exact
// inverse of Encode: Decode(g.Board()).Board() == g.Board(). Position history
// starts fresh, so repetition counting restarts from the decoded position.
func Decode(s string) (*FlipFlop, error) {
	if len(s) < 2 {
		return nil, apperrors.ErrInvalidMessageFormat
	}

	var turn Color
	switch s[len(s)-1] {
	case '1':
		turn = White
	case '2':
		turn = Black
	default:
		return nil, apperrors.ErrInvalidMessageFormat
	}

	rows := strings.Split(s[:len(s)-1], "/")
	size := len(rows)
	if size != 3 && size != 5 {
		return nil, apperrors.ErrInvalidMessageFormat
	}

	g := &FlipFlop{
		size:           size,
		turn:           turn,
		pieces:         map[Color][]*Piece{},
		moves:          map[Color][]Move{},
		goals:          goalCells(size),
		positionCounts: map[string]int{},
	}
	g.board = make([][]*Piece, size)
	for r, row := range rows {
		if len(row) != size {
			return nil, apperrors.ErrInvalidMessageFormat
		}
		g.board[r] = make([]*Piece, size)
		for c := 0; c < size; c++ {
			var piece *Piece
			switch row[c] {
			case 'o':
				continue
			case 'a':
				piece = &Piece{Color: Black, Side: SideRook}
			case 'b':
				piece = &Piece{Color: Black, Side: SideBishop}
			case 'x':
				piece = &Piece{Color: White, Side: SideRook}
			case 'y':
				piece = &Piece{Color: White, Side: SideBishop}
			default:
				return nil, apperrors.ErrInvalidMessageFormat
			}
			piece.Pos = Pos{Row: r, Col: c}
			g.board[r][c] = piece
			g.pieces[piece.Color] = append(g.pieces[piece.Color], piece)
		}
	}

	g.moves[turn] = g.computeMoves(turn)
	initial := encode(g.board, turn)
	g.boardHistory = append(g.boardHistory, initial)
	g.positionCounts[initial] = 1
	return g, nil
}
