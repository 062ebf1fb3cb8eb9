package game

import "fmt"

// Color identifies a playing side. White always moves first.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// None is the zero Color, used where no winner exists yet.
const None Color = ""

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Side is a piece's current movement mode. It toggles on every move.
type Side string

const (
	SideRook   Side = "rook"   // orthogonal rays
	SideBishop Side = "bishop" // diagonal rays
)

func (s Side) Flip() Side {
	if s == SideRook {
		return SideBishop
	}
	return SideRook
}

// GameType selects the board variant on the wire.
type GameType int

const (
	TypeFlipFlop3x3 GameType = iota
	TypeFlipFlop5x5
	TypeFlipFour
)

// BoardSize returns the square board dimension for the variant, 0 if unknown.
func (t GameType) BoardSize() int {
	switch t {
	case TypeFlipFlop3x3:
		return 3
	case TypeFlipFlop5x5:
		return 5
	default:
		return 0
	}
}

// Pos is a zero-based board coordinate. Row 0 is black's home row; row size-1
// is white's. Columns run left to right from white's viewpoint.
type Pos struct {
	Row int
	Col int
}

// Piece occupies at most one cell. Captured pieces stay in the owner's list
// but leave the board.
type Piece struct {
	Color    Color
	Side     Side
	Pos      Pos
	Captured bool
}

// Move is a from→to pair in board coordinates.
type Move struct {
	From Pos
	To   Pos
}

// HistoryEntry is one applied move in wire form.
type HistoryEntry struct {
	MoveNumber int    `json:"move_number"`
	Player     Color  `json:"player"`
	Notation   string `json:"notation"`
}

// FormatSquare renders a Pos as column letter + rank digit ("A1") for a board
// of the given size. Rank 1 is white's home row.
func FormatSquare(p Pos, size int) string {
	return fmt.Sprintf("%c%d", rune('A'+p.Col), size-p.Row)
}
