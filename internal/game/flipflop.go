package game

import (
	"strings"

	"github.com/park285/flipflop-server/internal/apperrors"
)

var (
	rookDirs = []Pos{
		{Row: -1, Col: 0},
		{Row: 1, Col: 0},
		{Row: 0, Col: -1},
		{Row: 0, Col: 1},
	}
	bishopDirs = []Pos{
		{Row: -1, Col: -1},
		{Row: -1, Col: 1},
		{Row: 1, Col: -1},
		{Row: 1, Col: 1},
	}
)

// FlipFlop holds the authoritative state of one game. It is not safe for
// concurrent use; the owning room serializes access.
type FlipFlop struct {
	size  int
	board [][]*Piece

	pieces map[Color][]*Piece
	goals  map[Color]Pos // a side's own goal cell
	moves  map[Color][]Move

	turn   Color
	ended  bool
	winner Color

	// winOnEntry ends the game the moment a piece reaches the opponent goal.
	// The default rule gives the defender one turn to capture it back.
	winOnEntry bool

	positionCounts map[string]int
	boardHistory   []string
	records        []record
}

// record captures everything Apply mutates, so Undo can restore it exactly.
type record struct {
	from, to   Pos
	moved      *Piece
	captured   *Piece
	turn       Color
	ended      bool
	winner     Color
	whiteMoves []Move
	blackMoves []Move
}

type Option func(*FlipFlop)

// WithWinOnEntry switches the win trigger to the moment a piece enters the
// opponent goal, instead of surviving there through the opponent's reply.
func WithWinOnEntry() Option {
	return func(g *FlipFlop) { g.winOnEntry = true }
}

// New builds a fresh game for the variant: full home rows of rook-side pieces,
// white to move. TypeFlipFour has no rules implementation yet.
func New(t GameType, opts ...Option) (*FlipFlop, error) {
	size := t.BoardSize()
	if size == 0 {
		return nil, apperrors.ErrInvalidGameType
	}

	g := &FlipFlop{
		size:           size,
		turn:           White,
		pieces:         map[Color][]*Piece{},
		moves:          map[Color][]Move{},
		goals:          goalCells(size),
		positionCounts: map[string]int{},
	}
	for _, o := range opts {
		o(g)
	}

	g.board = make([][]*Piece, size)
	for r := range g.board {
		g.board[r] = make([]*Piece, size)
	}
	for c := 0; c < size; c++ {
		bp := &Piece{Color: Black, Side: SideRook, Pos: Pos{Row: 0, Col: c}}
		wp := &Piece{Color: White, Side: SideRook, Pos: Pos{Row: size - 1, Col: c}}
		g.board[0][c] = bp
		g.board[size-1][c] = wp
		g.pieces[Black] = append(g.pieces[Black], bp)
		g.pieces[White] = append(g.pieces[White], wp)
	}

	g.moves[White] = g.computeMoves(White)

	initial := encode(g.board, g.turn)
	g.boardHistory = append(g.boardHistory, initial)
	g.positionCounts[initial] = 1
	return g, nil
}

// goalCells maps each side to its own goal: the middle cell of its home row.
func goalCells(size int) map[Color]Pos {
	mid := size / 2
	return map[Color]Pos{
		White: {Row: size - 1, Col: mid},
		Black: {Row: 0, Col: mid},
	}
}

func (g *FlipFlop) Size() int        { return g.size }
func (g *FlipFlop) Turn() Color      { return g.turn }
func (g *FlipFlop) Ended() bool      { return g.ended }
func (g *FlipFlop) Winner() Color    { return g.winner }
func (g *FlipFlop) Goal(c Color) Pos { return g.goals[c] }

// Board returns the current position in wire encoding.
func (g *FlipFlop) Board() string {
	return g.boardHistory[len(g.boardHistory)-1]
}

// At returns the piece on a cell, nil when empty.
func (g *FlipFlop) At(p Pos) *Piece {
	return g.board[p.Row][p.Col]
}

// ValidMoves returns the cached legal moves for a side. The cache is refreshed
// whenever the turn passes to that side.
func (g *FlipFlop) ValidMoves(c Color) []Move {
	return g.moves[c]
}

// ComputeMoves regenerates the move list for a side without touching the cache.
func (g *FlipFlop) ComputeMoves(c Color) []Move {
	return g.computeMoves(c)
}

func (g *FlipFlop) computeMoves(c Color) []Move {
	out := make([]Move, 0, 16)
	for _, piece := range g.pieces[c] {
		if piece.Captured {
			continue
		}
		dirs := rookDirs
		if piece.Side == SideBishop {
			dirs = bishopDirs
		}
		for _, dir := range dirs {
			pos := piece.Pos
			for {
				pos.Row += dir.Row
				pos.Col += dir.Col
				if pos.Row < 0 || pos.Row >= g.size || pos.Col < 0 || pos.Col >= g.size {
					break
				}
				if occ := g.board[pos.Row][pos.Col]; occ != nil {
					// Occupied cells are reachable only as goal-cell captures.
					if occ.Color != c && g.isGoal(pos) {
						out = append(out, Move{From: piece.Pos, To: pos})
					}
					break
				}
				out = append(out, Move{From: piece.Pos, To: pos})
			}
		}
	}
	return out
}

func (g *FlipFlop) isGoal(p Pos) bool {
	return p == g.goals[White] || p == g.goals[Black]
}

// PieceCount returns the number of a side's pieces still on the board.
func (g *FlipFlop) PieceCount(c Color) int {
	n := 0
	for _, p := range g.pieces[c] {
		if !p.Captured {
			n++
		}
	}
	return n
}

// InCheck reports whether an enemy piece sits on the side's own goal. Unless
// evicted on the side's next move, the enemy wins.
func (g *FlipFlop) InCheck(c Color) bool {
	occ := g.At(g.goals[c])
	return occ != nil && occ.Color != c
}

// Apply validates and executes a move for the side to move, flips the moved
// piece, passes the turn, and evaluates end-of-game conditions. Any failed
// precondition leaves the state untouched.
func (g *FlipFlop) Apply(from, to Pos) error {
	if g.ended {
		return apperrors.ErrGameEnded
	}

	piece := g.board[from.Row][from.Col]
	if piece == nil || piece.Color != g.turn {
		return apperrors.ErrIllegalMove
	}

	legal := false
	for _, m := range g.moves[g.turn] {
		if m.From == from && m.To == to {
			legal = true
			break
		}
	}
	if !legal {
		return apperrors.ErrIllegalMove
	}

	rec := record{
		from:       from,
		to:         to,
		moved:      piece,
		turn:       g.turn,
		ended:      g.ended,
		winner:     g.winner,
		whiteMoves: g.moves[White],
		blackMoves: g.moves[Black],
	}
	if occ := g.board[to.Row][to.Col]; occ != nil {
		occ.Captured = true
		rec.captured = occ
	}
	g.records = append(g.records, rec)

	g.board[to.Row][to.Col] = piece
	g.board[from.Row][from.Col] = nil
	piece.Pos = to
	piece.Side = piece.Side.Flip()

	mover := g.turn
	opponent := mover.Opponent()
	g.turn = opponent

	fen := encode(g.board, g.turn)
	g.boardHistory = append(g.boardHistory, fen)
	g.positionCounts[fen]++

	if g.winOnEntry {
		if occ := g.At(g.goals[opponent]); occ != nil && occ.Color == mover {
			g.ended = true
			g.winner = mover
			return nil
		}
	}

	// A piece still holding the mover's goal after the mover's reply wins for
	// its owner.
	if occ := g.At(g.goals[mover]); occ != nil && occ.Color != mover {
		g.ended = true
		g.winner = opponent
		return nil
	}

	oppMoves := g.computeMoves(opponent)
	g.moves[opponent] = oppMoves
	if len(oppMoves) == 0 {
		// Stalemate loses for the side unable to move.
		g.ended = true
		g.winner = mover
		return nil
	}

	if g.positionCounts[fen] == 3 {
		g.ended = true
		g.winner = None
	}
	return nil
}

// Undo reverts the most recent applied move, including captures, repetition
// counts, and cached move lists. Used by AI search.
func (g *FlipFlop) Undo() {
	if len(g.records) == 0 {
		return
	}
	rec := g.records[len(g.records)-1]
	g.records = g.records[:len(g.records)-1]

	g.board[rec.from.Row][rec.from.Col] = rec.moved
	g.board[rec.to.Row][rec.to.Col] = rec.captured
	rec.moved.Pos = rec.from
	rec.moved.Side = rec.moved.Side.Flip()
	if rec.captured != nil {
		rec.captured.Captured = false
	}

	g.turn = rec.turn
	g.ended = rec.ended
	g.winner = rec.winner

	if len(g.boardHistory) > 1 {
		last := g.boardHistory[len(g.boardHistory)-1]
		g.boardHistory = g.boardHistory[:len(g.boardHistory)-1]
		if n := g.positionCounts[last]; n > 1 {
			g.positionCounts[last] = n - 1
		} else {
			delete(g.positionCounts, last)
		}
	}

	g.moves[White] = rec.whiteMoves
	g.moves[Black] = rec.blackMoves
}

// History returns the applied moves in wire form, oldest first.
func (g *FlipFlop) History() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(g.records))
	for i, rec := range g.records {
		out = append(out, HistoryEntry{
			MoveNumber: i + 1,
			Player:     rec.moved.Color,
			Notation:   FormatSquare(rec.from, g.size) + "-" + FormatSquare(rec.to, g.size),
		})
	}
	return out
}

// ParseSquare converts wire notation ("A1".."E5", case-insensitive) into board
// coordinates, rejecting anything outside the board.
func (g *FlipFlop) ParseSquare(s string) (Pos, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 {
		return Pos{}, apperrors.ErrIllegalMove
	}
	col := int(s[0] - 'A')
	row := g.size - 1 - int(s[1]-'1')
	if col < 0 || col >= g.size || row < 0 || row >= g.size {
		return Pos{}, apperrors.ErrIllegalMove
	}
	return Pos{Row: row, Col: col}, nil
}
