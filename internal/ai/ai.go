// Package ai picks moves for the computer opponent in singleplayer rooms.
// Difficulty only changes search depth; the protocol never sees it.
package ai

import (
	"context"
	"math/rand/v2"

	"github.com/park285/flipflop-server/internal/apperrors"
	"github.com/park285/flipflop-server/internal/game"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

func (d Difficulty) depth() int {
	switch d {
	case Easy:
		return 2
	case Hard:
		return 6
	default:
		return 4
	}
}

// Valid reports whether the wire value names a known difficulty. The empty
// string is accepted and treated as Medium.
func Valid(d Difficulty) bool {
	switch d {
	case "", Easy, Medium, Hard:
		return true
	}
	return false
}

// Engine searches one FlipFlop game. It mutates the game during search via
// Apply/Undo, so the caller must hold the room boundary while it runs.
type Engine struct {
	g    *game.FlipFlop
	diff Difficulty
	me   game.Color
	opp  game.Color
	ctx  context.Context
}

func New(g *game.FlipFlop, d Difficulty) (*Engine, error) {
	if !Valid(d) {
		return nil, apperrors.ErrInvalidAIDifficulty
	}
	if d == "" {
		d = Medium
	}
	return &Engine{g: g, diff: d}, nil
}

// Reset points the engine at a fresh game after a rematch.
func (e *Engine) Reset(g *game.FlipFlop) { e.g = g }

// ChooseMove returns the best move found for the given side, or nil when the
// side has no legal move. Cancelling the context returns the best move found
// so far rather than an error.
func (e *Engine) ChooseMove(ctx context.Context, me game.Color) (*game.Move, error) {
	if e.g.Turn() != me {
		return nil, apperrors.ErrNotYourTurn
	}
	e.ctx = ctx
	e.me = me
	e.opp = me.Opponent()

	moves := e.g.ComputeMoves(me)
	if e.g.InCheck(me) {
		moves = e.safeMoves(moves, me)
	}
	if len(moves) == 0 {
		return nil, nil
	}

	best := moves[0]
	bestScore := -maxScore
	for _, m := range moves {
		if e.cancelled() {
			break
		}
		if err := e.g.Apply(m.From, m.To); err != nil {
			continue
		}
		score := e.minimax(e.diff.depth() - 1)
		e.g.Undo()
		if score > bestScore {
			bestScore = score
			best = m
		}
	}
	return &best, nil
}

func (e *Engine) cancelled() bool {
	select {
	case <-e.ctx.Done():
		return true
	default:
		return false
	}
}

// Names for the AI player slot, shown to humans with an "(AI)" suffix.
var names = []string{
	"Pivot", "Quill", "Vector", "Nimbus", "Strobe",
	"Lattice", "Aster", "Fathom", "Onyx", "Tessera",
	"Cinder", "Pylon", "Marlow", "Vesper", "Fennec",
}

func PickName() string {
	return names[rand.IntN(len(names))] + " (AI)"
}
