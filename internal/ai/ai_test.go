package ai

import (
	"context"
	"testing"
	"time"

	"github.com/park285/flipflop-server/internal/game"
)

func newGame(t *testing.T) *game.FlipFlop {
	t.Helper()
	g, err := game.New(game.TypeFlipFlop3x3)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	return g
}

func TestInvalidDifficulty(t *testing.T) {
	if _, err := New(newGame(t), "impossible"); err == nil {
		t.Fatal("expected invalid_ai_difficulty")
	}
}

func TestChooseMoveIsLegal(t *testing.T) {
	for _, d := range []Difficulty{Easy, Medium, Hard} {
		g := newGame(t)
		e, err := New(g, d)
		if err != nil {
			t.Fatalf("New(%s): %v", d, err)
		}
		m, err := e.ChooseMove(context.Background(), game.White)
		if err != nil {
			t.Fatalf("ChooseMove(%s): %v", d, err)
		}
		if m == nil {
			t.Fatalf("ChooseMove(%s) found no move at the start position", d)
		}
		if err := g.Apply(m.From, m.To); err != nil {
			t.Fatalf("chosen move is illegal (%s): %v", d, err)
		}
	}
}

func TestChooseMoveRespectsTurn(t *testing.T) {
	g := newGame(t)
	e, _ := New(g, Easy)
	if _, err := e.ChooseMove(context.Background(), game.Black); err == nil {
		t.Fatal("expected not_your_turn for black at start")
	}
}

func TestChooseMoveEvictsInvader(t *testing.T) {
	g := newGame(t)
	from, _ := g.ParseSquare("B1")
	to, _ := g.ParseSquare("B3")
	if err := g.Apply(from, to); err != nil {
		t.Fatalf("setup move: %v", err)
	}

	// Black is in check; only moves clearing its goal are searched, and
	// every such move is a recapture onto the goal cell.
	e, _ := New(g, Medium)
	m, err := e.ChooseMove(context.Background(), game.Black)
	if err != nil || m == nil {
		t.Fatalf("ChooseMove: %v, %v", m, err)
	}
	if m.To != g.Goal(game.Black) {
		t.Fatalf("expected recapture onto the goal, got %+v", m)
	}
}

func TestChooseMoveStateRestoredAfterSearch(t *testing.T) {
	g := newGame(t)
	before := g.Board()
	e, _ := New(g, Hard)
	if _, err := e.ChooseMove(context.Background(), game.White); err != nil {
		t.Fatalf("ChooseMove: %v", err)
	}
	if g.Board() != before {
		t.Fatalf("search left the game mutated: %q", g.Board())
	}
}

func TestChooseMoveCancellation(t *testing.T) {
	g, err := game.New(game.TypeFlipFlop5x5)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	e, _ := New(g, Hard)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	m, err := e.ChooseMove(ctx, game.White)
	if err != nil {
		t.Fatalf("ChooseMove under cancellation: %v", err)
	}
	if m == nil {
		t.Fatal("cancellation should still yield the best move so far")
	}
	if err := g.Apply(m.From, m.To); err != nil {
		t.Fatalf("cancelled-search move is illegal: %v", err)
	}
}
