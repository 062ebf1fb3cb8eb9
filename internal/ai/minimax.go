package ai

import "github.com/park285/flipflop-server/internal/game"

const maxScore = 1_000_000

func (e *Engine) minimax(depth int) int {
	if e.cancelled() || depth <= 0 || e.g.Ended() {
		return e.evaluate()
	}

	if e.g.Turn() == e.me {
		moves := e.g.ComputeMoves(e.me)
		if e.g.InCheck(e.me) {
			moves = e.safeMoves(moves, e.me)
		}
		if len(moves) == 0 {
			return -maxScore
		}
		best := -maxScore
		for _, m := range moves {
			if err := e.g.Apply(m.From, m.To); err != nil {
				continue
			}
			if score := e.minimax(depth - 1); score > best {
				best = score
			}
			e.g.Undo()
		}
		return best
	}

	best := maxScore
	for _, m := range e.g.ComputeMoves(e.opp) {
		if err := e.g.Apply(m.From, m.To); err != nil {
			continue
		}
		if score := e.minimax(depth - 1); score < best {
			best = score
		}
		e.g.Undo()
	}
	return best
}

// safeMoves drops moves that leave the side's own goal occupied by the enemy.
func (e *Engine) safeMoves(moves []game.Move, c game.Color) []game.Move {
	out := make([]game.Move, 0, len(moves))
	for _, m := range moves {
		if err := e.g.Apply(m.From, m.To); err != nil {
			continue
		}
		safe := !e.g.InCheck(c)
		e.g.Undo()
		if safe {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) evaluate() int {
	if e.g.Ended() {
		switch e.g.Winner() {
		case e.me:
			return maxScore
		case e.opp:
			return -maxScore
		default:
			return 0
		}
	}

	if e.g.InCheck(e.opp) {
		return maxScore / 2
	}
	oppMoves := e.g.ComputeMoves(e.opp)
	if len(oppMoves) == 0 {
		return maxScore / 2
	}
	myMoves := e.g.ComputeMoves(e.me)

	score := 0
	score += len(myMoves) * 100
	score -= len(oppMoves) * 100
	score += e.winningMoves(myMoves, e.opp) * 1000
	score -= e.winningMoves(oppMoves, e.me) * 1000
	score += e.material(e.me) * 500
	score -= e.material(e.opp) * 500
	return score
}

// winningMoves counts moves that land on the defender's goal cell.
func (e *Engine) winningMoves(moves []game.Move, defender game.Color) int {
	goal := e.g.Goal(defender)
	n := 0
	for _, m := range moves {
		if m.To == goal {
			n++
		}
	}
	return n
}

func (e *Engine) material(c game.Color) int {
	return e.g.PieceCount(c)
}
