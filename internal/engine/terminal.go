package engine

import (
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// terminalOpts tunes terminal evaluation per variant. dropEscape, when set,
// is consulted on apparent mate/stalemate: a defender who can still drop a
// pocket piece is neither mated nor stalemated. skipMaterialDraw disables
// the insufficient-material draw (crazyhouse pockets are always material).
type terminalOpts struct {
	dropEscape       func(next *position.Position, defender position.Color) bool
	skipMaterialDraw bool
}

// checkTerminal evaluates the position reached by mover's committed action
// and finalizes the session if the game is over. Ordering per standard
// rules: checkmate, stalemate, insufficient material, repetition, fifty-move.
// Must run after commitMove so the repetition map includes this position.
func checkTerminal(s *session.Session, next *position.Position, mover position.Color, nowMs int64, opts terminalOpts) bool {
	defender := mover.Other()

	if next.InCheckmate() {
		if opts.dropEscape == nil || !opts.dropEscape(next, defender) {
			finalize(s, ResultCheckmate, ResultCheckmate, mover, nowMs)
			return true
		}
	} else if next.InStalemate() {
		if opts.dropEscape == nil || !opts.dropEscape(next, defender) {
			finalize(s, ResultDraw, ReasonStalemate, "", nowMs)
			return true
		}
	}

	if !opts.skipMaterialDraw && next.InsufficientMaterial() {
		finalize(s, ResultDraw, ReasonInsufficient, "", nowMs)
		return true
	}
	if s.RepetitionMap[s.RepetitionKey()] >= 3 {
		finalize(s, ResultDraw, ReasonRepetition, "", nowMs)
		return true
	}
	if next.HalfmoveClock() >= 100 {
		finalize(s, ResultDraw, ReasonFiftyMove, "", nowMs)
		return true
	}
	return false
}
