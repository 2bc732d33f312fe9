package engine

import (
	"github.com/siddkalani/decaychess/internal/clock"
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

const (
	queenDecayMs   = clock.QueenDecayMs
	majorDecayMs   = clock.MajorDecayMs
	decayRefreshMs = clock.DecayRefreshMs
)

// decayEngine plays standard chess where queens, and later one major piece
// per color, live on a decay countdown that only runs on the owner's turn.
// An expired timer freezes the piece in place until it is captured.
type decayEngine struct{}

func (decayEngine) ValidateAndApply(s *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	if out, done := metaAction(s, a, color, nowMs); done {
		return out
	}
	if a.Kind != ActionMove {
		return rejectedf(CodeInvalidInput, "unsupported action %q", a.Kind)
	}

	wasStarted := s.GameStarted
	turnStart := s.TurnStartTimestamp
	c, stop := begin(s, color, nowMs, false)
	if stop != nil {
		return *stop
	}

	// Decay timers tick only while their owner is on move, so the elapsed
	// turn time ages exactly the mover's timers.
	if wasStarted {
		ageDecayTimers(c.Decay, color, nowMs-turnStart)
	}

	if hasSquare(c.Decay.FrozenPieces.Get(color), a.From) {
		return rejectedf(CodePieceFrozen, "piece on %s is frozen", a.From)
	}

	pos, err := position.Parse(c.FEN)
	if err != nil {
		return rejected(CodeInvalidFEN, err.Error())
	}
	movedType, _, _ := pos.PieceAt(a.From)

	out := applyPlainMove(c, a, color, nowMs, terminalOpts{})
	if out.Kind != OutcomeApplied || out.Move == nil {
		return out
	}
	mv := *out.Move

	unfreezeOnCapture(c.Decay, mv)
	clearVanishedTimers(c.Decay, color.Other(), mv)
	armOrRefresh(c.Decay, color, movedType, mv)
	return out
}

// ageDecayTimers subtracts elapsed turn time from color's active timers and
// freezes any that reach zero.
func ageDecayTimers(d *session.Decay, color position.Color, elapsedMs int64) {
	if elapsedMs <= 0 {
		return
	}
	for _, t := range []*session.DecayTimer{
		d.QueenDecayTimers.Ptr(color),
		d.MajorPieceDecayTimers.Ptr(color),
	} {
		if !t.Active || t.Frozen {
			continue
		}
		t.TimeRemaining -= elapsedMs
		if t.TimeRemaining > 0 {
			continue
		}
		t.TimeRemaining = 0
		t.Active = false
		t.Frozen = true
		frozen := d.FrozenPieces.Ptr(color)
		*frozen = append(*frozen, t.Square)
	}
}

// unfreezeOnCapture releases a frozen square once the piece on it is taken.
func unfreezeOnCapture(d *session.Decay, mv session.MoveRecord) {
	if !mv.Capture {
		return
	}
	d.FrozenPieces.White = removeSquare(d.FrozenPieces.White, mv.To)
	d.FrozenPieces.Black = removeSquare(d.FrozenPieces.Black, mv.To)
}

// clearVanishedTimers deactivates the opponent's timers whose tracked piece
// was just captured off its recorded square. The major slot may be re-armed
// by a later major move; a captured queen never decays again.
func clearVanishedTimers(d *session.Decay, opponent position.Color, mv session.MoveRecord) {
	if !mv.Capture {
		return
	}
	if q := d.QueenDecayTimers.Ptr(opponent); q.Active && q.Square == mv.To {
		q.Active = false
		q.Square = ""
	}
	if m := d.MajorPieceDecayTimers.Ptr(opponent); m.Active && m.Square == mv.To {
		*m = session.DecayTimer{}
	}
}

// armOrRefresh runs the queen and major-piece machinery for the mover after
// a committed move.
func armOrRefresh(d *session.Decay, color position.Color, movedType string, mv session.MoveRecord) {
	switch movedType {
	case "q":
		q := d.QueenDecayTimers.Ptr(color)
		if q.Frozen {
			return
		}
		if !q.Active {
			if q.MoveCount > 0 {
				// Timer was cleared after the tracked queen vanished.
				return
			}
			d.DecayActive = true
			*q = session.DecayTimer{
				Active:        true,
				TimeRemaining: queenDecayMs,
				MoveCount:     1,
				Square:        mv.To,
				PieceType:     "q",
			}
			return
		}
		q.MoveCount++
		q.TimeRemaining += decayRefreshMs
		if q.TimeRemaining > queenDecayMs {
			q.TimeRemaining = queenDecayMs
		}
		q.Square = mv.To

	case "r", "n", "b":
		// Major machinery only runs once the color's queen has frozen.
		if !d.QueenDecayTimers.Get(color).Frozen {
			return
		}
		m := d.MajorPieceDecayTimers.Ptr(color)
		if m.Frozen {
			return
		}
		if !m.Active {
			*m = session.DecayTimer{
				Active:        true,
				TimeRemaining: majorDecayMs,
				MoveCount:     1,
				Square:        mv.To,
				PieceType:     movedType,
			}
			return
		}
		// Another major moving does not touch the tracked piece's timer.
		if mv.From != m.Square {
			return
		}
		m.MoveCount++
		m.TimeRemaining += decayRefreshMs
		if m.TimeRemaining > majorDecayMs {
			m.TimeRemaining = majorDecayMs
		}
		m.Square = mv.To
	}
}

func (decayEngine) LegalActions(s *session.Session, color position.Color, nowMs int64) []Action {
	moves := plainMoveActions(s, color)
	if s.Decay == nil || len(moves) == 0 {
		return moves
	}

	// Project squares that are frozen now, or whose timer would already
	// have expired this turn.
	blocked := append([]string(nil), s.Decay.FrozenPieces.Get(color)...)
	elapsed := int64(0)
	if s.GameStarted {
		elapsed = nowMs - s.TurnStartTimestamp
	}
	for _, t := range []session.DecayTimer{
		s.Decay.QueenDecayTimers.Get(color),
		s.Decay.MajorPieceDecayTimers.Get(color),
	} {
		if t.Active && !t.Frozen && t.TimeRemaining <= elapsed {
			blocked = append(blocked, t.Square)
		}
	}

	out := moves[:0]
	for _, m := range moves {
		if !hasSquare(blocked, m.From) {
			out = append(out, m)
		}
	}
	return out
}
