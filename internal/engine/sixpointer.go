package engine

import (
	"errors"

	"github.com/siddkalani/decaychess/internal/clock"
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

const (
	perMoveBudgetMs      = int64(clock.PerMoveBudgetMs)
	penaltyRateLimitMs   = 5_000
	finalMoveRecaptureEv = "final_move_recapture"
)

// piecePoints is the capture scoring table.
var piecePoints = map[string]int{"p": 1, "n": 3, "b": 3, "r": 5, "q": 9}

// sixPointerEngine plays the capped-move points variant: six moves per side
// (plus earned bonus moves), 30 seconds per move, captures score points.
// Running out the per-move clock costs a point and the turn, never the game.
type sixPointerEngine struct{}

func (sixPointerEngine) ValidateAndApply(s *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	if out, done := metaAction(s, a, color, nowMs); done {
		return out
	}

	wasStarted := s.GameStarted
	turnStart := s.TurnStartTimestamp
	c, stop := begin(s, color, nowMs, true)
	if stop != nil {
		return *stop
	}

	switch a.Kind {
	case ActionMove:
		return applySixPointerMove(c, a, color, nowMs)
	case ActionTimeoutPenalty:
		reference := c.CreatedAt
		if wasStarted {
			reference = turnStart
		}
		return applyTimeoutPenalty(c, color, reference, nowMs)
	}
	return rejectedf(CodeInvalidInput, "unsupported action %q", a.Kind)
}

func applySixPointerMove(c *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	sp := c.SixPointer
	limit := sp.MaxMoves + sp.BonusMoves.Get(color)
	if sp.MovesPlayed.Get(color) >= limit {
		return rejectedf(CodeMoveLimitExceeded, "all %d moves used", limit)
	}

	pos, err := position.Parse(c.FEN)
	if err != nil {
		return rejected(CodeInvalidFEN, err.Error())
	}
	next, mv, err := pos.Apply(a.From, a.To, a.Promotion)
	if err != nil {
		if errors.Is(err, position.ErrIllegalMove) {
			return rejectedf(CodeIllegalMove, "illegal move %s%s", a.From, a.To)
		}
		return rejected(CodeInvalidMove, err.Error())
	}

	if mv.Capture {
		pts := sp.Points.Ptr(color)
		*pts += piecePoints[mv.Captured]
	}
	*sp.MovesPlayed.Ptr(color) = sp.MovesPlayed.Get(color) + 1

	// Final-move recapture compensation: taking a piece with your last move
	// when the opponent is out of moves but could recapture earns them one
	// bonus move, recorded as a foul incident.
	opp := color.Other()
	if sp.MovesPlayed.Get(color) == limit && mv.Capture &&
		movesRemaining(sp, opp) == 0 && hasRecapture(next, opp, mv.To) {
		*sp.BonusMoves.Ptr(opp) = sp.BonusMoves.Get(opp) + 1
		sp.FoulIncidents = append(sp.FoulIncidents, session.FoulIncident{
			Type:      finalMoveRecaptureEv,
			By:        color,
			Timestamp: nowMs,
		})
	}

	rec := session.MoveRecord{
		Color:     color,
		Type:      "move",
		From:      mv.From,
		To:        mv.To,
		Promotion: mv.Promotion,
		SAN:       mv.SAN,
		Capture:   mv.Capture,
		Captured:  mv.Captured,
	}
	commitMove(c, rec, next.FEN(), color, nowMs)
	resetPerMoveClocks(c)

	terminal := checkTerminal(c, next, color, nowMs, terminalOpts{})
	if !terminal {
		terminal = settleIfMovesExhausted(c, nowMs)
	}

	applied := c.MoveHistory[len(c.MoveHistory)-1]
	return Outcome{Kind: OutcomeApplied, State: c, Move: &applied, Terminal: terminal}
}

// applyTimeoutPenalty converts an expired per-move clock into a one-point
// deduction and a turn pass. The clone has already passed status and turn
// checks; reference is when the current turn began server-side.
func applyTimeoutPenalty(c *session.Session, color position.Color, reference, nowMs int64) Outcome {
	sp := c.SixPointer
	limit := sp.MaxMoves + sp.BonusMoves.Get(color)
	if sp.MovesPlayed.Get(color) >= limit {
		return rejectedf(CodeMoveLimitExceeded, "all %d moves used", limit)
	}
	if last := sp.LastTimeoutPenalty.Get(color); last != 0 && nowMs-last < penaltyRateLimitMs {
		return rejected(CodeInvalidState, "timeout penalty already applied")
	}
	if nowMs-reference < perMoveBudgetMs {
		return rejected(CodeInvalidState, "per-move clock has not expired")
	}

	if pts := sp.Points.Ptr(color); *pts > 0 {
		*pts--
	}
	*sp.TimeoutPenalties.Ptr(color) = sp.TimeoutPenalties.Get(color) + 1
	sp.LastTimeoutPenalty.Set(color, nowMs)
	*sp.MovesPlayed.Ptr(color) = sp.MovesPlayed.Get(color) + 1

	toggled, err := position.ToggleTurn(c.FEN)
	if err != nil {
		return rejected(CodeInvalidFEN, err.Error())
	}
	rec := session.MoveRecord{Color: color, Type: "timeout"}
	commitMove(c, rec, toggled, color, nowMs)
	resetPerMoveClocks(c)

	terminal := settleIfMovesExhausted(c, nowMs)
	applied := c.MoveHistory[len(c.MoveHistory)-1]
	return Outcome{
		Kind:     OutcomeWarning,
		State:    c,
		Move:     &applied,
		Code:     CodeTimeoutPenalty,
		Reason:   "per-move clock expired; one point deducted",
		Terminal: terminal,
	}
}

func resetPerMoveClocks(c *session.Session) {
	c.Clocks = session.ByColor[int64]{White: perMoveBudgetMs, Black: perMoveBudgetMs}
}

func movesRemaining(sp *session.SixPointer, color position.Color) int {
	return sp.MaxMoves + sp.BonusMoves.Get(color) - sp.MovesPlayed.Get(color)
}

// hasRecapture reports whether defender, to move in pos, can legally capture
// on the given square.
func hasRecapture(pos *position.Position, defender position.Color, square string) bool {
	if pos.Turn() != defender {
		return false
	}
	for _, m := range pos.LegalMoves() {
		if m.To == square && m.Capture {
			return true
		}
	}
	return false
}

// settleIfMovesExhausted finalizes on points once both sides have used every
// move they are entitled to.
func settleIfMovesExhausted(c *session.Session, nowMs int64) bool {
	sp := c.SixPointer
	if movesRemaining(sp, position.White) > 0 || movesRemaining(sp, position.Black) > 0 {
		return false
	}
	switch {
	case sp.Points.White > sp.Points.Black:
		finalize(c, ResultPoints, ReasonMovesDone, position.White, nowMs)
	case sp.Points.Black > sp.Points.White:
		finalize(c, ResultPoints, ReasonMovesDone, position.Black, nowMs)
	default:
		finalize(c, ResultDraw, ReasonMovesDone, "", nowMs)
	}
	return true
}

func (sixPointerEngine) LegalActions(s *session.Session, color position.Color, nowMs int64) []Action {
	if s.SixPointer == nil || movesRemaining(s.SixPointer, color) <= 0 {
		return nil
	}
	return plainMoveActions(s, color)
}
