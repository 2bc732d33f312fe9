package engine

import (
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// Result reasons written into the session result record.
const (
	ResultCheckmate   = "checkmate"
	ResultTimeout     = "timeout"
	ResultResignation = "resignation"
	ResultDraw        = "draw"
	ResultPoints      = "points"

	ReasonStalemate    = "stalemate"
	ReasonInsufficient = "insufficient material"
	ReasonRepetition   = "threefold repetition"
	ReasonFiftyMove    = "fifty-move rule"
	ReasonAgreement    = "mutual agreement"
	ReasonFlagFall     = "clock expired"
	ReasonMovesDone    = "move caps reached"
)

// metaAction handles the variant-independent actions: resignation and the
// draw negotiation. Returns (outcome, true) when the action was consumed.
// Resign and draw actions are accepted from either participant regardless
// of whose turn it is.
func metaAction(s *session.Session, a Action, color position.Color, nowMs int64) (Outcome, bool) {
	switch a.Kind {
	case ActionResign, ActionDrawOffer, ActionDrawAccept, ActionDrawDecline:
	default:
		return Outcome{}, false
	}
	if s.Status != session.StatusActive {
		return rejected(CodeGameEnded, "game already finished"), true
	}
	c, err := s.Clone()
	if err != nil {
		return rejected(CodeInternalError, err.Error()), true
	}

	switch a.Kind {
	case ActionResign:
		finalize(c, ResultResignation, "resignation", color.Other(), nowMs)
		return Outcome{Kind: OutcomeApplied, State: c, Terminal: true}, true

	case ActionDrawOffer:
		if c.DrawOfferBy == color {
			return rejected(CodeInvalidState, "draw offer already pending"), true
		}
		// Crossing offers count as agreement.
		if c.DrawOfferBy == color.Other() {
			finalize(c, ResultDraw, ReasonAgreement, "", nowMs)
			return Outcome{Kind: OutcomeApplied, State: c, Terminal: true}, true
		}
		c.DrawOfferBy = color
		return Outcome{Kind: OutcomeApplied, State: c}, true

	case ActionDrawAccept:
		if c.DrawOfferBy != color.Other() {
			return rejected(CodeInvalidState, "no draw offer to accept"), true
		}
		finalize(c, ResultDraw, ReasonAgreement, "", nowMs)
		return Outcome{Kind: OutcomeApplied, State: c, Terminal: true}, true

	case ActionDrawDecline:
		if c.DrawOfferBy != color.Other() {
			return rejected(CodeInvalidState, "no draw offer to decline"), true
		}
		c.DrawOfferBy = ""
		return Outcome{Kind: OutcomeApplied, State: c}, true
	}
	return Outcome{}, false
}

// begin runs the shared preamble for board actions: status and turn checks,
// then main-clock aging on a deep clone. A nil *Outcome means proceed with
// the returned clone; otherwise the outcome is final. perMove skips the
// cumulative deduction (six-pointer budgets are handled by that engine).
func begin(s *session.Session, color position.Color, nowMs int64, perMove bool) (*session.Session, *Outcome) {
	if s.Status != session.StatusActive {
		out := rejected(CodeGameEnded, "game already finished")
		return nil, &out
	}
	if s.ActiveColor != color {
		out := rejected(CodeWrongTurn, "not your turn")
		return nil, &out
	}
	c, err := s.Clone()
	if err != nil {
		out := rejected(CodeInternalError, err.Error())
		return nil, &out
	}

	// The clock only starts once the first move is on the board; that move
	// itself is free.
	if !c.GameStarted {
		c.GameStarted = true
		c.FirstMoveTimestamp = nowMs
		return c, nil
	}
	if perMove {
		return c, nil
	}

	remaining := c.Clocks.Get(color) - (nowMs - c.TurnStartTimestamp)
	if remaining <= 0 {
		c.Clocks.Set(color, 0)
		finalize(c, ResultTimeout, ReasonFlagFall, color.Other(), nowMs)
		out := Outcome{Kind: OutcomeApplied, State: c, Code: CodeTimeout, Terminal: true}
		return nil, &out
	}
	c.Clocks.Set(color, remaining)
	return c, nil
}

// finalize transitions to finished and writes the result record. Winner is
// empty for draws.
func finalize(s *session.Session, result, reason string, winner position.Color, nowMs int64) {
	s.Status = session.StatusFinished
	s.DrawOfferBy = ""
	s.Result = session.Result{
		Result:  result,
		Reason:  reason,
		Winner:  winner,
		EndedAt: nowMs,
	}
}

// commitMove performs the shared post-apply bookkeeping: history, repetition
// accounting, increment, turn flip. The variant engine must have already
// updated FEN-adjacent sub-state (pockets, decay timers) so the repetition
// key sees the final shape.
func commitMove(s *session.Session, rec session.MoveRecord, newFEN string, mover position.Color, nowMs int64) {
	rec.Number = len(s.MoveHistory) + 1
	rec.Timestamp = nowMs

	s.FEN = newFEN
	s.ActiveColor = mover.Other()
	s.MoveHistory = append(s.MoveHistory, rec)
	s.PositionHistory = append(s.PositionHistory, newFEN)
	s.RepetitionMap[s.RepetitionKey()]++
	s.LastMoveTimestamp = nowMs

	if s.Increment > 0 && !session.TimeControlFor(s.Variant, s.Subvariant).PerMove {
		clock := s.Clocks.Get(mover) + s.Increment
		if clock > s.BaseTime {
			clock = s.BaseTime
		}
		s.Clocks.Set(mover, clock)
	}
	s.TurnStartTimestamp = nowMs

	// Any board action by the offerer's opponent voids a pending offer.
	if s.DrawOfferBy != "" && s.DrawOfferBy != mover {
		s.DrawOfferBy = ""
	}

	if rec.Capture && rec.Captured != "" {
		captured := s.CapturedPieces.Ptr(mover)
		*captured = append(*captured, rec.Captured)
	}
}
