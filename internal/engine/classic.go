package engine

import (
	"errors"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// classicEngine covers all three classic time controls; they differ only in
// the clock regime, which lives on the session.
type classicEngine struct{}

func (classicEngine) ValidateAndApply(s *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	if out, done := metaAction(s, a, color, nowMs); done {
		return out
	}
	if a.Kind != ActionMove {
		return rejectedf(CodeInvalidInput, "unsupported action %q", a.Kind)
	}

	c, stop := begin(s, color, nowMs, false)
	if stop != nil {
		return *stop
	}
	return applyPlainMove(c, a, color, nowMs, terminalOpts{})
}

// applyPlainMove validates and commits a standard chess move on an already
// clock-aged clone. Shared by the classic and decay engines.
func applyPlainMove(c *session.Session, a Action, color position.Color, nowMs int64, opts terminalOpts) Outcome {
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
	terminal := checkTerminal(c, next, color, nowMs, opts)

	applied := c.MoveHistory[len(c.MoveHistory)-1]
	return Outcome{Kind: OutcomeApplied, State: c, Move: &applied, Terminal: terminal}
}

func (classicEngine) LegalActions(s *session.Session, color position.Color, nowMs int64) []Action {
	return plainMoveActions(s, color)
}

// plainMoveActions lists every legal standard move for color, or nothing if
// it is not their turn.
func plainMoveActions(s *session.Session, color position.Color) []Action {
	if s.Status != session.StatusActive || s.ActiveColor != color {
		return nil
	}
	pos, err := position.Parse(s.FEN)
	if err != nil {
		return nil
	}
	moves := pos.LegalMoves()
	out := make([]Action, 0, len(moves))
	for _, m := range moves {
		out = append(out, Action{Kind: ActionMove, From: m.From, To: m.To, Promotion: m.Promotion})
	}
	return out
}
