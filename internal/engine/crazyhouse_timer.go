package engine

import (
	"github.com/siddkalani/decaychess/internal/clock"
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// dropWindowMs is the fresh drop-timer budget for a non-pawn pocket piece.
const dropWindowMs = clock.DropWindowMs

// crazyhouseTimerEngine layers the sequential drop-timer machinery on top of
// the standard crazyhouse rules. Only the head of the pocket is droppable,
// and only the on-move player's head ticks; the opponent's head is paused
// with its remaining budget stored on the piece itself.
type crazyhouseTimerEngine struct{}

func (crazyhouseTimerEngine) ValidateAndApply(s *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	if out, done := metaAction(s, a, color, nowMs); done {
		return out
	}
	c, stop := begin(s, color, nowMs, false)
	if stop != nil {
		return *stop
	}

	evicted := expireHeads(c, color, nowMs)

	switch a.Kind {
	case ActionMove:
		return applyCrazyhouseMove(c, a, color, nowMs)

	case ActionDrop:
		if evicted {
			// The head the player was aiming at is gone. Keep the turn, but
			// the eviction (and the clock aging) must be committed.
			c.TurnStartTimestamp = nowMs
			return Outcome{
				Kind:   OutcomeWarning,
				State:  c,
				Code:   CodeDropExpired,
				Reason: "drop timer expired; piece forfeited",
			}
		}
		if code, reason := headEligible(c, color, a.Piece); code != "" {
			return rejected(code, reason)
		}
		return applyDrop(c, a, color, nowMs)
	}
	return rejectedf(CodeInvalidInput, "unsupported action %q", a.Kind)
}

// headEligible enforces sequential drops: the requested type must be the
// current head of the mover's pocket.
func headEligible(c *session.Session, color position.Color, pieceType string) (string, string) {
	pocket := c.Crazyhouse.PocketedPieces.Get(color)
	if len(pocket) == 0 {
		return CodePieceNotInPocket, "pocket is empty"
	}
	if pocket[0].Type == pieceType {
		return "", ""
	}
	for _, p := range pocket[1:] {
		if p.Type == pieceType {
			return CodeSequentialDropOnly, "only the head of the pocket may be dropped"
		}
	}
	return CodePieceNotAvailable, "no " + pieceType + " in pocket"
}

// expireHeads evicts every expired head from the mover's pocket, freezing
// each and starting a fresh window for its successor. Reports whether
// anything was evicted.
func expireHeads(c *session.Session, color position.Color, nowMs int64) bool {
	if c.Subvariant != session.SubvariantWithTimer {
		return false
	}
	cz := c.Crazyhouse
	timers := cz.DropTimers.Ptr(color)
	pocket := cz.PocketedPieces.Ptr(color)
	evicted := false

	for len(*pocket) > 0 {
		head := (*pocket)[0]
		if head.Type == "p" {
			break
		}
		exp, active := (*timers)[head.ID]
		if !active || exp > nowMs {
			break
		}
		delete(*timers, head.ID)
		*pocket = (*pocket)[1:]
		head.TimerPaused = false
		head.RemainingTime = 0
		frozen := cz.FrozenPieces.Ptr(color)
		*frozen = append(*frozen, head)
		evicted = true

		// Successor becomes head with a full fresh window.
		if len(*pocket) > 0 && (*pocket)[0].Type != "p" {
			(*timers)[(*pocket)[0].ID] = nowMs + dropWindowMs
		}
	}
	return evicted
}

// onPocketPush runs after a capture appends to the mover's pocket. The first
// non-pawn piece in an otherwise empty pocket starts ticking immediately;
// anything else waits behind its predecessors.
func onPocketPush(c *session.Session, color position.Color, pocketLen int, piece session.PocketPiece, nowMs int64) {
	if c.Subvariant != session.SubvariantWithTimer || piece.Type == "p" || pocketLen != 1 {
		return
	}
	timers := c.Crazyhouse.DropTimers.Ptr(color)
	if len(*timers) == 0 {
		(*timers)[piece.ID] = nowMs + dropWindowMs
	}
}

// onPocketPop clears any timer entry for a dropped piece.
func onPocketPop(c *session.Session, color position.Color, removed session.PocketPiece) {
	if c.Subvariant != session.SubvariantWithTimer {
		return
	}
	delete(*c.Crazyhouse.DropTimers.Ptr(color), removed.ID)
}

// onTurnHandoff implements the pause/resume exchange when the turn passes
// from mover to opponent: mover's head timer is parked on the piece as
// remainingTime, and the opponent's head resumes (or starts fresh).
func onTurnHandoff(c *session.Session, mover position.Color, nowMs int64) {
	if c.Subvariant != session.SubvariantWithTimer {
		return
	}
	cz := c.Crazyhouse

	// Pause the outgoing player's head.
	pocket := cz.PocketedPieces.Ptr(mover)
	timers := cz.DropTimers.Ptr(mover)
	if len(*pocket) > 0 {
		head := &(*pocket)[0]
		if exp, active := (*timers)[head.ID]; active {
			remaining := exp - nowMs
			if remaining < 0 {
				remaining = 0
			}
			head.TimerPaused = true
			head.RemainingTime = remaining
			delete(*timers, head.ID)
		}
	}

	// Resume (or start) the incoming player's head.
	opp := mover.Other()
	pocket = cz.PocketedPieces.Ptr(opp)
	timers = cz.DropTimers.Ptr(opp)
	if len(*pocket) == 0 || (*pocket)[0].Type == "p" {
		return
	}
	head := &(*pocket)[0]
	if _, active := (*timers)[head.ID]; active {
		return
	}
	budget := int64(dropWindowMs)
	if head.TimerPaused {
		budget = head.RemainingTime
	}
	(*timers)[head.ID] = nowMs + budget
	head.TimerPaused = false
	head.RemainingTime = 0
}

func (crazyhouseTimerEngine) LegalActions(s *session.Session, color position.Color, nowMs int64) []Action {
	out := plainMoveActions(s, color)
	if s.Status != session.StatusActive || s.ActiveColor != color || s.Crazyhouse == nil {
		return out
	}
	pocket := s.Crazyhouse.PocketedPieces.Get(color)
	if len(pocket) == 0 {
		return out
	}
	head := pocket[0]
	if head.Type != "p" {
		exp, active := s.Crazyhouse.DropTimers.Get(color)[head.ID]
		if !active || exp <= nowMs {
			return out
		}
	}
	pos, err := position.Parse(s.FEN)
	if err != nil {
		return out
	}
	for _, sq := range emptySquares(pos, head.Type == "p") {
		if _, err := pos.Put(head.Type, color, sq); err == nil {
			out = append(out, Action{Kind: ActionDrop, Piece: head.Type, To: sq})
		}
	}
	return out
}
