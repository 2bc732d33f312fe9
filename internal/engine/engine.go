// Package engine implements the five variant rule machines. Engines are
// pure: they take a session value, a proposed action, the acting color and a
// server timestamp, and return an outcome. All time semantics are driven by
// the nowMs argument: engines never read clocks, sleep, or touch I/O, so a
// given (state, action, nowMs) triple always produces the same outcome.
package engine

import (
	"fmt"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

type ActionKind string

const (
	ActionMove           ActionKind = "move"
	ActionDrop           ActionKind = "drop"
	ActionTimeoutPenalty ActionKind = "timeoutPenalty"
	ActionResign         ActionKind = "resign"
	ActionDrawOffer      ActionKind = "drawOffer"
	ActionDrawAccept     ActionKind = "drawAccept"
	ActionDrawDecline    ActionKind = "drawDecline"
)

// Action is the sum of everything a player can submit against a session.
type Action struct {
	Kind      ActionKind `json:"kind"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	Promotion string     `json:"promotion,omitempty"`
	Piece     string     `json:"piece,omitempty"` // drop piece type
}

type OutcomeKind string

const (
	// OutcomeApplied: State is the new authoritative session.
	OutcomeApplied OutcomeKind = "applied"
	// OutcomeRejected: the action was refused and the session is untouched.
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeWarning: a soft failure that still mutated state (drop-timer
	// eviction, 6PT timeout penalty); State must be committed.
	OutcomeWarning OutcomeKind = "warning"
)

// Rejection / warning codes surfaced to clients.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidMove        = "INVALID_MOVE"
	CodeInvalidPlayer      = "INVALID_PLAYER"
	CodeInvalidState       = "INVALID_STATE"
	CodeInvalidFEN         = "INVALID_FEN"
	CodeWrongTurn          = "WRONG_TURN"
	CodeIllegalMove        = "ILLEGAL_MOVE"
	CodePieceFrozen        = "PIECE_FROZEN"
	CodeInvalidPawnDrop    = "INVALID_PAWN_DROP"
	CodeSquareOccupied     = "SQUARE_OCCUPIED"
	CodeSelfCheck          = "SELF_CHECK"
	CodePieceNotInPocket   = "PIECE_NOT_IN_POCKET"
	CodeSequentialDropOnly = "SEQUENTIAL_DROP_ONLY"
	CodePieceNotAvailable  = "PIECE_NOT_AVAILABLE"
	CodeMoveLimitExceeded  = "MOVE_LIMIT_EXCEEDED"
	CodeDropExpired        = "DROP_EXPIRED"
	CodeTimeoutPenalty     = "TIMEOUT_PENALTY"
	CodeTimeout            = "TIMEOUT"
	CodeGameEnded          = "GAME_ENDED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Outcome is the result of one engine invocation.
type Outcome struct {
	Kind     OutcomeKind
	State    *session.Session
	Move     *session.MoveRecord
	Code     string
	Reason   string
	Terminal bool
}

func rejected(code, reason string) Outcome {
	return Outcome{Kind: OutcomeRejected, Code: code, Reason: reason}
}

func rejectedf(code, format string, args ...any) Outcome {
	return rejected(code, fmt.Sprintf(format, args...))
}

// Engine is the per-variant rule machine contract.
type Engine interface {
	ValidateAndApply(s *session.Session, a Action, color position.Color, nowMs int64) Outcome
	LegalActions(s *session.Session, color position.Color, nowMs int64) []Action
}

// ForSession routes to the engine for the session's (variant, subvariant).
func ForSession(s *session.Session) (Engine, error) {
	return For(s.Variant, s.Subvariant)
}

// For returns the engine for a variant pair.
func For(v session.Variant, sub session.Subvariant) (Engine, error) {
	switch v {
	case session.VariantClassic:
		return classicEngine{}, nil
	case session.VariantCrazyhouse:
		if sub == session.SubvariantWithTimer {
			return crazyhouseTimerEngine{}, nil
		}
		return crazyhouseEngine{}, nil
	case session.VariantSixPointer:
		return sixPointerEngine{}, nil
	case session.VariantDecay:
		return decayEngine{}, nil
	}
	return nil, fmt.Errorf("no engine for variant %q/%q", v, sub)
}
