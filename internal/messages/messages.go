// Package messages defines the socket wire protocol: the event envelope,
// the inbound payloads the gateway accepts, and the outbound session
// snapshots it emits. Everything is plain JSON with an "event" discriminator.
package messages

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	InQueueJoin       = "queue:join"
	InQueueLeave      = "queue:leave"
	InQueueLiveCounts = "queue:get_live_counts"
	InTournamentJoin  = "tournament:join"
	InTournamentLeave = "tournament:leave"
	InMakeMove        = "game:makeMove"
	InPossibleMoves   = "game:getPossibleMoves"
	InTimeoutPenalty  = "game:timeoutPenalty"
	InResign          = "game:resign"
	InOfferDraw       = "game:offerDraw"
	InAcceptDraw      = "game:acceptDraw"
	InDeclineDraw     = "game:declineDraw"
)

// Outbound event names.
const (
	OutMatched       = "queue:matched"
	OutLiveCounts    = "queue:live_counts"
	OutCooldown      = "queue:cooldown"
	OutGameState     = "game:gameState"
	OutMove          = "game:move"
	OutPossibleMoves = "game:possibleMoves"
	OutTimer         = "game:timer"
	OutEnd           = "game:end"
	OutWarning       = "game:warning"
	OutError         = "game:error"
)

// Envelope is the framing for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode parses an envelope off the wire.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event")
	}
	return env, nil
}

// Encode frames an outbound event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Payload unmarshals the envelope body into a typed payload.
func (e Envelope) Payload(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// QueueJoin is the queue:join payload.
type QueueJoin struct {
	Variant    string `json:"variant"`
	Subvariant string `json:"subvariant,omitempty"`
}

// MoveInput is the client's proposed action inside game:makeMove. Type
// distinguishes ordinary moves from crazyhouse drops.
type MoveInput struct {
	Type      string `json:"type,omitempty"` // move (default) | drop
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Piece     string `json:"piece,omitempty"`
}

// MakeMove is the game:makeMove payload.
type MakeMove struct {
	SessionID  string    `json:"sessionId,omitempty"`
	Move       MoveInput `json:"move"`
	Variant    string    `json:"variant,omitempty"`
	Subvariant string    `json:"subvariant,omitempty"`
	TS         int64     `json:"ts,omitempty"`
}

// PossibleMoves is the game:getPossibleMoves payload.
type PossibleMoves struct {
	SessionID string `json:"sessionId,omitempty"`
	Square    string `json:"square"`
}

// TimeoutPenalty is the game:timeoutPenalty payload.
type TimeoutPenalty struct {
	SessionID string `json:"sessionId,omitempty"`
	TS        int64  `json:"ts,omitempty"`
}

// SessionRef is the payload for the session-scoped actions that carry no
// extra data (resign, draw negotiation).
type SessionRef struct {
	SessionID string `json:"sessionId,omitempty"`
}

// ErrorPayload is the game:error / game:warning body.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Matched is the queue:matched body.
type Matched struct {
	SessionID  string   `json:"sessionId"`
	Variant    string   `json:"variant"`
	Subvariant string   `json:"subvariant,omitempty"`
	Opponent   Opponent `json:"opponent"`
	Source     string   `json:"source"`
	GameState  any      `json:"gameState"`
}

// Opponent is the counterpart summary inside queue:matched.
type Opponent struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
	Avatar      string `json:"avatar,omitempty"`
	Title       string `json:"title,omitempty"`
}

// PossibleMovesResult is the game:possibleMoves body.
type PossibleMovesResult struct {
	SessionID string      `json:"sessionId"`
	Square    string      `json:"square,omitempty"`
	Moves     []MoveInput `json:"moves"`
}

// TimerPayload is the game:timer body: projected main clocks.
type TimerPayload struct {
	SessionID string `json:"sessionId"`
	WhiteTime int64  `json:"whiteTime"`
	BlackTime int64  `json:"blackTime"`
}

// LiveCounts is the queue:live_counts body: waiters per variant key.
type LiveCounts struct {
	Counts map[string]int64 `json:"counts"`
}

// CooldownPayload is the queue:cooldown body.
type CooldownPayload struct {
	RetryAfterMs int64 `json:"retryAfterMs"`
}
