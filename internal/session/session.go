// Package session holds the authoritative per-game state. The at-rest form
// is plain JSON: everything here must survive a marshal/unmarshal round trip
// losslessly, because the dispatcher commits whole sessions to the store and
// rehydrates them on every action.
package session

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/siddkalani/decaychess/internal/position"
)

type Variant string

const (
	VariantClassic    Variant = "classic"
	VariantCrazyhouse Variant = "crazyhouse"
	VariantSixPointer Variant = "sixpointer"
	VariantDecay      Variant = "decay"
)

type Subvariant string

const (
	SubvariantNone      Subvariant = ""
	SubvariantBullet    Subvariant = "bullet"
	SubvariantBlitz     Subvariant = "blitz"
	SubvariantStandard  Subvariant = "standard"
	SubvariantWithTimer Subvariant = "withTimer"
)

// Key returns the store/queue key form, e.g. "classic:blitz" or "decay".
func Key(v Variant, sub Subvariant) string {
	if sub == SubvariantNone {
		return string(v)
	}
	return string(v) + ":" + string(sub)
}

// AllKeys lists every playable (variant, subvariant) pair.
func AllKeys() []string {
	return []string{
		"classic:bullet", "classic:blitz", "classic:standard",
		"crazyhouse:standard", "crazyhouse:withTimer",
		"sixpointer", "decay",
	}
}

// ParseKey splits a variant key back into its parts.
func ParseKey(key string) (Variant, Subvariant, error) {
	for _, known := range AllKeys() {
		if known == key {
			parts := strings.SplitN(key, ":", 2)
			if len(parts) == 1 {
				return Variant(parts[0]), SubvariantNone, nil
			}
			return Variant(parts[0]), Subvariant(parts[1]), nil
		}
	}
	return "", "", fmt.Errorf("unknown variant key %q", key)
}

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Player is the resolved participant record snapshotted at match time.
type Player struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
	Avatar      string `json:"avatar,omitempty"`
	Title       string `json:"title,omitempty"`
}

// MoveRecord is one applied action. Type "timeout" marks the synthetic 6PT
// penalty entry; "drop" marks crazyhouse drops.
type MoveRecord struct {
	Number    int            `json:"number"`
	Color     position.Color `json:"color"`
	Type      string         `json:"type"` // move|drop|timeout
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Piece     string         `json:"piece,omitempty"`
	Promotion string         `json:"promotion,omitempty"`
	SAN       string         `json:"san,omitempty"`
	Capture   bool           `json:"capture,omitempty"`
	Captured  string         `json:"captured,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// PocketPiece is one captured piece waiting in a crazyhouse pocket.
// RemainingTime is only meaningful while TimerPaused is set; the live
// expiration for the running head lives in DropTimers, keyed by ID.
type PocketPiece struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	CapturedAt    int64  `json:"capturedAt"`
	TimerPaused   bool   `json:"timerPaused,omitempty"`
	RemainingTime int64  `json:"remainingTime,omitempty"`
}

// DecayTimer tracks one decaying piece (queen, or one major piece after the
// queen froze). TimeRemaining is authoritative; it is aged in place by the
// engine before each of the owner's moves.
type DecayTimer struct {
	Active        bool   `json:"active"`
	Frozen        bool   `json:"frozen"`
	TimeRemaining int64  `json:"timeRemaining"`
	MoveCount     int    `json:"moveCount"`
	Square        string `json:"square,omitempty"`
	PieceType     string `json:"pieceType,omitempty"`
}

// FoulIncident records a rule-adjacent event kept for review (6PT final-move
// recapture compensation). It never alters the mechanical outcome.
type FoulIncident struct {
	Type      string         `json:"type"`
	By        position.Color `json:"by"`
	Timestamp int64          `json:"timestamp"`
}

// Result is written once, atomically with the status transition.
type Result struct {
	Result  string         `json:"result,omitempty"` // checkmate|timeout|resignation|draw|points
	Reason  string         `json:"reason,omitempty"`
	Winner  position.Color `json:"winner,omitempty"` // empty on draw
	EndedAt int64          `json:"endedAt,omitempty"`
}

// ByColor pairs a value per side.
type ByColor[T any] struct {
	White T `json:"white"`
	Black T `json:"black"`
}

func (b *ByColor[T]) Get(c position.Color) T {
	if c == position.White {
		return b.White
	}
	return b.Black
}

func (b *ByColor[T]) Set(c position.Color, v T) {
	if c == position.White {
		b.White = v
	} else {
		b.Black = v
	}
}

// Ptr returns a pointer to the side's slot for in-place mutation.
func (b *ByColor[T]) Ptr(c position.Color) *T {
	if c == position.White {
		return &b.White
	}
	return &b.Black
}

// Crazyhouse is the pocket sub-state shared by both crazyhouse subvariants.
// DropTimers and FrozenPieces stay empty for the standard subvariant.
type Crazyhouse struct {
	PocketedPieces ByColor[[]PocketPiece]     `json:"pocketedPieces"`
	DropTimers     ByColor[map[string]int64]  `json:"dropTimers,omitempty"`
	FrozenPieces   ByColor[[]PocketPiece]     `json:"frozenPieces,omitempty"`
	// Squares currently occupied by promoted pawns; capturing one pockets a
	// pawn, not the promoted piece.
	PromotedSquares []string `json:"promotedSquares,omitempty"`
}

// Decay is the decay-variant sub-state.
type Decay struct {
	DecayActive           bool                 `json:"decayActive"`
	QueenDecayTimers      ByColor[DecayTimer]  `json:"queenDecayTimers"`
	MajorPieceDecayTimers ByColor[DecayTimer]  `json:"majorPieceDecayTimers"`
	FrozenPieces          ByColor[[]string]    `json:"frozenPieces"`
}

// SixPointer is the 6PT sub-state.
type SixPointer struct {
	MovesPlayed        ByColor[int]   `json:"movesPlayed"`
	BonusMoves         ByColor[int]   `json:"bonusMoves"`
	MaxMoves           int            `json:"maxMoves"`
	Points             ByColor[int]   `json:"points"`
	TimeoutPenalties   ByColor[int]   `json:"timeoutPenalties"`
	LastTimeoutPenalty ByColor[int64] `json:"lastTimeoutPenalty,omitempty"`
	FoulIncidents      []FoulIncident `json:"foulIncidents,omitempty"`
}

// Session is the whole authoritative game state.
type Session struct {
	ID         string     `json:"sessionId"`
	Variant    Variant    `json:"variant"`
	Subvariant Subvariant `json:"subvariant,omitempty"`
	Status     Status     `json:"status"`

	Players ByColor[Player] `json:"players"`

	FEN         string         `json:"fen"`
	ActiveColor position.Color `json:"activeColor"`

	MoveHistory     []MoveRecord     `json:"moveHistory"`
	PositionHistory []string         `json:"positionHistory"`
	RepetitionMap   map[string]int   `json:"repetitionMap"`
	CapturedPieces  ByColor[[]string] `json:"capturedPieces"`

	// Clocks, all milliseconds.
	Clocks             ByColor[int64] `json:"clocks"`
	BaseTime           int64          `json:"baseTime"`
	Increment          int64          `json:"increment"`
	TurnStartTimestamp int64          `json:"turnStartTimestamp"`
	LastMoveTimestamp  int64          `json:"lastMoveTimestamp,omitempty"`
	GameStarted        bool           `json:"gameStarted"`
	FirstMoveTimestamp int64          `json:"firstMoveTimestamp,omitempty"`
	CreatedAt          int64          `json:"createdAt"`

	// Pending draw offer by color, cleared by the offerer's opponent acting.
	DrawOfferBy position.Color `json:"drawOfferBy,omitempty"`

	Result Result `json:"result"`

	Crazyhouse *Crazyhouse `json:"crazyhouse,omitempty"`
	Decay      *Decay      `json:"decay,omitempty"`
	SixPointer *SixPointer `json:"sixPointer,omitempty"`
}

// TimeControl describes the clock regime for a variant key.
type TimeControl struct {
	BaseTime  int64 // ms; per-move budget for sixpointer
	Increment int64 // ms
	PerMove   bool
}

// TimeControlFor returns the fixed regime for each variant.
func TimeControlFor(v Variant, sub Subvariant) TimeControl {
	switch v {
	case VariantClassic:
		switch sub {
		case SubvariantBullet:
			return TimeControl{BaseTime: 60_000}
		case SubvariantBlitz:
			return TimeControl{BaseTime: 180_000, Increment: 2_000}
		default:
			return TimeControl{BaseTime: 600_000}
		}
	case VariantCrazyhouse:
		return TimeControl{BaseTime: 180_000, Increment: 2_000}
	case VariantDecay:
		return TimeControl{BaseTime: 180_000, Increment: 2_000}
	case VariantSixPointer:
		return TimeControl{BaseTime: 30_000, PerMove: true}
	}
	return TimeControl{BaseTime: 600_000}
}

// New creates an active session between two resolved players. startFEN is
// the standard position except for six-pointer, where the caller supplies
// a vetted middlegame FEN.
func New(v Variant, sub Subvariant, white, black Player, startFEN string, nowMs int64) *Session {
	tc := TimeControlFor(v, sub)
	s := &Session{
		ID:          uuid.NewString(),
		Variant:     v,
		Subvariant:  sub,
		Status:      StatusActive,
		FEN:         startFEN,
		ActiveColor: position.White,
		BaseTime:    tc.BaseTime,
		Increment:   tc.Increment,
		Clocks: ByColor[int64]{
			White: tc.BaseTime,
			Black: tc.BaseTime,
		},
		RepetitionMap:   map[string]int{},
		PositionHistory: []string{startFEN},
		CreatedAt:       nowMs,
	}
	s.Players.White = white
	s.Players.Black = black

	switch v {
	case VariantCrazyhouse:
		s.Crazyhouse = &Crazyhouse{}
		if sub == SubvariantWithTimer {
			s.Crazyhouse.DropTimers = ByColor[map[string]int64]{
				White: map[string]int64{},
				Black: map[string]int64{},
			}
		}
	case VariantDecay:
		s.Decay = &Decay{}
	case VariantSixPointer:
		s.SixPointer = &SixPointer{MaxMoves: 6}
	}
	return s
}

// ColorOf resolves a participant's color, or "" if they are not playing.
func (s *Session) ColorOf(userID string) position.Color {
	switch userID {
	case s.Players.White.UserID:
		return position.White
	case s.Players.Black.UserID:
		return position.Black
	}
	return ""
}

// IsParticipant reports whether the user plays in this session.
func (s *Session) IsParticipant(userID string) bool {
	return s.ColorOf(userID) != ""
}

// Clone deep-copies the session through its JSON form, so a failed engine
// call can never leave a partially mutated state behind.
func (s *Session) Clone() (*Session, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session clone: %w", err)
	}
	var out Session
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode session clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

// Decode rehydrates a session from its stored JSON.
func Decode(b []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.normalize()
	return &s, nil
}

// Encode serializes the session for storage.
func (s *Session) Encode() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return b, nil
}

// normalize restores the empty containers JSON omits, matching what New
// builds so that round-tripped sessions compare equal.
func (s *Session) normalize() {
	if s.RepetitionMap == nil {
		s.RepetitionMap = map[string]int{}
	}
	if s.Crazyhouse != nil && s.Subvariant == SubvariantWithTimer {
		if s.Crazyhouse.DropTimers.White == nil {
			s.Crazyhouse.DropTimers.White = map[string]int64{}
		}
		if s.Crazyhouse.DropTimers.Black == nil {
			s.Crazyhouse.DropTimers.Black = map[string]int64{}
		}
	}
}

// RepetitionKey is the map key for the current position. For crazyhouse the
// pocket composition is folded in so "same board, different pocket" never
// counts as a repeat. Only the first four FEN fields identify a position.
func (s *Session) RepetitionKey() string {
	fields := strings.Fields(s.FEN)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	key := strings.Join(fields, " ")
	if s.Crazyhouse != nil {
		key += "|" + pocketSummary(s.Crazyhouse.PocketedPieces.White) +
			"/" + pocketSummary(s.Crazyhouse.PocketedPieces.Black)
	}
	return key
}

// pocketSummary canonicalizes a pocket as sorted piece letters ("nnp").
func pocketSummary(pocket []PocketPiece) string {
	letters := make([]string, 0, len(pocket))
	for _, p := range pocket {
		letters = append(letters, p.Type)
	}
	sort.Strings(letters)
	return strings.Join(letters, "")
}
