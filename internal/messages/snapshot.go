package messages

import (
	"github.com/siddkalani/decaychess/internal/clock"
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// Snapshot is the authoritative session view emitted as game:gameState and
// game:move. Timer values are projected to the timestamp the snapshot was
// built with, so clients can render clocks without trusting their own.
type Snapshot struct {
	SessionID  string                     `json:"sessionId"`
	Variant    string                     `json:"variant"`
	Subvariant string                     `json:"subvariant,omitempty"`
	Status     string                     `json:"status"`
	Players    session.ByColor[session.Player] `json:"players"`

	Board       Board               `json:"board"`
	TimeControl TimeControlView     `json:"timeControl"`
	Moves       []session.MoveRecord `json:"moves"`
	MoveCount   int                 `json:"moveCount"`
	LastMove    *session.MoveRecord `json:"lastMove,omitempty"`
	GameState   GameState           `json:"gameState"`
	UserColor   map[string]string   `json:"userColor"`
}

// Board is the position block of a snapshot.
type Board struct {
	FEN            string                    `json:"fen"`
	ActiveColor    position.Color            `json:"activeColor"`
	WhiteTime      int64                     `json:"whiteTime"`
	BlackTime      int64                     `json:"blackTime"`
	Increment      int64                     `json:"increment"`
	MoveHistory    []session.MoveRecord      `json:"moveHistory"`
	CapturedPieces session.ByColor[[]string] `json:"capturedPieces"`

	// Crazyhouse.
	PocketedPieces      *session.ByColor[[]session.PocketPiece] `json:"pocketedPieces,omitempty"`
	DropTimers          *session.ByColor[map[string]int64]      `json:"dropTimers,omitempty"`
	AvailableDropPieces *session.ByColor[[]clock.DropPieceView] `json:"availableDropPieces,omitempty"`
	PocketStatus        *session.ByColor[PocketStatusView]      `json:"pocketStatus,omitempty"`

	// FrozenPieces is shared by the crazyhouse and decay payloads under the
	// same key: forfeited pocket pieces per color for crazyhouse, frozen
	// board squares per color for decay.
	FrozenPieces any `json:"frozenPieces,omitempty"`

	// Decay.
	DecayActive           *bool                                `json:"decayActive,omitempty"`
	QueenDecayTimers      *session.ByColor[session.DecayTimer] `json:"queenDecayTimers,omitempty"`
	MajorPieceDecayTimers *session.ByColor[session.DecayTimer] `json:"majorPieceDecayTimers,omitempty"`

	// Six-pointer.
	MovesPlayed        *session.ByColor[int]    `json:"movesPlayed,omitempty"`
	BonusMoves         *session.ByColor[int]    `json:"bonusMoves,omitempty"`
	MaxMoves           *int                     `json:"maxMoves,omitempty"`
	Points             *session.ByColor[int]    `json:"points,omitempty"`
	TimeoutPenalties   *session.ByColor[int]    `json:"timeoutPenalties,omitempty"`
	LastTimeoutPenalty *session.ByColor[int64]  `json:"lastTimeoutPenalty,omitempty"`
	FoulIncidents      []session.FoulIncident   `json:"foulIncidents,omitempty"`
}

// PocketStatusView summarizes one side's drop pipeline: the current head,
// whether its timer is counting down right now, and how much of the pocket
// sits behind it or has been forfeited.
type PocketStatusView struct {
	HeadID        string `json:"headId,omitempty"`
	HeadType      string `json:"headType,omitempty"`
	TimerRunning  bool   `json:"timerRunning"`
	TimeRemaining int64  `json:"timeRemaining,omitempty"`
	QueuedCount   int    `json:"queuedCount"`
	FrozenCount   int    `json:"frozenCount"`
}

// TimeControlView is the clock regime block of a snapshot.
type TimeControlView struct {
	Type      string                 `json:"type"`
	BaseTime  int64                  `json:"baseTime"`
	Increment int64                  `json:"increment"`
	PerMove   bool                   `json:"perMove,omitempty"`
	Timers    session.ByColor[int64] `json:"timers"`
}

// GameState is the rules-status block of a snapshot.
type GameState struct {
	Check                bool   `json:"check"`
	Checkmate            bool   `json:"checkmate"`
	Stalemate            bool   `json:"stalemate"`
	InsufficientMaterial bool   `json:"insufficientMaterial"`
	ThreefoldRepetition  bool   `json:"threefoldRepetition"`
	FiftyMoveRule        bool   `json:"fiftyMoveRule"`
	Result               string `json:"result,omitempty"`
	Winner               string `json:"winner,omitempty"`
	EndReason            string `json:"endReason,omitempty"`
	EndTimestamp         int64  `json:"endTimestamp,omitempty"`
	DrawOfferBy          string `json:"drawOfferBy,omitempty"`
}

// BuildSnapshot projects a session into its wire form as of nowMs.
func BuildSnapshot(s *session.Session, nowMs int64) Snapshot {
	clocks := clock.Main(s, nowMs)

	snap := Snapshot{
		SessionID:  s.ID,
		Variant:    string(s.Variant),
		Subvariant: string(s.Subvariant),
		Status:     string(s.Status),
		Players:    s.Players,
		Board: Board{
			FEN:            s.FEN,
			ActiveColor:    s.ActiveColor,
			WhiteTime:      clocks.White,
			BlackTime:      clocks.Black,
			Increment:      s.Increment,
			MoveHistory:    s.MoveHistory,
			CapturedPieces: s.CapturedPieces,
		},
		TimeControl: TimeControlView{
			Type:      session.Key(s.Variant, s.Subvariant),
			BaseTime:  s.BaseTime,
			Increment: s.Increment,
			PerMove:   session.TimeControlFor(s.Variant, s.Subvariant).PerMove,
			Timers:    clocks,
		},
		Moves:     s.MoveHistory,
		MoveCount: len(s.MoveHistory),
		UserColor: map[string]string{
			s.Players.White.UserID: string(position.White),
			s.Players.Black.UserID: string(position.Black),
		},
	}
	if n := len(s.MoveHistory); n > 0 {
		last := s.MoveHistory[n-1]
		snap.LastMove = &last
	}

	snap.GameState = buildGameState(s)

	if s.Crazyhouse != nil {
		snap.Board.PocketedPieces = &s.Crazyhouse.PocketedPieces
		snap.Board.FrozenPieces = s.Crazyhouse.FrozenPieces
		if s.Subvariant == session.SubvariantWithTimer {
			snap.Board.DropTimers = &s.Crazyhouse.DropTimers
			drops := clock.Drops(s, nowMs)
			snap.Board.AvailableDropPieces = &drops
			status := buildPocketStatus(s, drops)
			snap.Board.PocketStatus = &status
		}
	}
	if s.Decay != nil {
		snap.Board.DecayActive = &s.Decay.DecayActive
		decay := clock.DecayState(s, nowMs)
		queen := session.ByColor[session.DecayTimer]{White: decay.White[0], Black: decay.Black[0]}
		major := session.ByColor[session.DecayTimer]{White: decay.White[1], Black: decay.Black[1]}
		snap.Board.QueenDecayTimers = &queen
		snap.Board.MajorPieceDecayTimers = &major
		snap.Board.FrozenPieces = s.Decay.FrozenPieces
	}
	if s.SixPointer != nil {
		sp := s.SixPointer
		snap.Board.MovesPlayed = &sp.MovesPlayed
		snap.Board.BonusMoves = &sp.BonusMoves
		snap.Board.MaxMoves = &sp.MaxMoves
		snap.Board.Points = &sp.Points
		snap.Board.TimeoutPenalties = &sp.TimeoutPenalties
		if sp.LastTimeoutPenalty.White != 0 || sp.LastTimeoutPenalty.Black != 0 {
			snap.Board.LastTimeoutPenalty = &sp.LastTimeoutPenalty
		}
		snap.Board.FoulIncidents = sp.FoulIncidents
	}
	return snap
}

func buildPocketStatus(s *session.Session, drops session.ByColor[[]clock.DropPieceView]) session.ByColor[PocketStatusView] {
	var out session.ByColor[PocketStatusView]
	for _, c := range []position.Color{position.White, position.Black} {
		views := drops.Get(c)
		st := PocketStatusView{
			QueuedCount: len(views),
			FrozenCount: len(s.Crazyhouse.FrozenPieces.Get(c)),
		}
		if len(views) > 0 {
			head := views[0]
			st.HeadID = head.ID
			st.HeadType = head.Type
			st.TimeRemaining = head.TimeRemaining
			st.TimerRunning = head.Type != "p" && head.CanDrop
		}
		out.Set(c, st)
	}
	return out
}

func buildGameState(s *session.Session) GameState {
	gs := GameState{
		Result:       s.Result.Result,
		Winner:       string(s.Result.Winner),
		EndReason:    s.Result.Reason,
		EndTimestamp: s.Result.EndedAt,
		DrawOfferBy:  string(s.DrawOfferBy),
	}
	pos, err := position.Parse(s.FEN)
	if err != nil {
		return gs
	}
	gs.Check = pos.InCheck(pos.Turn())
	gs.Checkmate = pos.InCheckmate()
	gs.Stalemate = pos.InStalemate()
	gs.InsufficientMaterial = pos.InsufficientMaterial()
	gs.ThreefoldRepetition = s.RepetitionMap[s.RepetitionKey()] >= 3
	gs.FiftyMoveRule = pos.HalfmoveClock() >= 100
	return gs
}
