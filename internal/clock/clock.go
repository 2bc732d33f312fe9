// Package clock projects timer values out of a session state for a given
// wall-clock instant. Nothing here mutates state or reads a real clock; the
// engines and the gateway both call these with the timestamp they already
// hold, so stored state and reported times can never disagree.
package clock

import (
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// Timer budgets, all milliseconds.
const (
	DropWindowMs    = 10_000
	QueenDecayMs    = 25_000
	MajorDecayMs    = 20_000
	DecayRefreshMs  = 2_000
	PerMoveBudgetMs = 30_000
)

// Main returns both main clocks as of nowMs. Only the on-move player's clock
// runs, and nothing runs before the first move or after the game ends.
func Main(s *session.Session, nowMs int64) session.ByColor[int64] {
	clocks := s.Clocks
	if s.Status != session.StatusActive || !s.GameStarted {
		return clocks
	}
	elapsed := nowMs - s.TurnStartTimestamp
	if elapsed <= 0 {
		return clocks
	}
	remaining := clocks.Get(s.ActiveColor) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	clocks.Set(s.ActiveColor, remaining)
	return clocks
}

// DropPieceView is a pocket piece decorated with its projected drop budget.
// TimeRemaining is -1 for pawns, which never expire.
type DropPieceView struct {
	session.PocketPiece
	TimeRemaining int64 `json:"timeRemaining"`
	CanDrop       bool  `json:"canDrop"`
}

// Drops projects the pocket state for both colors. Only the on-move player's
// non-pawn head is live; a paused head reports its stored budget; everything
// deeper in the pocket shows the full window it will get when it surfaces.
func Drops(s *session.Session, nowMs int64) session.ByColor[[]DropPieceView] {
	var out session.ByColor[[]DropPieceView]
	if s.Crazyhouse == nil {
		return out
	}
	for _, c := range []position.Color{position.White, position.Black} {
		pocket := s.Crazyhouse.PocketedPieces.Get(c)
		views := make([]DropPieceView, 0, len(pocket))
		for i, p := range pocket {
			v := DropPieceView{PocketPiece: p, TimeRemaining: DropWindowMs}
			switch {
			case p.Type == "p":
				v.TimeRemaining = -1
				v.CanDrop = i == 0 && s.ActiveColor == c && s.Status == session.StatusActive
			case i != 0:
				// Waits behind its predecessors.
			case p.TimerPaused:
				v.TimeRemaining = p.RemainingTime
			default:
				if exp, active := s.Crazyhouse.DropTimers.Get(c)[p.ID]; active {
					v.TimeRemaining = exp - nowMs
					if v.TimeRemaining < 0 {
						v.TimeRemaining = 0
					}
					v.CanDrop = v.TimeRemaining > 0 && s.ActiveColor == c && s.Status == session.StatusActive
				}
			}
			views = append(views, v)
		}
		out.Set(c, views)
	}
	return out
}

// DecayState projects both colors' decay timers. The on-move player's active
// timers age with the turn; the opponent's are paused at their stored values.
func DecayState(s *session.Session, nowMs int64) session.ByColor[[]session.DecayTimer] {
	var out session.ByColor[[]session.DecayTimer]
	if s.Decay == nil {
		return out
	}
	elapsed := int64(0)
	if s.Status == session.StatusActive && s.GameStarted && nowMs > s.TurnStartTimestamp {
		elapsed = nowMs - s.TurnStartTimestamp
	}
	for _, c := range []position.Color{position.White, position.Black} {
		queen := s.Decay.QueenDecayTimers.Get(c)
		major := s.Decay.MajorPieceDecayTimers.Get(c)
		if c == s.ActiveColor {
			queen = ageView(queen, elapsed)
			major = ageView(major, elapsed)
		}
		out.Set(c, []session.DecayTimer{queen, major})
	}
	return out
}

func ageView(t session.DecayTimer, elapsed int64) session.DecayTimer {
	if !t.Active || t.Frozen {
		return t
	}
	t.TimeRemaining -= elapsed
	if t.TimeRemaining < 0 {
		t.TimeRemaining = 0
	}
	return t
}
