package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

const italianFEN = "r1bqk2r/ppp2ppp/2np1n2/2b1p3/2B1P3/2PP1N2/PP3PPP/RNBQK2R w KQkq - 0 6"

func sixPointerSession(t *testing.T) *session.Session {
	t.Helper()
	return testSession(t, session.VariantSixPointer, session.SubvariantNone, italianFEN)
}

func TestSixPointerCaptureScoresPoints(t *testing.T) {
	s := sixPointerSession(t)

	s = mustApply(t, s, move("f3", "e5"), position.White, t0+1_000)
	require.Equal(t, 1, s.SixPointer.Points.White)
	require.Equal(t, 1, s.SixPointer.MovesPlayed.White)

	s = mustApply(t, s, move("c6", "e5"), position.Black, t0+2_000)
	require.Equal(t, 3, s.SixPointer.Points.Black)
	require.Equal(t, 1, s.SixPointer.MovesPlayed.Black)

	// Per-move clocks reset on every committed action.
	require.Equal(t, int64(30_000), s.Clocks.White)
	require.Equal(t, int64(30_000), s.Clocks.Black)
}

func TestSixPointerTimeoutPenalty(t *testing.T) {
	s := sixPointerSession(t)

	// White never moved; the 30s budget runs out from session creation.
	out := apply(t, s, Action{Kind: ActionTimeoutPenalty}, position.White, t0+31_000)
	require.Equal(t, OutcomeWarning, out.Kind)
	require.Equal(t, CodeTimeoutPenalty, out.Code)
	s = out.State

	sp := s.SixPointer
	require.Equal(t, 0, sp.Points.White, "point floor holds at zero")
	require.Equal(t, 1, sp.TimeoutPenalties.White)
	require.Equal(t, 1, sp.MovesPlayed.White)
	require.Equal(t, "timeout", s.MoveHistory[0].Type)
	require.Equal(t, int64(30_000), s.Clocks.White)
	require.Equal(t, int64(30_000), s.Clocks.Black)
	require.Equal(t, position.Black, s.ActiveColor)
	require.Equal(t, session.StatusActive, s.Status)

	// The stored FEN's side-to-move follows the turn pass.
	pos, err := position.Parse(s.FEN)
	require.NoError(t, err)
	require.Equal(t, position.Black, pos.Turn())
}

func TestSixPointerPenaltyRequiresExpiredClock(t *testing.T) {
	s := sixPointerSession(t)
	s = mustApply(t, s, move("f3", "e5"), position.White, t0+1_000)

	out := apply(t, s, Action{Kind: ActionTimeoutPenalty}, position.Black, t0+2_000)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodeInvalidState, out.Code)
}

func TestSixPointerPenaltyRateLimited(t *testing.T) {
	s := sixPointerSession(t)
	s.GameStarted = true
	s.TurnStartTimestamp = t0
	s.SixPointer.LastTimeoutPenalty.Set(position.White, t0+29_000)

	out := apply(t, s, Action{Kind: ActionTimeoutPenalty}, position.White, t0+31_000)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodeInvalidState, out.Code)
}

func TestSixPointerMoveCapEnforced(t *testing.T) {
	s := sixPointerSession(t)
	s.SixPointer.MovesPlayed.White = 6

	out := apply(t, s, move("b2", "b3"), position.White, t0+1_000)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodeMoveLimitExceeded, out.Code)
}

func TestSixPointerPenaltyRejectedPastMoveCap(t *testing.T) {
	s := sixPointerSession(t)
	s.GameStarted = true
	s.TurnStartTimestamp = t0
	s.SixPointer.MovesPlayed.White = 6

	out := apply(t, s, Action{Kind: ActionTimeoutPenalty}, position.White, t0+31_000)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodeMoveLimitExceeded, out.Code)
	require.Equal(t, 6, s.SixPointer.MovesPlayed.White, "penalty past the cap counts nothing")
	require.Equal(t, 0, s.SixPointer.TimeoutPenalties.White)
}

func TestSixPointerFinalMoveRecaptureBonus(t *testing.T) {
	// White's last move wins the rook, black is out of moves but the king
	// can take back.
	s := testSession(t, session.VariantSixPointer, session.SubvariantNone,
		"8/8/4k3/3r4/4P3/8/8/4K3 w - - 0 1")
	s.GameStarted = true
	s.TurnStartTimestamp = t0
	s.SixPointer.MovesPlayed = session.ByColor[int]{White: 5, Black: 6}

	s = mustApply(t, s, move("e4", "d5"), position.White, t0+1_000)

	sp := s.SixPointer
	require.Equal(t, 5, sp.Points.White)
	require.Equal(t, 6, sp.MovesPlayed.White)
	require.Equal(t, 1, sp.BonusMoves.Black)
	require.Len(t, sp.FoulIncidents, 1)
	require.Equal(t, "final_move_recapture", sp.FoulIncidents[0].Type)
	require.Equal(t, position.White, sp.FoulIncidents[0].By)
	require.Equal(t, session.StatusActive, s.Status, "game waits for the recapture")
}

func TestSixPointerSettlesOnPointsWhenMovesExhausted(t *testing.T) {
	s := testSession(t, session.VariantSixPointer, session.SubvariantNone,
		"8/8/4k3/3r4/4P3/8/8/4K3 w - - 0 1")
	s.GameStarted = true
	s.TurnStartTimestamp = t0
	s.SixPointer.MovesPlayed = session.ByColor[int]{White: 5, Black: 6}
	s.SixPointer.Points = session.ByColor[int]{White: 0, Black: 2}

	// A quiet final move leaves black ahead on points.
	out := apply(t, s, move("e4", "e5"), position.White, t0+1_000)
	require.Equal(t, OutcomeApplied, out.Kind)
	require.True(t, out.Terminal)
	require.Equal(t, session.StatusFinished, out.State.Status)
	require.Equal(t, ResultPoints, out.State.Result.Result)
	require.Equal(t, position.Black, out.State.Result.Winner)
}

func TestSixPointerCheckmateOverridesPoints(t *testing.T) {
	// Back-rank mate in one; black leads on points but gets mated.
	s := testSession(t, session.VariantSixPointer, session.SubvariantNone,
		"6k1/5ppp/8/8/8/8/8/R3K3 w - - 0 1")
	s.SixPointer.Points = session.ByColor[int]{White: 0, Black: 9}

	out := apply(t, s, move("a1", "a8"), position.White, t0+1_000)
	require.Equal(t, OutcomeApplied, out.Kind)
	require.True(t, out.Terminal)
	require.Equal(t, ResultCheckmate, out.State.Result.Result)
	require.Equal(t, position.White, out.State.Result.Winner)
}

func TestStartingFENPoolIsVetted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		fen := StartingFENFor("sixpointer", rng)
		pos, err := position.Parse(fen)
		require.NoError(t, err)
		require.False(t, pos.InCheckmate())
		require.False(t, pos.InStalemate())
		require.Equal(t, position.White, pos.Turn())
	}
	require.Equal(t, position.StartingFEN, StartingFENFor("classic:blitz", rand.New(rand.NewSource(1))))
}
