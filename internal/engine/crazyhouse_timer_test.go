package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// pocketKnight plays out 1.e4 Nc6 2.d4 Nxd4 3.Qxd4: black pockets a pawn,
// white pockets a knight whose drop timer starts ticking.
func pocketKnight(t *testing.T) *session.Session {
	t.Helper()
	s := testSession(t, session.VariantCrazyhouse, session.SubvariantWithTimer, "")
	s = mustApply(t, s, move("e2", "e4"), position.White, t0+1_000)
	s = mustApply(t, s, move("b8", "c6"), position.Black, t0+2_000)
	s = mustApply(t, s, move("d2", "d4"), position.White, t0+3_000)
	s = mustApply(t, s, move("c6", "d4"), position.Black, t0+4_000)
	s = mustApply(t, s, move("d1", "d4"), position.White, t0+5_000)
	return s
}

func TestDropTimerStartsOnCaptureAndPausesOnHandoff(t *testing.T) {
	s := pocketKnight(t)

	// Pawn captures never tick.
	blackPocket := s.Crazyhouse.PocketedPieces.Black
	require.Len(t, blackPocket, 1)
	require.Equal(t, "p", blackPocket[0].Type)
	require.Empty(t, s.Crazyhouse.DropTimers.Black)

	// White pocketed the knight while on move, then the turn passed, so the
	// timer is parked on the piece with its full budget.
	whitePocket := s.Crazyhouse.PocketedPieces.White
	require.Len(t, whitePocket, 1)
	require.Equal(t, "n", whitePocket[0].Type)
	require.True(t, whitePocket[0].TimerPaused)
	require.Equal(t, int64(10_000), whitePocket[0].RemainingTime)
	require.Empty(t, s.Crazyhouse.DropTimers.White)
}

func TestDropTimerResumesAndBurnsOnlyOnOwnTurns(t *testing.T) {
	s := pocketKnight(t)

	// Black to move; white's paused knight resumes when the turn returns.
	s = mustApply(t, s, move("g8", "f6"), position.Black, t0+6_000)
	head := s.Crazyhouse.PocketedPieces.White[0]
	require.False(t, head.TimerPaused)
	require.Equal(t, int64(t0+16_000), s.Crazyhouse.DropTimers.White[head.ID])

	// White thinks 3s then moves: 7s left, parked again at handoff.
	s = mustApply(t, s, move("a2", "a3"), position.White, t0+9_000)
	head = s.Crazyhouse.PocketedPieces.White[0]
	require.True(t, head.TimerPaused)
	require.Equal(t, int64(7_000), head.RemainingTime)

	// Black's thinking time must not burn white's budget.
	s = mustApply(t, s, move("a7", "a6"), position.Black, t0+10_000)
	s = mustApply(t, s, move("h2", "h3"), position.White, t0+13_000)
	require.Equal(t, int64(4_000), s.Crazyhouse.PocketedPieces.White[0].RemainingTime)
}

func TestDropTimerExpiryFreezesHead(t *testing.T) {
	s := pocketKnight(t)
	s = mustApply(t, s, move("g8", "f6"), position.Black, t0+6_000)
	s = mustApply(t, s, move("a2", "a3"), position.White, t0+9_000)  // 7s left
	s = mustApply(t, s, move("a7", "a6"), position.Black, t0+10_000) // resumes, exp t0+17s
	s = mustApply(t, s, move("h2", "h3"), position.White, t0+13_000) // 4s left
	s = mustApply(t, s, move("h7", "h6"), position.Black, t0+14_000) // resumes, exp t0+18s

	// White dawdles past the expiry, then tries the drop.
	out := apply(t, s, drop("n", "e5"), position.White, t0+21_000)
	require.Equal(t, OutcomeWarning, out.Kind)
	require.Equal(t, CodeDropExpired, out.Code)
	s = out.State

	require.Empty(t, s.Crazyhouse.PocketedPieces.White)
	frozen := s.Crazyhouse.FrozenPieces.White
	require.Len(t, frozen, 1)
	require.Equal(t, "n", frozen[0].Type)

	// The turn stays with white, and a normal move still works.
	require.Equal(t, position.White, s.ActiveColor)
	s = mustApply(t, s, move("b2", "b3"), position.White, t0+22_000)
	require.Equal(t, position.Black, s.ActiveColor)
}

func TestDropExpiryDiscoveredLazilyOnMove(t *testing.T) {
	s := pocketKnight(t)
	s = mustApply(t, s, move("g8", "f6"), position.Black, t0+6_000) // exp t0+16s

	// White sits on the move for 11s; the eviction happens as part of the
	// move's preamble.
	s = mustApply(t, s, move("a2", "a3"), position.White, t0+17_000)
	require.Empty(t, s.Crazyhouse.PocketedPieces.White)
	require.Len(t, s.Crazyhouse.FrozenPieces.White, 1)
}

func TestSequentialDropOnly(t *testing.T) {
	s := pocketKnight(t)
	s = mustApply(t, s, move("g8", "f6"), position.Black, t0+6_000)

	// Force a second pocketed piece behind the knight.
	s.Crazyhouse.PocketedPieces.White = append(s.Crazyhouse.PocketedPieces.White,
		session.PocketPiece{ID: "tail-b", Type: "b", CapturedAt: t0 + 6_000})

	out := apply(t, s, drop("b", "e5"), position.White, t0+7_000)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodeSequentialDropOnly, out.Code)

	out = apply(t, s, drop("q", "e5"), position.White, t0+7_000)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodePieceNotAvailable, out.Code)

	// The head itself is droppable.
	out = apply(t, s, drop("n", "e5"), position.White, t0+7_000)
	require.Equal(t, OutcomeApplied, out.Kind)
}

func TestSuccessorGetsFreshWindowAfterEviction(t *testing.T) {
	s := pocketKnight(t)
	s = mustApply(t, s, move("g8", "f6"), position.Black, t0+6_000) // knight exp t0+16s
	s.Crazyhouse.PocketedPieces.White = append(s.Crazyhouse.PocketedPieces.White,
		session.PocketPiece{ID: "tail-b", Type: "b", CapturedAt: t0 + 6_000})

	s = mustApply(t, s, move("a2", "a3"), position.White, t0+17_000)

	pocket := s.Crazyhouse.PocketedPieces.White
	require.Len(t, pocket, 1)
	require.Equal(t, "b", pocket[0].Type)
	// New head was given a fresh window at eviction time, then paused with
	// what was left of it at the handoff (same instant here).
	require.True(t, pocket[0].TimerPaused)
	require.Equal(t, int64(10_000), pocket[0].RemainingTime)
}
