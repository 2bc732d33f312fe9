package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

func TestClassicFirstMoveDeductsNothing(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBlitz, "")
	at := t0 + 47_000

	next := mustApply(t, s, move("e2", "e4"), position.White, at)

	require.Equal(t, int64(180_000), next.Clocks.White)
	require.Equal(t, int64(180_000), next.Clocks.Black)
	require.True(t, next.GameStarted)
	require.Equal(t, at, next.FirstMoveTimestamp)
	require.Equal(t, at, next.TurnStartTimestamp)
	require.Equal(t, position.Black, next.ActiveColor)
	require.Equal(t, "e4", next.MoveHistory[0].SAN)
}

func TestClassicClockDeductionWithIncrement(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBlitz, "")
	s = mustApply(t, s, move("e2", "e4"), position.White, t0)

	next := mustApply(t, s, move("e7", "e5"), position.Black, t0+5_000)

	// 180s - 5s thinking + 2s increment.
	require.Equal(t, int64(177_000), next.Clocks.Black)
	require.Equal(t, int64(180_000), next.Clocks.White)
}

func TestClassicIncrementClampsAtBaseTime(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBlitz, "")
	s = mustApply(t, s, move("e2", "e4"), position.White, t0)
	s = mustApply(t, s, move("e7", "e5"), position.Black, t0+1_000)

	next := mustApply(t, s, move("g1", "f3"), position.White, t0+1_500)
	require.Equal(t, int64(180_000), next.Clocks.White)
}

func TestClassicWrongTurn(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBullet, "")
	out := apply(t, s, move("e7", "e5"), position.Black, t0)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodeWrongTurn, out.Code)
}

func TestClassicIllegalMoveRejected(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantStandard, "")
	out := apply(t, s, move("e2", "e5"), position.White, t0)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Equal(t, CodeIllegalMove, out.Code)
}

func TestClassicFlagFall(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBullet, "")
	s = mustApply(t, s, move("e2", "e4"), position.White, t0)

	out := apply(t, s, move("e7", "e5"), position.Black, t0+61_000)
	require.Equal(t, OutcomeApplied, out.Kind)
	require.True(t, out.Terminal)
	require.Equal(t, CodeTimeout, out.Code)
	require.Equal(t, session.StatusFinished, out.State.Status)
	require.Equal(t, ResultTimeout, out.State.Result.Result)
	require.Equal(t, position.White, out.State.Result.Winner)
	require.Equal(t, int64(0), out.State.Clocks.Black)
}

func TestClassicCheckmateEndsGame(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantStandard, "")
	s = mustApply(t, s, move("f2", "f3"), position.White, t0+1_000)
	s = mustApply(t, s, move("e7", "e5"), position.Black, t0+2_000)
	s = mustApply(t, s, move("g2", "g4"), position.White, t0+3_000)

	out := apply(t, s, move("d8", "h4"), position.Black, t0+4_000)
	require.Equal(t, OutcomeApplied, out.Kind)
	require.True(t, out.Terminal)
	require.Equal(t, session.StatusFinished, out.State.Status)
	require.Equal(t, ResultCheckmate, out.State.Result.Result)
	require.Equal(t, position.Black, out.State.Result.Winner)
}

func TestResignAnyTime(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBlitz, "")
	s = mustApply(t, s, move("e2", "e4"), position.White, t0)

	// Resignation by the player not on move is fine.
	out := apply(t, s, Action{Kind: ActionResign}, position.White, t0+3_000)
	require.Equal(t, OutcomeApplied, out.Kind)
	require.True(t, out.Terminal)
	require.Equal(t, ResultResignation, out.State.Result.Result)
	require.Equal(t, position.Black, out.State.Result.Winner)
}

func TestDrawNegotiation(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBlitz, "")
	s = mustApply(t, s, move("e2", "e4"), position.White, t0)

	out := apply(t, s, Action{Kind: ActionDrawAccept}, position.Black, t0+1_000)
	require.Equal(t, OutcomeRejected, out.Kind, "nothing to accept yet")

	out = apply(t, s, Action{Kind: ActionDrawOffer}, position.White, t0+2_000)
	require.Equal(t, OutcomeApplied, out.Kind)
	s = out.State
	require.Equal(t, position.White, s.DrawOfferBy)

	// A board move by the opponent voids the offer.
	s = mustApply(t, s, move("e7", "e5"), position.Black, t0+3_000)
	require.Empty(t, s.DrawOfferBy)

	out = apply(t, s, Action{Kind: ActionDrawOffer}, position.Black, t0+4_000)
	s = out.State
	out = apply(t, s, Action{Kind: ActionDrawAccept}, position.White, t0+5_000)
	require.Equal(t, OutcomeApplied, out.Kind)
	require.True(t, out.Terminal)
	require.Equal(t, ResultDraw, out.State.Result.Result)
	require.Equal(t, ReasonAgreement, out.State.Result.Reason)
	require.Empty(t, out.State.Result.Winner)
}

func TestFinishedSessionRejectsEverything(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantBlitz, "")
	s = mustApply(t, s, move("e2", "e4"), position.White, t0)
	out := apply(t, s, Action{Kind: ActionResign}, position.Black, t0+1_000)
	s = out.State

	for _, a := range []Action{move("e7", "e5"), {Kind: ActionResign}, {Kind: ActionDrawOffer}} {
		out := apply(t, s, a, position.Black, t0+2_000)
		require.Equal(t, OutcomeRejected, out.Kind)
		require.Equal(t, CodeGameEnded, out.Code)
	}
}

func TestLegalActionsOnlyForMover(t *testing.T) {
	s := testSession(t, session.VariantClassic, session.SubvariantStandard, "")
	eng, err := ForSession(s)
	require.NoError(t, err)

	require.Len(t, eng.LegalActions(s, position.White, t0), 20)
	require.Empty(t, eng.LegalActions(s, position.Black, t0))
}
