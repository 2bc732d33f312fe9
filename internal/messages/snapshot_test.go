package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

const t0 = int64(1_700_000_000_000)

func snapshotSession(v session.Variant, sub session.Subvariant) *session.Session {
	white := session.Player{UserID: "u-white", Rating: 1500}
	black := session.Player{UserID: "u-black", Rating: 1500}
	return session.New(v, sub, white, black, position.StartingFEN, t0)
}

func boardJSON(t *testing.T, s *session.Session) map[string]any {
	t.Helper()
	raw, err := json.Marshal(BuildSnapshot(s, t0))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	board, ok := decoded["board"].(map[string]any)
	require.True(t, ok)
	return board
}

func TestSnapshotDecayFrozenPiecesKey(t *testing.T) {
	s := snapshotSession(session.VariantDecay, session.SubvariantNone)
	s.Decay.FrozenPieces.White = []string{"h5"}

	board := boardJSON(t, s)
	require.NotContains(t, board, "frozenSquares")
	frozen, ok := board["frozenPieces"].(map[string]any)
	require.True(t, ok, "decay board carries frozenPieces")
	require.Equal(t, []any{"h5"}, frozen["white"])
	require.Contains(t, board, "decayActive")
	require.Contains(t, board, "queenDecayTimers")
	require.Contains(t, board, "majorPieceDecayTimers")
}

func TestSnapshotCrazyhouseFrozenPiecesKeepsPocketShape(t *testing.T) {
	s := snapshotSession(session.VariantCrazyhouse, session.SubvariantStandard)
	s.Crazyhouse.FrozenPieces.White = []session.PocketPiece{
		{ID: "pp-1", Type: "n", CapturedAt: t0},
	}

	board := boardJSON(t, s)
	frozen, ok := board["frozenPieces"].(map[string]any)
	require.True(t, ok)
	white, ok := frozen["white"].([]any)
	require.True(t, ok)
	require.Len(t, white, 1)
	piece := white[0].(map[string]any)
	require.Equal(t, "n", piece["type"])
}

func TestSnapshotWithTimerPocketStatus(t *testing.T) {
	s := snapshotSession(session.VariantCrazyhouse, session.SubvariantWithTimer)
	s.GameStarted = true
	s.TurnStartTimestamp = t0
	s.Crazyhouse.PocketedPieces.White = []session.PocketPiece{
		{ID: "pp-head", Type: "n", CapturedAt: t0},
		{ID: "pp-next", Type: "b", CapturedAt: t0},
	}
	s.Crazyhouse.DropTimers.White["pp-head"] = t0 + 7_000
	s.Crazyhouse.FrozenPieces.White = []session.PocketPiece{
		{ID: "pp-lost", Type: "r", CapturedAt: t0 - 20_000},
	}

	board := boardJSON(t, s)
	status, ok := board["pocketStatus"].(map[string]any)
	require.True(t, ok, "withTimer board carries pocketStatus")

	white := status["white"].(map[string]any)
	require.Equal(t, "pp-head", white["headId"])
	require.Equal(t, "n", white["headType"])
	require.Equal(t, true, white["timerRunning"])
	require.EqualValues(t, 7_000, white["timeRemaining"])
	require.EqualValues(t, 2, white["queuedCount"])
	require.EqualValues(t, 1, white["frozenCount"])

	black := status["black"].(map[string]any)
	require.Equal(t, false, black["timerRunning"])
	require.EqualValues(t, 0, black["queuedCount"])
}

func TestSnapshotSixPointerLastTimeoutPenalty(t *testing.T) {
	s := snapshotSession(session.VariantSixPointer, session.SubvariantNone)

	board := boardJSON(t, s)
	require.NotContains(t, board, "lastTimeoutPenalty")

	s.SixPointer.LastTimeoutPenalty.White = t0 + 31_000
	board = boardJSON(t, s)
	penalty, ok := board["lastTimeoutPenalty"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, t0+31_000, penalty["white"])
}

func TestSnapshotClassicOmitsVariantBlocks(t *testing.T) {
	s := snapshotSession(session.VariantClassic, session.SubvariantBlitz)

	board := boardJSON(t, s)
	for _, key := range []string{
		"frozenPieces", "pocketedPieces", "pocketStatus", "dropTimers",
		"queenDecayTimers", "movesPlayed", "lastTimeoutPenalty",
	} {
		require.NotContains(t, board, key)
	}
}
