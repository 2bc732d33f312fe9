package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

const t0 = int64(1_700_000_000_000)

func testSession(t *testing.T, v session.Variant, sub session.Subvariant, fen string) *session.Session {
	t.Helper()
	white := session.Player{UserID: "u-white", DisplayName: "Ada", Rating: 1500}
	black := session.Player{UserID: "u-black", DisplayName: "Bela", Rating: 1480}
	if fen == "" {
		fen = position.StartingFEN
	}
	return session.New(v, sub, white, black, fen, t0)
}

func move(from, to string) Action {
	return Action{Kind: ActionMove, From: from, To: to}
}

func drop(piece, to string) Action {
	return Action{Kind: ActionDrop, Piece: piece, To: to}
}

// mustApply runs one action that is expected to be applied cleanly and
// returns the new state.
func mustApply(t *testing.T, s *session.Session, a Action, color position.Color, nowMs int64) *session.Session {
	t.Helper()
	eng, err := ForSession(s)
	require.NoError(t, err)
	out := eng.ValidateAndApply(s, a, color, nowMs)
	require.Equal(t, OutcomeApplied, out.Kind, "action %+v rejected: %s %s", a, out.Code, out.Reason)
	require.NotNil(t, out.State)
	return out.State
}

func apply(t *testing.T, s *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	t.Helper()
	eng, err := ForSession(s)
	require.NoError(t, err)
	return eng.ValidateAndApply(s, a, color, nowMs)
}
