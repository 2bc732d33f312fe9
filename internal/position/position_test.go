package position

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndApply(t *testing.T) {
	p, err := Parse(StartingFEN)
	require.NoError(t, err)
	require.Equal(t, White, p.Turn())

	next, mv, err := p.Apply("e2", "e4", "")
	require.NoError(t, err)
	require.Equal(t, "e4", mv.SAN)
	require.False(t, mv.Capture)
	require.Equal(t, Black, next.Turn())

	// The receiver is untouched.
	require.Equal(t, White, p.Turn())

	_, _, err = p.Apply("e2", "e5", "")
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestApplyReportsCaptures(t *testing.T) {
	p, err := Parse("4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1")
	require.NoError(t, err)

	_, mv, err := p.Apply("e4", "d5", "")
	require.NoError(t, err)
	require.True(t, mv.Capture)
	require.Equal(t, "p", mv.Captured)
}

func TestApplyEnPassant(t *testing.T) {
	p, err := Parse("4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 1")
	require.NoError(t, err)

	_, mv, err := p.Apply("e5", "d6", "")
	require.NoError(t, err)
	require.True(t, mv.EnPassant)
	require.True(t, mv.Capture)
	require.Equal(t, "p", mv.Captured)
}

func TestPromotionRequiresExplicitPiece(t *testing.T) {
	p, err := Parse("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	require.NoError(t, err)

	next, mv, err := p.Apply("a7", "a8", "q")
	require.NoError(t, err)
	require.Equal(t, "q", mv.Promotion)
	piece, color, ok := next.PieceAt("a8")
	require.True(t, ok)
	require.Equal(t, "q", piece)
	require.Equal(t, White, color)
}

func TestPutTogglesSideAndValidates(t *testing.T) {
	p, err := Parse(StartingFEN)
	require.NoError(t, err)

	next, err := p.Put("n", White, "e4")
	require.NoError(t, err)
	require.Equal(t, Black, next.Turn())
	piece, color, ok := next.PieceAt("e4")
	require.True(t, ok)
	require.Equal(t, "n", piece)
	require.Equal(t, White, color)

	_, err = p.Put("n", White, "e2")
	require.ErrorIs(t, err, ErrOccupied)

	_, err = p.Put("n", Black, "e4")
	require.ErrorIs(t, err, ErrIllegalDrop)

	_, err = p.Put("k", White, "e4")
	require.ErrorIs(t, err, ErrIllegalDrop)
}

func TestPutRejectsSelfCheck(t *testing.T) {
	// White king pinned against a black rook; a drop elsewhere cannot block
	// what it does not block.
	p, err := Parse("4k3/8/8/8/8/8/4r3/4K3 w - - 0 1")
	require.NoError(t, err)

	_, err = p.Put("n", White, "a4")
	require.ErrorIs(t, err, ErrSelfCheck)

	// Capturing is impossible by drop, but blocking is not an option here
	// since the rook is adjacent; any placement leaves the check standing.
	_, err = p.Put("q", White, "h5")
	require.ErrorIs(t, err, ErrSelfCheck)
}

func TestPutAdvancesMoveCounters(t *testing.T) {
	p, err := Parse("4k3/8/8/8/8/8/8/4K3 b - - 3 10")
	require.NoError(t, err)

	next, err := p.Put("r", Black, "a5")
	require.NoError(t, err)
	require.Equal(t, 4, next.HalfmoveClock())
	require.Equal(t, White, next.Turn())

	// Pawn drops reset the halfmove clock.
	next, err = p.Put("p", Black, "a5")
	require.NoError(t, err)
	require.Equal(t, 0, next.HalfmoveClock())
}

func TestToggleTurn(t *testing.T) {
	out, err := ToggleTurn(StartingFEN)
	require.NoError(t, err)
	p, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, Black, p.Turn())

	back, err := ToggleTurn(out)
	require.NoError(t, err)
	p, err = Parse(back)
	require.NoError(t, err)
	require.Equal(t, White, p.Turn())
}

func TestInCheckIsTurnIndependent(t *testing.T) {
	p, err := Parse("4k3/8/8/8/8/8/4r3/4K3 w - - 0 1")
	require.NoError(t, err)
	require.True(t, p.InCheck(White))
	require.False(t, p.InCheck(Black))

	p, err = Parse("4k3/4R3/8/8/8/8/8/4K3 b - - 0 1")
	require.NoError(t, err)
	require.True(t, p.InCheck(Black))
}

func TestTerminalDetectors(t *testing.T) {
	mate, err := Parse("R5k1/5ppp/8/8/8/8/8/4K3 b - - 0 1")
	require.NoError(t, err)
	require.True(t, mate.InCheckmate())

	stale, err := Parse("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)
	require.True(t, stale.InStalemate())
}

func TestInsufficientMaterial(t *testing.T) {
	cases := []struct {
		fen  string
		want bool
	}{
		{"4k3/8/8/8/8/8/8/4K3 w - - 0 1", true},
		{"4k3/8/8/8/8/8/8/3NK3 w - - 0 1", true},
		{"4k3/8/8/8/8/8/8/3BK3 w - - 0 1", true},
		// Same-colored bishops.
		{"3bk3/8/8/8/8/8/8/2B1K3 w - - 0 1", true},
		{"4k3/8/8/8/8/8/8/3QK3 w - - 0 1", false},
		{"4k3/p7/8/8/8/8/8/4K3 w - - 0 1", false},
		{"4k3/8/8/8/8/8/8/1N1NK3 w - - 0 1", false},
	}
	for _, tc := range cases {
		p, err := Parse(tc.fen)
		require.NoError(t, err)
		require.Equal(t, tc.want, p.InsufficientMaterial(), tc.fen)
	}
}
