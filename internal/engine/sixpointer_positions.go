package engine

import (
	"math/rand"

	"github.com/siddkalani/decaychess/internal/position"
)

// sixPointerFENs are the pre-vetted balanced starting positions for the
// six-pointer variant. All are developed book positions with both sides
// castleable or castled, material equal, and tactics available within a
// handful of moves.
var sixPointerFENs = []string{
	// Giuoco Piano
	"r1bqk2r/ppp2ppp/2np1n2/2b1p3/2B1P3/2PP1N2/PP3PPP/RNBQK2R w KQkq - 0 6",
	// Closed Ruy Lopez
	"r1bqk2r/1pppbppp/p1n2n2/4p3/B3P3/5N2/PPPP1PPP/RNBQ1RK1 w kq - 4 6",
	// Queen's Gambit Declined
	"rnbq1rk1/ppp1bppp/4pn2/3p2B1/2PP4/2N1P3/PP3PPP/R2QKBNR w KQ - 1 6",
	// Sicilian Najdorf
	"rnbqkb1r/1p2pppp/p2p1n2/8/3NP3/2N5/PPP2PPP/R1BQKB1R w KQkq - 0 6",
	// Four Knights, both castled
	"r1bq1rk1/pppp1ppp/2n2n2/1B2p3/1b2P3/2N2N2/PPPP1PPP/R1BQ1RK1 w - - 8 6",
}

// StartingFENFor picks the session's starting position: standard for every
// variant except six-pointer, which draws uniformly from the vetted pool.
// Candidates that fail to parse or are already terminal are skipped; the
// standard position is the fallback of last resort.
func StartingFENFor(variant string, rng *rand.Rand) string {
	if variant != "sixpointer" {
		return position.StartingFEN
	}
	offset := rng.Intn(len(sixPointerFENs))
	for i := 0; i < len(sixPointerFENs); i++ {
		fen := sixPointerFENs[(offset+i)%len(sixPointerFENs)]
		pos, err := position.Parse(fen)
		if err != nil || pos.InCheckmate() || pos.InStalemate() || pos.InsufficientMaterial() {
			continue
		}
		return pos.FEN()
	}
	return position.StartingFEN
}
