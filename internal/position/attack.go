package position

import "strings"

// board is an 8x8 mailbox parsed straight from the FEN board field;
// [rank][file] with rank 0 = rank 1. '.' marks an empty square.
type board [8][8]byte

func (p *Position) boardArray() board {
	var b board
	ranks := strings.Split(strings.Fields(p.fen)[0], "/")
	for i, r := range ranks {
		cells := expandRank(r)
		for f := 0; f < 8 && f < len(cells); f++ {
			b[7-i][f] = cells[f]
		}
	}
	return b
}

func isWhitePiece(ch byte) bool { return ch >= 'A' && ch <= 'Z' }

func ownedBy(ch byte, c Color) bool {
	if ch == '.' || ch == 0 {
		return false
	}
	return isWhitePiece(ch) == (c == White)
}

func lower(ch byte) byte {
	if ch >= 'A' && ch <= 'Z' {
		return ch - 'A' + 'a'
	}
	return ch
}

// InCheck reports whether c's king is attacked. Unlike the terminal
// detectors this does not depend on whose turn it is, which is what the
// drop validation needs.
func (p *Position) InCheck(c Color) bool {
	b := p.boardArray()
	king := byte('k')
	if c == White {
		king = 'K'
	}
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if b[r][f] == king {
				return b.attacked(r, f, c.Other())
			}
		}
	}
	return false
}

// attacked reports whether (rank, file) is attacked by any piece of `by`.
func (b board) attacked(rank, file int, by Color) bool {
	// Knights.
	knightJumps := [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	for _, d := range knightJumps {
		r, f := rank+d[0], file+d[1]
		if onBoard(r, f) && ownedBy(b[r][f], by) && lower(b[r][f]) == 'n' {
			return true
		}
	}

	// King (relevant for drop adjacency checks).
	for dr := -1; dr <= 1; dr++ {
		for df := -1; df <= 1; df++ {
			if dr == 0 && df == 0 {
				continue
			}
			r, f := rank+dr, file+df
			if onBoard(r, f) && ownedBy(b[r][f], by) && lower(b[r][f]) == 'k' {
				return true
			}
		}
	}

	// Pawns: a white pawn attacks upward, so it sits one rank below its target.
	pawnRank := rank - 1
	if by == Black {
		pawnRank = rank + 1
	}
	for _, df := range [2]int{-1, 1} {
		r, f := pawnRank, file+df
		if onBoard(r, f) && ownedBy(b[r][f], by) && lower(b[r][f]) == 'p' {
			return true
		}
	}

	// Sliding pieces.
	diag := [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	ortho := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if b.rayHits(rank, file, diag, by, 'b') || b.rayHits(rank, file, ortho, by, 'r') {
		return true
	}
	return false
}

// rayHits scans each direction until a piece blocks, matching `slider` or a
// queen of color `by`.
func (b board) rayHits(rank, file int, dirs [4][2]int, by Color, slider byte) bool {
	for _, d := range dirs {
		r, f := rank+d[0], file+d[1]
		for onBoard(r, f) {
			ch := b[r][f]
			if ch != '.' && ch != 0 {
				if ownedBy(ch, by) && (lower(ch) == slider || lower(ch) == 'q') {
					return true
				}
				break
			}
			r += d[0]
			f += d[1]
		}
	}
	return false
}

func onBoard(r, f int) bool { return r >= 0 && r < 8 && f >= 0 && f < 8 }

// InsufficientMaterial reports the dead positions no sequence of legal moves
// can ever win: K vs K, K+minor vs K, and K+B vs K+B with both bishops on the
// same square color.
func (p *Position) InsufficientMaterial() bool {
	b := p.boardArray()

	type minor struct {
		piece  byte
		sqDark bool
	}
	var minors []minor
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			ch := b[r][f]
			if ch == '.' || ch == 0 {
				continue
			}
			switch lower(ch) {
			case 'k':
			case 'b', 'n':
				minors = append(minors, minor{piece: lower(ch), sqDark: (r+f)%2 == 0})
			default:
				// Any pawn, rook or queen is mating material.
				return false
			}
		}
	}

	switch len(minors) {
	case 0, 1:
		return true
	case 2:
		return minors[0].piece == 'b' && minors[1].piece == 'b' &&
			minors[0].sqDark == minors[1].sqDark
	}
	return false
}
