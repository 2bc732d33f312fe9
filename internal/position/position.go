// Package position is the rules layer shared by every variant engine. It
// wraps notnil/chess for move legality, SAN and terminal detection, and adds
// the primitives the crazyhouse family needs on top of plain chess: placing a
// piece on an empty square with a manual side-to-move toggle, and a check
// detector that works without applying a move.
package position

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrBadFEN      = errors.New("invalid fen")
	ErrIllegalMove = errors.New("illegal move")
	ErrIllegalDrop = errors.New("illegal drop")
	ErrOccupied    = errors.New("square occupied")
	ErrSelfCheck   = errors.New("placement leaves king in check")
)

// Color is a side, serialized as "white"/"black" on the wire and at rest.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Move is a fully resolved legal move in a concrete position.
type Move struct {
	From      string
	To        string
	Promotion string // "q","r","b","n" or ""
	SAN       string
	Capture   bool
	Captured  string // type of the captured piece, "" when not a capture
	EnPassant bool
}

// Position is an immutable chess position. Apply and Put return new values.
type Position struct {
	fen  string
	game *chess.Game
}

// Parse builds a Position from a six-field FEN.
func Parse(fen string) (*Position, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFEN, err)
	}
	g := chess.NewGame(fenOpt, chess.UseNotation(chess.UCINotation{}))
	return &Position{fen: g.Position().String(), game: g}, nil
}

func (p *Position) FEN() string { return p.fen }

func (p *Position) Turn() Color {
	return colorOf(p.game.Position().Turn())
}

// HalfmoveClock returns FEN field five (plies since the last capture or pawn
// move), used for the 50/75-move draw rules.
func (p *Position) HalfmoveClock() int {
	fields := strings.Fields(p.fen)
	if len(fields) < 5 {
		return 0
	}
	n := 0
	for _, ch := range fields[4] {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	return n
}

// PieceAt reports the piece on a square, if any.
func (p *Position) PieceAt(square string) (pieceType string, color Color, ok bool) {
	sq, valid := parseSquare(square)
	if !valid {
		return "", "", false
	}
	pc := p.game.Position().Board().Piece(sq)
	if pc == chess.NoPiece {
		return "", "", false
	}
	return pieceLetter(pc.Type()), colorOf(pc.Color()), true
}

// LegalMoves enumerates every legal move for the side to move.
func (p *Position) LegalMoves() []Move {
	valid := p.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for _, m := range valid {
		out = append(out, p.describe(m))
	}
	return out
}

// LegalMovesFrom filters LegalMoves by origin square.
func (p *Position) LegalMovesFrom(square string) []Move {
	var out []Move
	for _, m := range p.LegalMoves() {
		if m.From == square {
			out = append(out, m)
		}
	}
	return out
}

func (p *Position) describe(m *chess.Move) Move {
	out := Move{
		From: m.S1().String(),
		To:   m.S2().String(),
		SAN:  chess.AlgebraicNotation{}.Encode(p.game.Position(), m),
	}
	if m.Promo() != chess.NoPieceType {
		out.Promotion = pieceLetter(m.Promo())
	}
	if m.HasTag(chess.EnPassant) {
		out.Capture = true
		out.Captured = "p"
		out.EnPassant = true
	} else if m.HasTag(chess.Capture) {
		out.Capture = true
		if pc := p.game.Position().Board().Piece(m.S2()); pc != chess.NoPiece {
			out.Captured = pieceLetter(pc.Type())
		}
	}
	return out
}

// Apply plays from→to (with optional promotion) and returns the resulting
// position together with the resolved move. ErrIllegalMove when the move is
// not legal here.
func (p *Position) Apply(from, to, promotion string) (*Position, Move, error) {
	var target *chess.Move
	for _, m := range p.game.ValidMoves() {
		if m.S1().String() != from || m.S2().String() != to {
			continue
		}
		promo := ""
		if m.Promo() != chess.NoPieceType {
			promo = pieceLetter(m.Promo())
		}
		if promo != normalizePromotion(promotion) {
			continue
		}
		target = m
		break
	}
	if target == nil {
		return nil, Move{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
	}

	described := p.describe(target)

	// Replay on a fresh game so the receiver stays untouched.
	next, err := Parse(p.fen)
	if err != nil {
		return nil, Move{}, err
	}
	if err := next.game.Move(target); err != nil {
		return nil, Move{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
	}
	next.fen = next.game.Position().String()
	return next, described, nil
}

// Put places a piece of the given color on an empty square and toggles the
// side to move. This is the crazyhouse drop primitive. The en-passant square is
// cleared and the move counters advance as for a normal non-capturing move
// (pawn drops reset the halfmove clock). Placement that leaves the dropping
// side in check is rejected.
func (p *Position) Put(pieceType string, c Color, square string) (*Position, error) {
	if !isDroppable(pieceType) {
		return nil, fmt.Errorf("%w: piece %q", ErrIllegalDrop, pieceType)
	}
	if _, _, occupied := p.PieceAt(square); occupied {
		return nil, fmt.Errorf("%w: %s", ErrOccupied, square)
	}
	if p.Turn() != c {
		return nil, fmt.Errorf("%w: not %s to move", ErrIllegalDrop, c)
	}

	fields := strings.Fields(p.fen)
	if len(fields) != 6 {
		return nil, ErrBadFEN
	}
	board, err := spliceBoard(fields[0], pieceType, c, square)
	if err != nil {
		return nil, err
	}

	halfmove := "0"
	if pieceType != "p" {
		halfmove = fmt.Sprintf("%d", p.HalfmoveClock()+1)
	}
	fullmove := fields[5]
	if c == Black {
		fullmove = fmt.Sprintf("%d", atoiOr(fields[5], 1)+1)
	}
	side := "b"
	if c == Black {
		side = "w"
	}

	fen := strings.Join([]string{board, side, fields[2], "-", halfmove, fullmove}, " ")
	next, err := Parse(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: drop produced %q", ErrBadFEN, fen)
	}
	if next.InCheck(c) {
		return nil, ErrSelfCheck
	}
	return next, nil
}

// ToggleTurn flips the side-to-move field of a FEN without touching the
// board, clearing the en-passant square and advancing the fullmove number
// when Black's turn is skipped. Used for turn passes that play no move.
func ToggleTurn(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return "", ErrBadFEN
	}
	if fields[1] == "w" {
		fields[1] = "b"
	} else {
		fields[1] = "w"
		fields[5] = fmt.Sprintf("%d", atoiOr(fields[5], 1)+1)
	}
	fields[3] = "-"
	return strings.Join(fields, " "), nil
}

// InCheckmate reports whether the side to move is checkmated.
func (p *Position) InCheckmate() bool {
	return p.game.Position().Status() == chess.Checkmate
}

// InStalemate reports whether the side to move is stalemated.
func (p *Position) InStalemate() bool {
	return p.game.Position().Status() == chess.Stalemate
}

// spliceBoard inserts a piece into the FEN board field at the given square.
func spliceBoard(boardField, pieceType string, c Color, square string) (string, error) {
	file := int(square[0] - 'a')
	rank := int(square[1] - '1') // 0 = rank 1
	if len(square) != 2 || file < 0 || file > 7 || rank < 0 || rank > 7 {
		return "", fmt.Errorf("%w: square %q", ErrIllegalDrop, square)
	}

	ranks := strings.Split(boardField, "/")
	if len(ranks) != 8 {
		return "", ErrBadFEN
	}
	idx := 7 - rank // boardField lists rank 8 first

	expanded := expandRank(ranks[idx])
	if len(expanded) != 8 || expanded[file] != '.' {
		return "", fmt.Errorf("%w: %s", ErrOccupied, square)
	}
	letter := pieceType[0]
	if c == White {
		letter = letter - 'a' + 'A'
	}
	expanded[file] = letter
	ranks[idx] = compactRank(expanded)
	return strings.Join(ranks, "/"), nil
}

func expandRank(r string) []byte {
	out := make([]byte, 0, 8)
	for i := 0; i < len(r); i++ {
		ch := r[i]
		if ch >= '1' && ch <= '8' {
			for n := 0; n < int(ch-'0'); n++ {
				out = append(out, '.')
			}
		} else {
			out = append(out, ch)
		}
	}
	return out
}

func compactRank(cells []byte) string {
	var b strings.Builder
	empty := 0
	for _, ch := range cells {
		if ch == '.' {
			empty++
			continue
		}
		if empty > 0 {
			fmt.Fprintf(&b, "%d", empty)
			empty = 0
		}
		b.WriteByte(ch)
	}
	if empty > 0 {
		fmt.Fprintf(&b, "%d", empty)
	}
	return b.String()
}

func isDroppable(pieceType string) bool {
	switch pieceType {
	case "p", "n", "b", "r", "q":
		return true
	}
	return false
}

func normalizePromotion(s string) string {
	switch s {
	case "q", "r", "b", "n":
		return s
	}
	return ""
}

func parseSquare(s string) (chess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return chess.Square(int(s[1]-'1')*8 + int(s[0]-'a')), true
}

func pieceLetter(t chess.PieceType) string {
	switch t {
	case chess.King:
		return "k"
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	case chess.Pawn:
		return "p"
	}
	return ""
}

func colorOf(c chess.Color) Color {
	if c == chess.White {
		return White
	}
	return Black
}

func atoiOr(s string, def int) int {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return def
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
