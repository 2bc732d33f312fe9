package engine

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
)

// crazyhouseEngine is the standard (untimed) crazyhouse. The pocket has
// multiset semantics: any pocketed type may be dropped at any time.
type crazyhouseEngine struct{}

func (crazyhouseEngine) ValidateAndApply(s *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	if out, done := metaAction(s, a, color, nowMs); done {
		return out
	}
	c, stop := begin(s, color, nowMs, false)
	if stop != nil {
		return *stop
	}

	switch a.Kind {
	case ActionMove:
		return applyCrazyhouseMove(c, a, color, nowMs)
	case ActionDrop:
		if _, code, reason := pocketIndexByType(c.Crazyhouse, color, a.Piece); code != "" {
			return rejected(code, reason)
		}
		return applyDrop(c, a, color, nowMs)
	}
	return rejectedf(CodeInvalidInput, "unsupported action %q", a.Kind)
}

// applyCrazyhouseMove plays a board move and pockets any captured piece for
// the mover. Promoted pieces are pocketed as pawns.
func applyCrazyhouseMove(c *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	pos, err := position.Parse(c.FEN)
	if err != nil {
		return rejected(CodeInvalidFEN, err.Error())
	}
	next, mv, err := pos.Apply(a.From, a.To, a.Promotion)
	if err != nil {
		if errors.Is(err, position.ErrIllegalMove) {
			return rejectedf(CodeIllegalMove, "illegal move %s%s", a.From, a.To)
		}
		return rejected(CodeInvalidMove, err.Error())
	}

	cz := c.Crazyhouse
	pocketType := trackPromotions(cz, mv)
	if mv.Capture {
		pocket := cz.PocketedPieces.Ptr(color)
		piece := session.PocketPiece{ID: uuid.NewString(), Type: pocketType, CapturedAt: nowMs}
		*pocket = append(*pocket, piece)
		onPocketPush(c, color, len(*pocket), piece, nowMs)
	}

	rec := session.MoveRecord{
		Color:     color,
		Type:      "move",
		From:      mv.From,
		To:        mv.To,
		Promotion: mv.Promotion,
		SAN:       mv.SAN,
		Capture:   mv.Capture,
		Captured:  pocketType,
	}
	if !mv.Capture {
		rec.Captured = ""
	}
	commitMove(c, rec, next.FEN(), color, nowMs)
	onTurnHandoff(c, color, nowMs)
	terminal := checkTerminal(c, next, color, nowMs, crazyhouseTerminalOpts(c))

	applied := c.MoveHistory[len(c.MoveHistory)-1]
	return Outcome{Kind: OutcomeApplied, State: c, Move: &applied, Terminal: terminal}
}

// applyDrop places a pocket piece on an empty square. The caller has already
// verified pocket eligibility; this does the board-level validation, removes
// the piece and commits. Shared by both crazyhouse subvariants.
func applyDrop(c *session.Session, a Action, color position.Color, nowMs int64) Outcome {
	if a.Piece == "p" && (strings.HasSuffix(a.To, "1") || strings.HasSuffix(a.To, "8")) {
		return rejectedf(CodeInvalidPawnDrop, "pawns may not be dropped on %s", a.To)
	}

	pos, err := position.Parse(c.FEN)
	if err != nil {
		return rejected(CodeInvalidFEN, err.Error())
	}
	next, err := pos.Put(a.Piece, color, a.To)
	if err != nil {
		switch {
		case errors.Is(err, position.ErrOccupied):
			return rejectedf(CodeSquareOccupied, "%s is occupied", a.To)
		case errors.Is(err, position.ErrSelfCheck):
			return rejected(CodeSelfCheck, "drop would leave your king in check")
		default:
			return rejected(CodeInvalidMove, err.Error())
		}
	}

	cz := c.Crazyhouse
	idx, code, reason := pocketIndexByType(cz, color, a.Piece)
	if code != "" {
		return rejected(code, reason)
	}
	pocket := cz.PocketedPieces.Ptr(color)
	removed := (*pocket)[idx]
	*pocket = append((*pocket)[:idx], (*pocket)[idx+1:]...)
	onPocketPop(c, color, removed)

	rec := session.MoveRecord{
		Color: color,
		Type:  "drop",
		To:    a.To,
		Piece: a.Piece,
		SAN:   strings.ToUpper(a.Piece) + "@" + a.To,
	}
	commitMove(c, rec, next.FEN(), color, nowMs)
	onTurnHandoff(c, color, nowMs)
	terminal := checkTerminal(c, next, color, nowMs, crazyhouseTerminalOpts(c))

	applied := c.MoveHistory[len(c.MoveHistory)-1]
	return Outcome{Kind: OutcomeApplied, State: c, Move: &applied, Terminal: terminal}
}

// trackPromotions maintains the promoted-square markers across a move and
// returns the piece type a capture pockets (a pawn when the victim was a
// promoted pawn).
func trackPromotions(cz *session.Crazyhouse, mv position.Move) string {
	pocketType := mv.Captured
	if mv.Capture && !mv.EnPassant && hasSquare(cz.PromotedSquares, mv.To) {
		pocketType = "p"
		cz.PromotedSquares = removeSquare(cz.PromotedSquares, mv.To)
	}
	if hasSquare(cz.PromotedSquares, mv.From) {
		cz.PromotedSquares = removeSquare(cz.PromotedSquares, mv.From)
		cz.PromotedSquares = append(cz.PromotedSquares, mv.To)
	}
	if mv.Promotion != "" {
		cz.PromotedSquares = append(cz.PromotedSquares, mv.To)
	}
	return pocketType
}

// pocketIndexByType locates a droppable piece of the requested type in the
// mover's pocket, or explains why there is none. The withTimer subvariant
// additionally restricts drops to the pocket head.
func pocketIndexByType(cz *session.Crazyhouse, color position.Color, pieceType string) (int, string, string) {
	if cz == nil {
		return 0, CodeInvalidState, "no pocket state"
	}
	switch pieceType {
	case "p", "n", "b", "r", "q":
	default:
		return 0, CodeInvalidInput, "invalid drop piece " + pieceType
	}
	pocket := cz.PocketedPieces.Get(color)
	for i, p := range pocket {
		if p.Type == pieceType {
			return i, "", ""
		}
	}
	return 0, CodePieceNotInPocket, "no " + pieceType + " in pocket"
}

// crazyhouseTerminalOpts wires drop awareness into terminal detection: a
// defender with a droppable piece is never mated or stalemated by the book
// detectors, and pockets count as mating material.
func crazyhouseTerminalOpts(c *session.Session) terminalOpts {
	return terminalOpts{
		dropEscape: func(next *position.Position, defender position.Color) bool {
			return anyLegalDrop(next, defender, droppableTypes(c, defender))
		},
		skipMaterialDraw: len(c.Crazyhouse.PocketedPieces.White)+len(c.Crazyhouse.PocketedPieces.Black) > 0,
	}
}

// droppableTypes lists the pocket types defender could legally drop on their
// upcoming turn. For withTimer only the head (or a pawn head) qualifies.
func droppableTypes(c *session.Session, defender position.Color) []string {
	pocket := c.Crazyhouse.PocketedPieces.Get(defender)
	if len(pocket) == 0 {
		return nil
	}
	if c.Subvariant == session.SubvariantWithTimer {
		return []string{pocket[0].Type}
	}
	seen := map[string]bool{}
	var types []string
	for _, p := range pocket {
		if !seen[p.Type] {
			seen[p.Type] = true
			types = append(types, p.Type)
		}
	}
	return types
}

// anyLegalDrop reports whether defender can place any of the given types on
// some empty square without leaving their king in check. Put validates the
// self-check rule, so a successful placement is a legal crazyhouse reply.
func anyLegalDrop(pos *position.Position, defender position.Color, types []string) bool {
	if len(types) == 0 || pos.Turn() != defender {
		return false
	}
	for _, t := range types {
		for _, sq := range emptySquares(pos, t == "p") {
			if _, err := pos.Put(t, defender, sq); err == nil {
				return true
			}
		}
	}
	return false
}

func emptySquares(pos *position.Position, excludeBackRanks bool) []string {
	var out []string
	for rank := byte('1'); rank <= '8'; rank++ {
		if excludeBackRanks && (rank == '1' || rank == '8') {
			continue
		}
		for file := byte('a'); file <= 'h'; file++ {
			sq := string([]byte{file, rank})
			if _, _, occupied := pos.PieceAt(sq); !occupied {
				out = append(out, sq)
			}
		}
	}
	return out
}

func hasSquare(squares []string, sq string) bool {
	for _, s := range squares {
		if s == sq {
			return true
		}
	}
	return false
}

func removeSquare(squares []string, sq string) []string {
	out := squares[:0]
	for _, s := range squares {
		if s != sq {
			out = append(out, s)
		}
	}
	return out
}

func (crazyhouseEngine) LegalActions(s *session.Session, color position.Color, nowMs int64) []Action {
	out := plainMoveActions(s, color)
	if s.Status != session.StatusActive || s.ActiveColor != color || s.Crazyhouse == nil {
		return out
	}
	pos, err := position.Parse(s.FEN)
	if err != nil {
		return out
	}
	for _, t := range droppableTypes(s, color) {
		for _, sq := range emptySquares(pos, t == "p") {
			if _, err := pos.Put(t, color, sq); err == nil {
				out = append(out, Action{Kind: ActionDrop, Piece: t, To: sq})
			}
		}
	}
	return out
}
