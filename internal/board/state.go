package board

// MaxHistory bounds the State stack a Position can push onto (spec: ~2048 plies).
const MaxHistory = 2048

// State is the per-ply snapshot pushed by doMove and popped by undoMove.
// It carries exactly the fields that change incrementally per move plus the
// derived pin/check/threat masks for the side to move at that ply.
type State struct {
	CastlingRights CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	Move           Move // the move that produced this state (counter-move heuristic)
	CapturedPiece  Piece
	Hash           uint64

	// Masks for the side now to move, computed at the end of every
	// doMove/setFromFEN and restored by undoMove popping the stack.
	CheckedSquares      Bitboard // all squares attacked by the opponent
	ThreatenedByPawns   Bitboard
	ThreatenedByKnights Bitboard
	ThreatenedByMinors  Bitboard
	ThreatenedByRooks   Bitboard
	Checkers            Bitboard // opponent pieces giving check
	CheckMask           Bitboard // legal destination mask when in check; all-ones otherwise
	PinDiag             Bitboard // squares of own pieces pinned along a diagonal
	PinOrtho            Bitboard // squares of own pieces pinned along a file/rank
}

// current returns the State at the top of the stack.
func (p *Position) current() *State {
	return &p.states[p.ply]
}

// InCheck returns true if the side to move is in check.
func (p *Position) InCheck() bool {
	return p.current().Checkers != 0
}

// CheckersBB returns the bitboard of pieces currently giving check.
func (p *Position) CheckersBB() Bitboard {
	return p.current().Checkers
}

// Pinned returns the union of diagonally and orthogonally pinned own pieces.
func (p *Position) Pinned() Bitboard {
	st := p.current()
	return (st.PinDiag | st.PinOrtho) & p.Occupied[p.SideToMove]
}

// CurrentMove returns the move that produced the current position, or
// NoMove at the root of the state stack. Used by the counter-move heuristic.
func (p *Position) CurrentMove() Move {
	return p.current().Move
}

// ThreatMasks returns the squares attacked by each opponent piece class
// against the side to move, used by quiet-move ordering to spot a piece
// fleeing a cheaper attacker (spec.md §4.4).
func (p *Position) ThreatMasks() (byPawns, byKnights, byMinors, byRooks Bitboard) {
	st := p.current()
	return st.ThreatenedByPawns, st.ThreatenedByKnights, st.ThreatenedByMinors, st.ThreatenedByRooks
}

// computeMasks recomputes checkedSquares/threat masks/checkers/checkMask/pin
// masks for the side now to move and stores them on the current State.
// Called at the end of every doMove, MakeNullMove and setFromFEN (spec.md §3);
// undoMove pops back to a State whose masks are already in place.
func (p *Position) computeMasks() {
	st := p.current()
	us := p.SideToMove
	them := us.Other()
	ksq := p.KingSquare[us]
	occupiedNoKing := p.AllOccupied &^ SquareBB(ksq)

	var checked, byPawns, byKnights, byMinors, byRooks Bitboard

	pawns := p.Pieces[them][Pawn]
	bb := pawns
	for bb != 0 {
		sq := bb.PopLSB()
		a := PawnAttacks(sq, them)
		checked |= a
		byPawns |= a
	}

	knights := p.Pieces[them][Knight]
	bb = knights
	for bb != 0 {
		sq := bb.PopLSB()
		a := KnightAttacks(sq)
		checked |= a
		byKnights |= a
		byMinors |= a
	}

	bishops := p.Pieces[them][Bishop]
	bb = bishops
	for bb != 0 {
		sq := bb.PopLSB()
		a := BishopAttacks(sq, occupiedNoKing)
		checked |= a
		byMinors |= a
	}

	rooks := p.Pieces[them][Rook]
	bb = rooks
	for bb != 0 {
		sq := bb.PopLSB()
		a := RookAttacks(sq, occupiedNoKing)
		checked |= a
		byRooks |= a
	}

	queens := p.Pieces[them][Queen]
	bb = queens
	for bb != 0 {
		sq := bb.PopLSB()
		a := QueenAttacks(sq, occupiedNoKing)
		checked |= a
	}

	checked |= KingAttacks(p.KingSquare[them])

	st.CheckedSquares = checked
	st.ThreatenedByPawns = byPawns
	st.ThreatenedByKnights = byKnights
	st.ThreatenedByMinors = byMinors
	st.ThreatenedByRooks = byRooks

	// Checkers: attackers of our king, using the real occupancy (king included).
	checkers := p.AttackersByColor(ksq, them, p.AllOccupied)
	st.Checkers = checkers

	// checkMask: squares that block or capture every checker. All-ones if
	// not in check; a single checker's own square plus any intervening
	// squares on a sliding check; empty (no legal destination) with 2+ checkers.
	switch checkers.PopCount() {
	case 0:
		st.CheckMask = Universe
	case 1:
		checkerSq := checkers.LSB()
		st.CheckMask = checkers | Between(checkerSq, ksq)
	default:
		st.CheckMask = Empty
	}

	// Pin masks: scan opponent sliders x-raying through our own pieces.
	var pinDiag, pinOrtho Bitboard

	orthoSnipers := RookAttacks(ksq, p.Occupied[them]) & (p.Pieces[them][Rook] | p.Pieces[them][Queen])
	for orthoSnipers != 0 {
		sq := orthoSnipers.PopLSB()
		between := Between(sq, ksq) & p.AllOccupied
		if between.PopCount() == 1 && between&p.Occupied[us] != 0 {
			pinOrtho |= between
		}
	}

	diagSnipers := BishopAttacks(ksq, p.Occupied[them]) & (p.Pieces[them][Bishop] | p.Pieces[them][Queen])
	for diagSnipers != 0 {
		sq := diagSnipers.PopLSB()
		between := Between(sq, ksq) & p.AllOccupied
		if between.PopCount() == 1 && between&p.Occupied[us] != 0 {
			pinDiag |= between
		}
	}

	st.PinDiag = pinDiag
	st.PinOrtho = pinOrtho
}

// repetitionCount returns how many earlier states within the 50-move
// window share the current hash (spec.md §3, §4.8 repetition detection).
func (p *Position) repetitionCount() int {
	count := 0
	hash := p.Hash
	limit := p.ply - p.HalfMoveClock
	if limit < 0 {
		limit = 0
	}
	for i := p.ply - 2; i >= limit; i -= 2 {
		if p.states[i].Hash == hash {
			count++
		}
	}
	return count
}

// IsRepetitionDraw returns true once a position has occurred twice before
// within the 50-move window (three total occurrences: threefold).
func (p *Position) IsRepetitionDraw() bool {
	return p.repetitionCount() >= 2
}
