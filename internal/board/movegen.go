package board

// GenerateLegalMoves enumerates every legal move for the side to move,
// dispatching on the number of checkers (spec.md §4.3): two checkers
// restricts to king moves, one checker restricts non-king moves to the
// check mask, zero checkers additionally allows castling.
func (p *Position) GenerateLegalMoves() *MoveList {
	ml := NewMoveList()
	st := p.current()

	switch st.Checkers.PopCount() {
	case 2:
		p.generateKingMoves(ml)
	default:
		p.generatePawnMoves(ml)
		p.generateKnightMoves(ml)
		p.generateSliderMoves(ml, Bishop)
		p.generateSliderMoves(ml, Rook)
		p.generateSliderMoves(ml, Queen)
		p.generateKingMoves(ml)
		if st.Checkers == 0 {
			p.generateCastlingMoves(ml)
		}
	}

	return ml
}

// GenerateCaptures enumerates legal captures and promotions.
func (p *Position) GenerateCaptures() *MoveList {
	all := p.GenerateLegalMoves()
	result := NewMoveList()
	for i := 0; i < all.Len(); i++ {
		m := all.Get(i)
		if m.IsCapture(p) || m.IsPromotion() {
			result.Add(m)
		}
	}
	return result
}

// pinOK reports whether moving the (possibly pinned) piece on `from` to `to`
// keeps it on the pin ray through the king, or whether it isn't pinned at all.
func pinOK(pinned Bitboard, ksq, from, to Square) bool {
	if pinned&SquareBB(from) == 0 {
		return true
	}
	return Line(ksq, from)&SquareBB(to) != 0
}

// generatePawnMoves generates legal pawn pushes, captures, promotions and en
// passant captures, honoring the check mask and pin restrictions.
func (p *Position) generatePawnMoves(ml *MoveList) {
	us := p.SideToMove
	them := us.Other()
	st := p.current()
	ksq := p.KingSquare[us]
	pinned := p.Pinned()
	occupied := p.AllOccupied
	empty := ^occupied
	enemies := p.Occupied[them]
	pawns := p.Pieces[us][Pawn]

	var push1, push2, attackL, attackR Bitboard
	var promotionRank Bitboard
	var pushDir int

	if us == White {
		push1 = pawns.North() & empty
		push2 = (push1 & Rank3).North() & empty
		attackL = pawns.NorthWest() & enemies
		attackR = pawns.NorthEast() & enemies
		promotionRank = Rank8
		pushDir = 8
	} else {
		push1 = pawns.South() & empty
		push2 = (push1 & Rank6).South() & empty
		attackL = pawns.SouthWest() & enemies
		attackR = pawns.SouthEast() & enemies
		promotionRank = Rank1
		pushDir = -8
	}

	push1 &= st.CheckMask
	push2 &= st.CheckMask
	attackL &= st.CheckMask
	attackR &= st.CheckMask

	nonPromo := push1 &^ promotionRank
	for nonPromo != 0 {
		to := nonPromo.PopLSB()
		from := Square(int(to) - pushDir)
		if pinOK(pinned, ksq, from, to) {
			ml.Add(NewMove(from, to))
		}
	}

	for push2 != 0 {
		to := push2.PopLSB()
		from := Square(int(to) - 2*pushDir)
		if pinOK(pinned, ksq, from, to) {
			ml.Add(NewMove(from, to))
		}
	}

	nonPromoL := attackL &^ promotionRank
	for nonPromoL != 0 {
		to := nonPromoL.PopLSB()
		from := Square(int(to) - pushDir + 1)
		if pinOK(pinned, ksq, from, to) {
			ml.Add(NewMove(from, to))
		}
	}

	nonPromoR := attackR &^ promotionRank
	for nonPromoR != 0 {
		to := nonPromoR.PopLSB()
		from := Square(int(to) - pushDir - 1)
		if pinOK(pinned, ksq, from, to) {
			ml.Add(NewMove(from, to))
		}
	}

	promoPush := push1 & promotionRank
	for promoPush != 0 {
		to := promoPush.PopLSB()
		from := Square(int(to) - pushDir)
		if pinOK(pinned, ksq, from, to) {
			addPromotions(ml, from, to)
		}
	}

	promoL := attackL & promotionRank
	for promoL != 0 {
		to := promoL.PopLSB()
		from := Square(int(to) - pushDir + 1)
		if pinOK(pinned, ksq, from, to) {
			addPromotions(ml, from, to)
		}
	}

	promoR := attackR & promotionRank
	for promoR != 0 {
		to := promoR.PopLSB()
		from := Square(int(to) - pushDir - 1)
		if pinOK(pinned, ksq, from, to) {
			addPromotions(ml, from, to)
		}
	}

	if p.EnPassant != NoSquare {
		epBB := SquareBB(p.EnPassant)
		var epAttackers Bitboard
		var capturedSq Square
		if us == White {
			epAttackers = (epBB.SouthWest() | epBB.SouthEast()) & pawns
			capturedSq = p.EnPassant - 8
		} else {
			epAttackers = (epBB.NorthWest() | epBB.NorthEast()) & pawns
			capturedSq = p.EnPassant + 8
		}

		// En passant can resolve check either by capturing onto the check
		// mask (blocking/capturing along a ray) or by removing the checking
		// pawn itself, which sits on capturedSq rather than on `to`.
		if st.CheckMask&(epBB|SquareBB(capturedSq)) != 0 {
			for epAttackers != 0 {
				from := epAttackers.PopLSB()
				if !pinOK(pinned, ksq, from, p.EnPassant) {
					continue
				}
				if p.epDiscoversCheck(us, from, capturedSq) {
					continue
				}
				ml.Add(NewEnPassant(from, p.EnPassant))
			}
		}
	}
}

// addPromotions adds all four promotion moves.
func addPromotions(ml *MoveList, from, to Square) {
	ml.Add(NewPromotion(from, to, Queen))
	ml.Add(NewPromotion(from, to, Rook))
	ml.Add(NewPromotion(from, to, Bishop))
	ml.Add(NewPromotion(from, to, Knight))
}

// epDiscoversCheck reports whether capturing en passant exposes the king to
// a horizontal check: the king, the capturing pawn and the captured pawn all
// share a rank with an enemy rook or queen that the double pawn removal
// uncovers (spec.md §4.3's second pawn/EP edge case).
func (p *Position) epDiscoversCheck(us Color, from, capturedSq Square) bool {
	them := us.Other()
	ksq := p.KingSquare[us]
	if ksq.Rank() != from.Rank() {
		return false
	}
	occ := p.AllOccupied &^ SquareBB(from) &^ SquareBB(capturedSq)
	attackers := RookAttacks(ksq, occ) & (p.Pieces[them][Rook] | p.Pieces[them][Queen])
	return attackers != 0
}

// generateKnightMoves generates legal knight moves. A pinned knight never
// has a legal move (it cannot stay aligned with the king while jumping).
func (p *Position) generateKnightMoves(ml *MoveList) {
	us := p.SideToMove
	st := p.current()
	knights := p.Pieces[us][Knight] &^ p.Pinned()

	for knights != 0 {
		from := knights.PopLSB()
		attacks := KnightAttacks(from) &^ p.Occupied[us] & st.CheckMask
		for attacks != 0 {
			to := attacks.PopLSB()
			ml.Add(NewMove(from, to))
		}
	}
}

// generateSliderMoves generates legal bishop, rook or queen moves, masking
// destinations to the pin ray for pinned pieces and to the check mask.
func (p *Position) generateSliderMoves(ml *MoveList, pt PieceType) {
	us := p.SideToMove
	st := p.current()
	ksq := p.KingSquare[us]
	pinned := p.Pinned()
	pieces := p.Pieces[us][pt]

	for pieces != 0 {
		from := pieces.PopLSB()

		var attacks Bitboard
		switch pt {
		case Bishop:
			attacks = BishopAttacks(from, p.AllOccupied)
		case Rook:
			attacks = RookAttacks(from, p.AllOccupied)
		case Queen:
			attacks = QueenAttacks(from, p.AllOccupied)
		}
		attacks &^= p.Occupied[us]
		attacks &= st.CheckMask

		if pinned&SquareBB(from) != 0 {
			attacks &= Line(ksq, from)
		}

		for attacks != 0 {
			to := attacks.PopLSB()
			ml.Add(NewMove(from, to))
		}
	}
}

// generateKingMoves generates non-castling king moves: any square not
// occupied by a friendly piece and not attacked by the opponent. CheckedSquares
// is computed with the king removed from occupancy, so a king cannot "hide"
// behind itself from a slider it is currently blocking.
func (p *Position) generateKingMoves(ml *MoveList) {
	us := p.SideToMove
	st := p.current()
	from := p.KingSquare[us]
	attacks := KingAttacks(from) &^ p.Occupied[us] &^ st.CheckedSquares

	for attacks != 0 {
		to := attacks.PopLSB()
		ml.Add(NewMove(from, to))
	}
}

// generateCastlingMoves generates castling moves. Only called when the side
// to move is not in check (spec.md §4.3: castling forbidden while in check).
func (p *Position) generateCastlingMoves(ml *MoveList) {
	us := p.SideToMove
	st := p.current()

	if us == White {
		if p.CastlingRights&WhiteKingSideCastle != 0 &&
			p.AllOccupied&(SquareBB(F1)|SquareBB(G1)) == 0 &&
			st.CheckedSquares&(SquareBB(E1)|SquareBB(F1)|SquareBB(G1)) == 0 {
			ml.Add(NewCastling(E1, G1))
		}
		if p.CastlingRights&WhiteQueenSideCastle != 0 &&
			p.AllOccupied&(SquareBB(B1)|SquareBB(C1)|SquareBB(D1)) == 0 &&
			st.CheckedSquares&(SquareBB(E1)|SquareBB(D1)|SquareBB(C1)) == 0 {
			ml.Add(NewCastling(E1, C1))
		}
	} else {
		if p.CastlingRights&BlackKingSideCastle != 0 &&
			p.AllOccupied&(SquareBB(F8)|SquareBB(G8)) == 0 &&
			st.CheckedSquares&(SquareBB(E8)|SquareBB(F8)|SquareBB(G8)) == 0 {
			ml.Add(NewCastling(E8, G8))
		}
		if p.CastlingRights&BlackQueenSideCastle != 0 &&
			p.AllOccupied&(SquareBB(B8)|SquareBB(C8)|SquareBB(D8)) == 0 &&
			st.CheckedSquares&(SquareBB(E8)|SquareBB(D8)|SquareBB(C8)) == 0 {
			ml.Add(NewCastling(E8, C8))
		}
	}
}

// IsLegal validates an untrusted move (a TT move, killer or counter-move
// that may reference a stale or wrong position) without generating the full
// move list (spec.md §4.2).
func (p *Position) IsLegal(m Move) bool {
	if m == NoMove || m == NullMove {
		return false
	}

	us := p.SideToMove
	them := us.Other()
	from := m.From()
	to := m.To()
	if from == to {
		return false
	}

	piece := p.PieceAt(from)
	if piece.Type() == NoPieceType || piece.Color() != us {
		return false
	}
	if p.Occupied[us]&SquareBB(to) != 0 {
		return false
	}

	st := p.current()
	ksq := p.KingSquare[us]
	pt := piece.Type()

	switch pt {
	case King:
		if m.IsCastling() {
			ml := NewMoveList()
			if st.Checkers == 0 {
				p.generateCastlingMoves(ml)
			}
			return ml.Contains(m)
		}
		if m.IsPromotion() || m.IsEnPassant() {
			return false
		}
		if KingAttacks(from)&SquareBB(to) == 0 {
			return false
		}
		occNoKing := p.AllOccupied &^ SquareBB(from)
		return p.AttackersByColor(to, them, occNoKing) == 0

	case Pawn:
		return p.isLegalPawnMove(m, from, to, us, them, st, ksq)

	default:
		if st.Checkers.PopCount() == 2 {
			return false
		}
		if m.IsPromotion() || m.IsEnPassant() || m.IsCastling() {
			return false
		}

		var attacks Bitboard
		switch pt {
		case Knight:
			attacks = KnightAttacks(from)
		case Bishop:
			attacks = BishopAttacks(from, p.AllOccupied)
		case Rook:
			attacks = RookAttacks(from, p.AllOccupied)
		case Queen:
			attacks = QueenAttacks(from, p.AllOccupied)
		}
		if attacks&SquareBB(to) == 0 {
			return false
		}
		if st.CheckMask&SquareBB(to) == 0 {
			return false
		}
		if pt == Knight && p.Pinned()&SquareBB(from) != 0 {
			return false
		}
		if (st.PinDiag|st.PinOrtho)&SquareBB(from) != 0 && Line(ksq, from)&SquareBB(to) == 0 {
			return false
		}
		return true
	}
}

// isLegalPawnMove validates an untrusted pawn move against current masks.
func (p *Position) isLegalPawnMove(m Move, from, to Square, us, them Color, st *State, ksq Square) bool {
	if st.Checkers.PopCount() == 2 {
		return false
	}
	pinned := p.Pinned()&SquareBB(from) != 0

	if m.IsEnPassant() {
		if to != p.EnPassant {
			return false
		}
		if PawnAttacks(from, us)&SquareBB(to) == 0 {
			return false
		}
		var capturedSq Square
		if us == White {
			capturedSq = to - 8
		} else {
			capturedSq = to + 8
		}
		if p.PieceAt(capturedSq) != NewPiece(Pawn, them) {
			return false
		}
		if st.CheckMask&(SquareBB(to)|SquareBB(capturedSq)) == 0 {
			return false
		}
		if pinned && Line(ksq, from)&SquareBB(to) == 0 {
			return false
		}
		return !p.epDiscoversCheck(us, from, capturedSq)
	}

	isCapture := p.Occupied[them]&SquareBB(to) != 0
	if isCapture {
		if PawnAttacks(from, us)&SquareBB(to) == 0 {
			return false
		}
	} else {
		var oneStep Square
		if us == White {
			oneStep = from + 8
		} else {
			oneStep = from - 8
		}
		if to == oneStep {
			if !p.IsEmpty(to) {
				return false
			}
		} else {
			startRank := Rank2
			var twoStep Square
			if us == White {
				twoStep = from + 16
			} else {
				startRank = Rank7
				twoStep = from - 16
			}
			if to != twoStep || SquareBB(from)&startRank == 0 {
				return false
			}
			if !p.IsEmpty(oneStep) || !p.IsEmpty(to) {
				return false
			}
		}
	}

	promotionRank := Rank8
	if us == Black {
		promotionRank = Rank1
	}
	if (SquareBB(to)&promotionRank != 0) != m.IsPromotion() {
		return false
	}

	if st.CheckMask&SquareBB(to) == 0 {
		return false
	}
	if pinned && Line(ksq, from)&SquareBB(to) == 0 {
		return false
	}
	return true
}

// DoMove applies move m, which must be pseudo-legal, pushing a new State
// onto the history stack and recomputing the check/pin masks for the side
// now to move (spec.md §4.2: doMove). The state stack is bounded by
// MaxHistory; a move that would overflow it is rejected (the position is
// left unchanged and DoMove returns false) rather than corrupting the stack.
func (p *Position) DoMove(m Move) bool {
	if p.ply+1 >= MaxHistory {
		return false
	}

	us := p.SideToMove
	them := us.Other()
	from := m.From()
	to := m.To()
	piece := p.PieceAt(from)
	pt := piece.Type()

	capturedPiece := NoPiece
	hash := p.Hash
	hash ^= zobristSideToMove
	hash ^= zobristCastling[p.CastlingRights]
	hash ^= zobristEnPassantKey(p.EnPassant)

	if m.IsEnPassant() {
		var capSq Square
		if us == White {
			capSq = to - 8
		} else {
			capSq = to + 8
		}
		capturedPiece = p.removePiece(capSq)
		hash ^= zobristPiece[them][Pawn][capSq]
	} else if cap := p.PieceAt(to); cap != NoPiece {
		capturedPiece = cap
		p.removePiece(to)
		hash ^= zobristPiece[them][cap.Type()][to]
	}

	p.movePiece(from, to)
	hash ^= zobristPiece[us][pt][from]
	hash ^= zobristPiece[us][pt][to]

	if m.IsPromotion() {
		promoPt := m.Promotion()
		p.Pieces[us][Pawn] &^= SquareBB(to)
		p.Pieces[us][promoPt] |= SquareBB(to)
		hash ^= zobristPiece[us][Pawn][to]
		hash ^= zobristPiece[us][promoPt][to]
	}

	if m.IsCastling() {
		var rookFrom, rookTo Square
		if to > from {
			rookFrom = NewSquare(7, from.Rank())
			rookTo = NewSquare(5, from.Rank())
		} else {
			rookFrom = NewSquare(0, from.Rank())
			rookTo = NewSquare(3, from.Rank())
		}
		p.movePiece(rookFrom, rookTo)
		hash ^= zobristPiece[us][Rook][rookFrom]
		hash ^= zobristPiece[us][Rook][rookTo]
	}

	newCastling := p.CastlingRights & CRMask[from] & CRMask[to]
	hash ^= zobristCastling[newCastling]

	newEnPassant := NoSquare
	if pt == Pawn && abs(int(to)-int(from)) == 16 {
		epSquare := Square((int(from) + int(to)) / 2)
		if PawnAttacks(epSquare, us)&p.Pieces[them][Pawn] != 0 {
			newEnPassant = epSquare
		}
	}
	hash ^= zobristEnPassantKey(newEnPassant)

	newHalfMove := p.HalfMoveClock
	if pt == Pawn || capturedPiece != NoPiece {
		newHalfMove = 0
	} else {
		newHalfMove++
	}

	if us == Black {
		p.FullMoveNumber++
	}

	p.CastlingRights = newCastling
	p.EnPassant = newEnPassant
	p.HalfMoveClock = newHalfMove
	p.Hash = hash
	p.SideToMove = them

	p.ply++
	st := p.current()
	st.CastlingRights = newCastling
	st.EnPassant = newEnPassant
	st.HalfMoveClock = newHalfMove
	st.Move = m
	st.CapturedPiece = capturedPiece
	st.Hash = hash

	p.computeMasks()
	return true
}

// UndoMove reverses the most recent DoMove(m), restoring the position and
// popping the State stack (spec.md §4.2: undoMove).
func (p *Position) UndoMove(m Move) {
	st := p.current()
	capturedPiece := st.CapturedPiece

	them := p.SideToMove
	us := them.Other()
	from := m.From()
	to := m.To()

	if us == Black {
		p.FullMoveNumber--
	}

	if m.IsPromotion() {
		promoPt := m.Promotion()
		p.Pieces[us][promoPt] &^= SquareBB(to)
		p.Pieces[us][Pawn] |= SquareBB(to)
	}

	p.movePiece(to, from)

	if m.IsCastling() {
		var rookFrom, rookTo Square
		if to > from {
			rookFrom = NewSquare(7, from.Rank())
			rookTo = NewSquare(5, from.Rank())
		} else {
			rookFrom = NewSquare(0, from.Rank())
			rookTo = NewSquare(3, from.Rank())
		}
		p.movePiece(rookTo, rookFrom)
	}

	if capturedPiece != NoPiece {
		if m.IsEnPassant() {
			var capSq Square
			if us == White {
				capSq = to - 8
			} else {
				capSq = to + 8
			}
			p.setPiece(capturedPiece, capSq)
		} else {
			p.setPiece(capturedPiece, to)
		}
	}

	p.ply--
	prev := p.current()
	p.CastlingRights = prev.CastlingRights
	p.EnPassant = prev.EnPassant
	p.HalfMoveClock = prev.HalfMoveClock
	p.Hash = prev.Hash
	p.SideToMove = us
}

// HashAfter returns the Zobrist hash the position would have after m,
// without mutating the position. Used to prefetch transposition table
// lines for the move about to be searched (spec.md §4.2).
func (p *Position) HashAfter(m Move) uint64 {
	us := p.SideToMove
	them := us.Other()
	from := m.From()
	to := m.To()
	piece := p.PieceAt(from)
	pt := piece.Type()

	hash := p.Hash
	hash ^= zobristSideToMove
	hash ^= zobristCastling[p.CastlingRights]
	hash ^= zobristEnPassantKey(p.EnPassant)

	if m.IsEnPassant() {
		var capSq Square
		if us == White {
			capSq = to - 8
		} else {
			capSq = to + 8
		}
		hash ^= zobristPiece[them][Pawn][capSq]
	} else if cap := p.PieceAt(to); cap != NoPiece {
		hash ^= zobristPiece[them][cap.Type()][to]
	}

	hash ^= zobristPiece[us][pt][from]
	promoPt := pt
	if m.IsPromotion() {
		promoPt = m.Promotion()
	}
	hash ^= zobristPiece[us][promoPt][to]

	if m.IsCastling() {
		var rookFrom, rookTo Square
		if to > from {
			rookFrom = NewSquare(7, from.Rank())
			rookTo = NewSquare(5, from.Rank())
		} else {
			rookFrom = NewSquare(0, from.Rank())
			rookTo = NewSquare(3, from.Rank())
		}
		hash ^= zobristPiece[us][Rook][rookFrom]
		hash ^= zobristPiece[us][Rook][rookTo]
	}

	newCastling := p.CastlingRights & CRMask[from] & CRMask[to]
	hash ^= zobristCastling[newCastling]

	newEnPassant := NoSquare
	if pt == Pawn && abs(int(to)-int(from)) == 16 {
		epSquare := Square((int(from) + int(to)) / 2)
		if PawnAttacks(epSquare, us)&p.Pieces[them][Pawn] != 0 {
			newEnPassant = epSquare
		}
	}
	hash ^= zobristEnPassantKey(newEnPassant)

	return hash
}

// HasLegalMoves returns true if the side to move has any legal moves.
func (p *Position) HasLegalMoves() bool {
	return p.GenerateLegalMoves().Len() > 0
}

// IsCheckmate returns true if the position is checkmate.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate returns true if the position is stalemate.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}

// IsDraw returns true if the position is a draw (stalemate, 50-move,
// insufficient material, or threefold repetition).
func (p *Position) IsDraw() bool {
	if p.IsStalemate() {
		return true
	}
	if p.HalfMoveClock >= 100 {
		return true
	}
	if p.IsRepetitionDraw() {
		return true
	}
	return p.IsInsufficientMaterial()
}

// IsInsufficientMaterial returns true if neither side can checkmate.
// Intentionally approximate: opposite-colored-bishop endgames are not
// recognized as drawn (spec.md §9 open question, preserved as-is).
func (p *Position) IsInsufficientMaterial() bool {
	if p.Pieces[White][Pawn]|p.Pieces[Black][Pawn] != 0 ||
		p.Pieces[White][Rook]|p.Pieces[Black][Rook] != 0 ||
		p.Pieces[White][Queen]|p.Pieces[Black][Queen] != 0 {
		return false
	}

	wKnights := p.Pieces[White][Knight].PopCount()
	wBishops := p.Pieces[White][Bishop].PopCount()
	bKnights := p.Pieces[Black][Knight].PopCount()
	bBishops := p.Pieces[Black][Bishop].PopCount()

	if wKnights+wBishops+bKnights+bBishops == 0 {
		return true
	}
	if wKnights+wBishops <= 1 && bKnights+bBishops == 0 {
		return true
	}
	if bKnights+bBishops <= 1 && wKnights+wBishops == 0 {
		return true
	}

	return false
}
