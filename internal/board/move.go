package board

import "fmt"

// Move encodes a chess move in 16 bits:
// bits 0-5:   to square (0-63)
// bits 6-11:  from square (0-63)
// bits 12-13: type (0=Normal, 1=Promotion, 2=EnPassant, 3=Castling)
// bits 14-15: promotion piece (encoded as pt-Knight; only meaningful when type==Promotion)
type Move uint16

// Move types (spec.md §3 calls this field "type"; teacher called it "flag").
const (
	FlagNormal    uint16 = 0 << 12
	FlagPromotion uint16 = 1 << 12
	FlagEnPassant uint16 = 2 << 12
	FlagCastling  uint16 = 3 << 12
)

// NoMove is the reserved MOVE_NONE value.
const NoMove Move = 0

// NullMove is the reserved MOVE_NULL value: to==from==A1 with the
// EnPassant type bits, a combination no legal move ever produces.
const NullMove Move = Move(FlagEnPassant)

// NewMove creates a normal move.
func NewMove(from, to Square) Move {
	return Move(to) | Move(from)<<6
}

// NewPromotion creates a promotion move.
func NewPromotion(from, to Square, promo PieceType) Move {
	promoIdx := promo - Knight
	return Move(to) | Move(from)<<6 | Move(FlagPromotion) | Move(promoIdx)<<14
}

// NewEnPassant creates an en passant capture move.
func NewEnPassant(from, to Square) Move {
	return Move(to) | Move(from)<<6 | Move(FlagEnPassant)
}

// NewCastling creates a castling move (king's movement).
func NewCastling(from, to Square) Move {
	return Move(to) | Move(from)<<6 | Move(FlagCastling)
}

// To returns the destination square.
func (m Move) To() Square {
	return Square(m & 0x3F)
}

// From returns the origin square.
func (m Move) From() Square {
	return Square((m >> 6) & 0x3F)
}

// Flag returns the move type bits.
func (m Move) Flag() uint16 {
	return uint16(m) & 0x3000
}

// Promotion returns the promotion piece type (only valid if IsPromotion() is true).
func (m Move) Promotion() PieceType {
	return PieceType((m>>14)&3) + Knight
}

// IsPromotion returns true if this is a promotion move.
func (m Move) IsPromotion() bool {
	return m.Flag() == FlagPromotion
}

// IsCastling returns true if this is a castling move.
func (m Move) IsCastling() bool {
	return m != NullMove && m.Flag() == FlagCastling
}

// IsEnPassant returns true if this is an en passant capture (and not the reserved null move).
func (m Move) IsEnPassant() bool {
	return m != NullMove && m != NoMove && m.Flag() == FlagEnPassant
}

// IsCapture returns true if this move captures a piece.
func (m Move) IsCapture(pos *Position) bool {
	if m.IsEnPassant() {
		return true
	}
	return !pos.IsEmpty(m.To())
}

// IsQuiet returns true if this is not a capture or promotion.
func (m Move) IsQuiet(pos *Position) bool {
	return !m.IsCapture(pos) && !m.IsPromotion()
}

// String returns the UCI format of the move (e.g., "e2e4", "e7e8q").
// Special tokens per spec: "(none)" for MOVE_NONE, "(null)" for MOVE_NULL.
func (m Move) String() string {
	if m == NoMove {
		return "(none)"
	}
	if m == NullMove {
		return "(null)"
	}

	s := m.From().String() + m.To().String()

	if m.IsPromotion() {
		promoChars := []byte{'n', 'b', 'r', 'q'}
		s += string(promoChars[m.Promotion()-Knight])
	}

	return s
}

// ParseMove parses a UCI format move string.
func ParseMove(s string, pos *Position) (Move, error) {
	if s == "(none)" {
		return NoMove, nil
	}
	if s == "(null)" {
		return NullMove, nil
	}
	if len(s) < 4 {
		return NoMove, fmt.Errorf("invalid move string: %s", s)
	}

	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove, err
	}

	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove, err
	}

	// Check for promotion
	if len(s) == 5 {
		var promo PieceType
		switch s[4] {
		case 'n':
			promo = Knight
		case 'b':
			promo = Bishop
		case 'r':
			promo = Rook
		case 'q':
			promo = Queen
		default:
			return NoMove, fmt.Errorf("invalid promotion piece: %c", s[4])
		}
		return NewPromotion(from, to, promo), nil
	}

	// Detect special moves
	piece := pos.PieceAt(from)
	if piece.Type() == NoPieceType {
		return NoMove, fmt.Errorf("no piece at %s", from)
	}

	pt := piece.Type()

	// Castling
	if pt == King && abs(int(to)-int(from)) == 2 {
		return NewCastling(from, to), nil
	}

	// En passant
	if pt == Pawn && to == pos.EnPassant && to.File() != from.File() {
		return NewEnPassant(from, to), nil
	}

	return NewMove(from, to), nil
}

// MoveList is a fixed-size list of moves to avoid allocations.
type MoveList struct {
	moves [256]Move
	count int
}

// NewMoveList creates an empty move list.
func NewMoveList() *MoveList {
	return &MoveList{}
}

// Add adds a move to the list.
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

// Len returns the number of moves in the list.
func (ml *MoveList) Len() int {
	return ml.count
}

// Get returns the move at index i.
func (ml *MoveList) Get(i int) Move {
	return ml.moves[i]
}

// Set sets the move at index i.
func (ml *MoveList) Set(i int, m Move) {
	ml.moves[i] = m
}

// Swap swaps two moves in the list.
func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
}

// Clear clears the list.
func (ml *MoveList) Clear() {
	ml.count = 0
}

// Contains returns true if the list contains the move.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}

// Slice returns the moves as a slice.
func (ml *MoveList) Slice() []Move {
	return ml.moves[:ml.count]
}
