package board

import (
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the FEN string for the starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// SetFromFEN parses fen into p, replacing its entire contents. On success it
// resets the State stack to a single root state and recomputes masks; on
// failure it leaves p cleared (spec.md §3/§4.2: "resets-and-returns-failure").
func (p *Position) SetFromFEN(fen string) bool {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		p.Clear()
		return false
	}

	p.Clear()

	if err := parsePiecePlacement(p, parts[0]); err != nil {
		p.Clear()
		return false
	}

	switch parts[1] {
	case "w":
		p.SideToMove = White
	case "b":
		p.SideToMove = Black
	default:
		p.Clear()
		return false
	}

	if err := parseCastlingRights(p, parts[2]); err != nil {
		p.Clear()
		return false
	}

	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil {
			p.Clear()
			return false
		}
		p.EnPassant = sq
	}

	if len(parts) > 4 {
		hmc, err := strconv.Atoi(parts[4])
		if err != nil {
			p.Clear()
			return false
		}
		p.HalfMoveClock = hmc
	}

	if len(parts) > 5 {
		fmn, err := strconv.Atoi(parts[5])
		if err != nil {
			p.Clear()
			return false
		}
		p.FullMoveNumber = fmn
	}

	p.updateOccupied()
	p.findKings()
	if err := p.Validate(); err != nil {
		p.Clear()
		return false
	}

	// An en passant square is only meaningful if an enemy pawn could actually
	// capture onto it; otherwise drop it so it never leaks into the hash or
	// into move legality as a phantom target (spec.md §4.2).
	if p.EnPassant != NoSquare && !p.epCaptureExists() {
		p.EnPassant = NoSquare
	}

	p.ply = 0
	p.states = [MaxHistory]State{}
	p.Hash = p.ComputeHash()
	p.PawnKey = p.ComputePawnKey()

	st := p.current()
	st.CastlingRights = p.CastlingRights
	st.EnPassant = p.EnPassant
	st.HalfMoveClock = p.HalfMoveClock
	st.Move = NoMove
	st.CapturedPiece = NoPiece
	st.Hash = p.Hash

	p.computeMasks()

	return true
}

// epCaptureExists reports whether a pawn of the side to move currently
// attacks p.EnPassant, i.e. an en passant capture is actually available.
func (p *Position) epCaptureExists() bool {
	us := p.SideToMove
	attackers := PawnAttacks(p.EnPassant, us.Other()) & p.Pieces[us][Pawn]
	return attackers != 0
}

// ParseFEN parses a FEN string into a freshly allocated Position.
func ParseFEN(fen string) (*Position, error) {
	pos := &Position{}
	if !pos.SetFromFEN(fen) {
		return nil, fmt.Errorf("invalid FEN: %s", fen)
	}
	return pos, nil
}

// parsePiecePlacement parses the piece placement section of a FEN string.
func parsePiecePlacement(pos *Position, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("invalid piece placement: need 8 ranks, got %d", len(ranks))
	}

	for i, rankStr := range ranks {
		rank := 7 - i // FEN starts from rank 8
		file := 0

		for _, c := range rankStr {
			if file > 7 {
				return fmt.Errorf("too many squares in rank %d", rank+1)
			}

			if c >= '1' && c <= '8' {
				// Skip empty squares
				file += int(c - '0')
			} else {
				// Place a piece
				piece := PieceFromChar(byte(c))
				if piece == NoPiece {
					return fmt.Errorf("invalid piece character: %c", c)
				}
				sq := NewSquare(file, rank)
				pos.setPiece(piece, sq)
				file++
			}
		}

		if file != 8 {
			return fmt.Errorf("invalid number of squares in rank %d: got %d", rank+1, file)
		}
	}

	return nil
}

// parseCastlingRights parses the castling rights section of a FEN string.
func parseCastlingRights(pos *Position, castling string) error {
	if castling == "-" {
		pos.CastlingRights = NoCastling
		return nil
	}

	for _, c := range castling {
		switch c {
		case 'K':
			pos.CastlingRights |= WhiteKingSideCastle
		case 'Q':
			pos.CastlingRights |= WhiteQueenSideCastle
		case 'k':
			pos.CastlingRights |= BlackKingSideCastle
		case 'q':
			pos.CastlingRights |= BlackQueenSideCastle
		default:
			return fmt.Errorf("invalid castling character: %c", c)
		}
	}

	return nil
}

// ToFEN returns the FEN representation of the position.
func (p *Position) ToFEN() string {
	var sb strings.Builder

	// Piece placement
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			sq := NewSquare(file, rank)
			piece := p.PieceAt(sq)
			if piece == NoPiece {
				empty++
			} else {
				if empty > 0 {
					sb.WriteString(strconv.Itoa(empty))
					empty = 0
				}
				sb.WriteString(piece.String())
			}
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	// Side to move
	sb.WriteByte(' ')
	if p.SideToMove == White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	// Castling rights
	sb.WriteByte(' ')
	sb.WriteString(p.CastlingRights.String())

	// En passant
	sb.WriteByte(' ')
	sb.WriteString(p.EnPassant.String())

	// Half-move clock and full-move number
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.HalfMoveClock))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.FullMoveNumber))

	return sb.String()
}

// ComputeHash computes the Zobrist hash for the position from scratch.
func (p *Position) ComputeHash() uint64 {
	var hash uint64

	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			bb := p.Pieces[c][pt]
			for bb != 0 {
				sq := bb.PopLSB()
				hash ^= zobristPiece[c][pt][sq]
			}
		}
	}

	if p.SideToMove == Black {
		hash ^= zobristSideToMove
	}

	hash ^= zobristCastling[p.CastlingRights]

	// Branchless EP key: index 8 (the sentinel) is always zero, so XOR-ing it
	// unconditionally when EnPassant is NoSquare is equivalent to skipping it.
	hash ^= zobristEnPassantKey(p.EnPassant)

	return hash
}

// ComputePawnKey computes the pawn hash key from scratch.
// Only includes pawn positions for pawn structure caching.
func (p *Position) ComputePawnKey() uint64 {
	var key uint64

	for c := White; c <= Black; c++ {
		bb := p.Pieces[c][Pawn]
		for bb != 0 {
			sq := bb.PopLSB()
			key ^= zobristPiece[c][Pawn][sq]
		}
	}

	return key
}
