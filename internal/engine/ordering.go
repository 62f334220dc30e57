package engine

import (
	"github.com/hailam/chessplay/internal/board"
)

// historyBonus is the "gravity" bonus magnitude for a cutoff/failure at the
// given depth: capped so that late-search updates don't swamp the table.
func historyBonus(depth int) int {
	b := 8 * depth * depth
	if b > 1536 {
		b = 1536
	}
	return b
}

// gravityUpdate applies entry += bonus - entry*|bonus|/8192, the self-damping
// update used for butterfly history: a value near the ±max bound moves less
// per update than one near zero.
func gravityUpdate(entry *int16, bonus int) {
	v := int(*entry)
	v += bonus - v*abs(bonus)/8192
	*entry = int16(v)
}

// History tracks the move-ordering heuristics that persist across the whole
// search: per-ply killers, a counter-move table keyed by the previous ply's
// (piece, to-square), and butterfly history keyed by (side, from, to).
type History struct {
	killers      [MaxPly][2]board.Move
	counterMoves [16][64]board.Move
	butterfly    [2][4096]int16
}

// NewHistory allocates a zeroed History table.
func NewHistory() *History {
	return &History{}
}

// Clear resets killers, counter-moves and butterfly history (ucinewgame).
func (h *History) Clear() {
	*h = History{}
}

// ClearKillers clears the killer pair for a single ply, done before
// descending into a node's move loop so a stale killer from a sibling
// subtree at the same ply isn't tried first.
func (h *History) ClearKillers(ply int) {
	h.killers[ply] = [2]board.Move{}
}

// Killers returns the killer pair for ply.
func (h *History) Killers(ply int) (board.Move, board.Move) {
	return h.killers[ply][0], h.killers[ply][1]
}

// UpdateKillers records m as the newest killer at ply, demoting the previous
// primary killer to secondary (unless m is already the primary).
func (h *History) UpdateKillers(ply int, m board.Move) {
	if h.killers[ply][0] == m {
		return
	}
	h.killers[ply][1] = h.killers[ply][0]
	h.killers[ply][0] = m
}

func historyIndex(from, to board.Square) int {
	return int(from)<<6 | int(to)
}

// CounterMove returns the stored reply to the opponent's last move, keyed by
// the piece that moved and the square it landed on.
func (h *History) CounterMove(prevPiece board.Piece, prevTo board.Square) board.Move {
	return h.counterMoves[prevPiece][prevTo]
}

// UpdateCounterMove records m as the reply to (prevPiece, prevTo).
func (h *History) UpdateCounterMove(prevPiece board.Piece, prevTo board.Square, m board.Move) {
	h.counterMoves[prevPiece][prevTo] = m
}

// ButterflyScore returns the current history score for (side, m).
func (h *History) ButterflyScore(side board.Color, m board.Move) int {
	return int(h.butterfly[side][historyIndex(m.From(), m.To())])
}

// UpdateButterfly applies the gravity rule to m's history entry.
func (h *History) UpdateButterfly(side board.Color, m board.Move, bonus int) {
	idx := historyIndex(m.From(), m.To())
	gravityUpdate(&h.butterfly[side][idx], bonus)
}

// UpdateQuietCutoff applies the full quiet-move update described in spec
// §4.7: best, a non-tactical cutoff move, gets +bonus and becomes the new
// killer/counter-move; every other quiet tried before it at this node gets
// -bonus. Tactical cutoffs never touch killers, counter-moves or history.
func (h *History) UpdateQuietCutoff(side board.Color, ply int, prevPiece board.Piece, prevTo board.Square, best board.Move, tried []board.Move, depth int) {
	bonus := historyBonus(depth)
	h.UpdateKillers(ply, best)
	if prevPiece != board.NoPiece {
		h.UpdateCounterMove(prevPiece, prevTo, best)
	}
	h.UpdateButterfly(side, best, bonus)
	for _, m := range tried {
		if m == best {
			continue
		}
		h.UpdateButterfly(side, m, -bonus)
	}
}

// mvvLva scores a tactical move by victim value minus attacker type, so
// queen-takes-pawn ranks below pawn-takes-queen.
func mvvLva(pos *board.Position, m board.Move) int {
	var victim board.PieceType
	if m.IsEnPassant() {
		victim = board.Pawn
	} else {
		victim = pos.PieceAt(m.To()).Type()
	}
	attacker := pos.PieceAt(m.From()).Type()
	return pieceValues[victim] - int(attacker)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
