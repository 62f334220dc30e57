package engine

import (
	"sort"

	"github.com/hailam/chessplay/internal/board"
)

// PickerMode selects between the full staged ordering used in the main
// search and the narrower tactical-only ordering used in quiescence.
type PickerMode int

const (
	MainSearch PickerMode = iota
	Quiescence
)

const (
	nbPieceType = 6 // Pawn..King

	queenThreatEscapeBonus = 50000
	rookThreatEscapeBonus  = 25000
	minorThreatEscapeBonus = 15000
	checkingMoveBonus      = 10000
	underpromotionPenalty  = -10000

	goodQuietThreshold = -4000
)

type scoredMove struct {
	move  board.Move
	score int
}

func sortDesc(ms []scoredMove) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].score > ms[j].score })
}

func isTactical(pos *board.Position, m board.Move) bool {
	if m.IsCapture(pos) {
		return true
	}
	return m.IsPromotion() && m.Promotion() == board.Queen
}

// isCheckingMove reports whether m gives check, via a do/undo probe; the
// picker builds its buckets once per node so this cost is acceptable against
// the ordering quality it buys.
func isCheckingMove(pos *board.Position, m board.Move) bool {
	if !pos.DoMove(m) {
		return false
	}
	check := pos.InCheck()
	pos.UndoMove(m)
	return check
}

// threatEscapeBonus implements the "fleeing a lower-valued attacker" term of
// the quiet-move score: if the piece's origin square is attacked by a
// cheaper piece class and the destination is not, moving it earns a bonus
// scaled by what the piece itself is worth.
func threatEscapeBonus(pos *board.Position, pt board.PieceType, from, to board.Square) int {
	byPawns, _, byMinors, byRooks := pos.ThreatMasks()

	var lower board.Bitboard
	var bonus int
	switch pt {
	case board.Queen:
		lower = byRooks | byMinors | byPawns
		bonus = queenThreatEscapeBonus
	case board.Rook:
		lower = byMinors | byPawns
		bonus = rookThreatEscapeBonus
	case board.Knight, board.Bishop:
		lower = byPawns
		bonus = minorThreatEscapeBonus
	default:
		return 0
	}
	if lower.IsSet(from) && !lower.IsSet(to) {
		return bonus
	}
	return 0
}

func scoreQuiet(pos *board.Position, hist *History, m board.Move) int {
	from, to := m.From(), m.To()
	pt := pos.PieceAt(from).Type()

	score := nbPieceType - int(pt)
	score += threatEscapeBonus(pos, pt, from, to)
	score += hist.ButterflyScore(pos.SideToMove, m)

	if isCheckingMove(pos, m) {
		score += checkingMoveBonus
	}
	if m.IsPromotion() && m.Promotion() != board.Queen {
		score += underpromotionPenalty
	}
	return score
}

// stage identifies the picker's position in the 9-stage sequence of
// spec.md §4.4. Evasions short-circuits straight to stageDone once drained.
type stage int

const (
	stageTT stage = iota
	stageGoodTacticals
	stageKiller1
	stageKiller2
	stageCounter
	stageGoodQuiets
	stageBadTacticals
	stageBadQuiets
	stageDone
)

// MovePicker emits legal moves for one search node in an order designed to
// maximize alpha-beta cutoffs: TT move, check evasions (which replace every
// later stage), tacticals split into good/bad by SEE, killers and the
// counter-move, quiets split into good/bad by score, then the bad buckets.
// SkipQuiets lets the search abandon quiet moves entirely (after a
// futility/LMP decision) without the picker needing to know why.
type MovePicker struct {
	pos    *board.Position
	hist   *History
	ttMove board.Move
	ply    int
	mode   PickerMode

	inCheck bool
	evading bool

	prevPiece board.Piece
	prevTo    board.Square
	killer1   board.Move
	killer2   board.Move
	counter   board.Move

	SkipQuiets bool

	st  stage
	idx int

	goodTacticals []scoredMove
	badTacticals  []scoredMove
	goodQuiets    []scoredMove
	badQuiets     []scoredMove

	tried []board.Move // quiets emitted so far, for the gravity malus on cutoff
}

// NewMovePicker prepares a picker for pos at the given search ply. ttMove is
// the hinted move from the transposition table (board.NoMove if none).
func NewMovePicker(pos *board.Position, hist *History, ttMove board.Move, ply int, mode PickerMode) *MovePicker {
	mp := &MovePicker{
		pos:    pos,
		hist:   hist,
		ttMove: ttMove,
		ply:    ply,
		mode:   mode,
		st:     stageTT,
	}
	mp.inCheck = pos.InCheck()
	mp.killer1, mp.killer2 = hist.Killers(ply)

	if prev := pos.CurrentMove(); prev != board.NoMove && prev != board.NullMove {
		mp.prevTo = prev.To()
		mp.prevPiece = pos.PieceAt(mp.prevTo)
		mp.counter = hist.CounterMove(mp.prevPiece, mp.prevTo)
	} else {
		mp.prevPiece = board.NoPiece
	}

	mp.generateBuckets()
	return mp
}

// Tried returns the quiet moves emitted so far this node (for the history
// malus applied to non-cutoff quiets once a cutoff move is found).
func (mp *MovePicker) Tried() []board.Move { return mp.tried }

// PrevPiece/PrevTo expose the previous-ply (piece, to) pair so the search
// can record a counter-move on a cutoff.
func (mp *MovePicker) PrevPiece() board.Piece { return mp.prevPiece }
func (mp *MovePicker) PrevTo() board.Square   { return mp.prevTo }

// generateBuckets partitions every legal move (other than the TT move) into
// tactical/quiet and scores each, once per node. In check, every legal move
// is treated as an "evasion": scored as tactical+1000000 or by history, and
// emitted as a single sorted run with no further staging.
func (mp *MovePicker) generateBuckets() {
	all := mp.pos.GenerateLegalMoves()

	if mp.pos.InCheck() {
		mp.evading = true
		var evasions []scoredMove
		for i := 0; i < all.Len(); i++ {
			m := all.Get(i)
			if m == mp.ttMove {
				continue
			}
			var score int
			if isTactical(mp.pos, m) {
				score = mvvLva(mp.pos, m) + 1000000
			} else {
				score = mp.hist.ButterflyScore(mp.pos.SideToMove, m)
			}
			evasions = append(evasions, scoredMove{m, score})
		}
		sortDesc(evasions)
		mp.goodTacticals = evasions
		return
	}

	for i := 0; i < all.Len(); i++ {
		m := all.Get(i)
		if m == mp.ttMove {
			continue
		}

		if isTactical(mp.pos, m) {
			sm := scoredMove{m, mvvLva(mp.pos, m)}
			if mp.mode == Quiescence {
				if mp.pos.SEE(m, 0) {
					mp.goodTacticals = append(mp.goodTacticals, sm)
				}
				continue
			}
			if mp.pos.SEE(m, -50) {
				mp.goodTacticals = append(mp.goodTacticals, sm)
			} else {
				mp.badTacticals = append(mp.badTacticals, sm)
			}
			continue
		}

		if mp.mode == Quiescence {
			continue
		}
		if m == mp.killer1 || m == mp.killer2 || m == mp.counter {
			continue // emitted in the killer/counter stages instead
		}

		sm := scoredMove{m, scoreQuiet(mp.pos, mp.hist, m)}
		if sm.score >= goodQuietThreshold {
			mp.goodQuiets = append(mp.goodQuiets, sm)
		} else {
			mp.badQuiets = append(mp.badQuiets, sm)
		}
	}

	sortDesc(mp.goodTacticals)
	sortDesc(mp.badTacticals)
	sortDesc(mp.goodQuiets)
	sortDesc(mp.badQuiets)
}

// Next returns the next move in priority order, or (NoMove, false) once
// every legal move has been emitted.
func (mp *MovePicker) Next() (board.Move, bool) {
	for mp.st != stageDone {
		switch mp.st {
		case stageTT:
			mp.st = stageGoodTacticals
			if mp.ttMove != board.NoMove && mp.pos.IsLegal(mp.ttMove) {
				return mp.ttMove, true
			}

		case stageGoodTacticals:
			if mp.idx < len(mp.goodTacticals) {
				m := mp.goodTacticals[mp.idx].move
				mp.idx++
				return m, true
			}
			mp.idx = 0
			if mp.evading {
				mp.st = stageDone
				continue
			}
			if mp.mode == Quiescence || mp.SkipQuiets {
				mp.st = stageBadTacticals
			} else {
				mp.st = stageKiller1
			}

		case stageKiller1:
			mp.st = stageKiller2
			if mp.killer1 != board.NoMove && mp.killer1 != mp.ttMove && mp.pos.IsLegal(mp.killer1) && !isTactical(mp.pos, mp.killer1) {
				mp.tried = append(mp.tried, mp.killer1)
				return mp.killer1, true
			}

		case stageKiller2:
			mp.st = stageCounter
			if mp.killer2 != board.NoMove && mp.killer2 != mp.ttMove && mp.pos.IsLegal(mp.killer2) && !isTactical(mp.pos, mp.killer2) {
				mp.tried = append(mp.tried, mp.killer2)
				return mp.killer2, true
			}

		case stageCounter:
			mp.st = stageGoodQuiets
			if mp.counter != board.NoMove && mp.counter != mp.ttMove && mp.counter != mp.killer1 && mp.counter != mp.killer2 &&
				mp.pos.IsLegal(mp.counter) && !isTactical(mp.pos, mp.counter) {
				mp.tried = append(mp.tried, mp.counter)
				return mp.counter, true
			}

		case stageGoodQuiets:
			if mp.idx < len(mp.goodQuiets) {
				m := mp.goodQuiets[mp.idx].move
				mp.idx++
				mp.tried = append(mp.tried, m)
				return m, true
			}
			mp.idx = 0
			mp.st = stageBadTacticals

		case stageBadTacticals:
			if mp.idx < len(mp.badTacticals) {
				m := mp.badTacticals[mp.idx].move
				mp.idx++
				return m, true
			}
			mp.idx = 0
			if mp.SkipQuiets {
				mp.st = stageDone
				continue
			}
			mp.st = stageBadQuiets

		case stageBadQuiets:
			if mp.idx < len(mp.badQuiets) {
				m := mp.badQuiets[mp.idx].move
				mp.idx++
				mp.tried = append(mp.tried, m)
				return m, true
			}
			mp.st = stageDone
		}
	}
	return board.NoMove, false
}
