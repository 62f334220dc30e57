package engine

import (
	"time"

	"github.com/hailam/chessplay/internal/board"
)

// NodeType distinguishes the root node, other PV nodes (on the principal
// variation, searched with a full window) and non-PV nodes (searched with a
// null window and no PV bookkeeping).
type NodeType int

const (
	NodeNonPV NodeType = iota
	NodePV
	NodeRoot
)

// PVTable is the classic triangular table: line[ply] holds the best
// continuation found so far rooted at ply, assembled bottom-up as each PV
// node's child line becomes known.
type PVTable struct {
	line   [MaxPly + 1][MaxPly + 1]board.Move
	length [MaxPly + 1]int
}

// Update records m as the move at ply and appends the already-known
// continuation from ply+1.
func (t *PVTable) Update(ply int, m board.Move) {
	t.line[ply][0] = m
	n := t.length[ply+1]
	if ply+1+n > MaxPly {
		n = MaxPly - ply - 1
	}
	copy(t.line[ply][1:1+n], t.line[ply+1][:n])
	t.length[ply] = n + 1
}

// PV returns the principal variation found from the root.
func (t *PVTable) PV() []board.Move {
	out := make([]board.Move, t.length[0])
	copy(out, t.line[0][:t.length[0]])
	return out
}

// SearchInfo is the per-depth progress event reported to the UCI front-end.
type SearchInfo struct {
	Depth    int
	SelDepth int
	Score    int
	Nodes    uint64
	NPS      uint64
	Elapsed  time.Duration
	HashFull int
	PV       []board.Move
}

// SearchResult is the outcome of one call to Worker.Search.
type SearchResult struct {
	BestMove board.Move
	Score    int
	Depth    int
	PV       []board.Move
}

// Worker runs one iterative-deepening search to completion or abort. A
// single Worker is owned by the Engine and reused across searches; only one
// search runs at a time (enforced by the Engine's semaphore), so the fields
// below need no synchronization of their own. The aborted flag is set by the
// search goroutine itself, in shouldAbort, when the time manager reports a
// stop (an external stop reaches it through the stopped callback).
type Worker struct {
	pos  *board.Position
	tt   *TranspositionTable
	hist *History

	pvTable  PVTable
	nodes    uint64
	selDepth int
	aborted  bool

	tm        *TimeManager
	rootMoves []board.Move

	OnInfo func(SearchInfo)
}

// NewWorker creates a Worker sharing tt with the Engine.
func NewWorker(tt *TranspositionTable) *Worker {
	return &Worker{tt: tt, hist: NewHistory()}
}

// Nodes returns the node count of the most recent (or in-progress) search.
func (w *Worker) Nodes() uint64 { return w.nodes }

// Stop raises the cooperative abort flag observed at node checkpoints.
func (w *Worker) Stop() { w.aborted = true }

// ClearHistory resets move-ordering tables (ucinewgame).
func (w *Worker) ClearHistory() { w.hist.Clear() }

func containsMove(list []board.Move, m board.Move) bool {
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}

func isDrawByRule(pos *board.Position) bool {
	return pos.HalfMoveClock >= 100 || pos.IsInsufficientMaterial() || pos.IsRepetitionDraw()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Search runs iterative deepening from pos until limits/stop are reached,
// reporting one SearchInfo per completed depth via OnInfo and returning the
// last completed depth's result (spec.md §4.8).
func (w *Worker) Search(pos *board.Position, limits UCILimits, searchMoves []board.Move, stopped func() bool) SearchResult {
	w.pos = pos
	w.nodes = 0
	w.aborted = false
	w.rootMoves = searchMoves

	rootList := pos.GenerateLegalMoves()
	if rootList.Len() == 0 {
		return SearchResult{BestMove: board.NoMove}
	}
	fallback := rootList.Get(0)

	w.tm = NewTimeManager()
	w.tm.Init(limits, pos.SideToMove, stopped)
	w.tt.NewSearch()

	startTime := time.Now()

	maxDepth := MaxPly
	if limits.Depth > 0 && limits.Depth < maxDepth {
		maxDepth = limits.Depth
	}

	var best SearchResult
	lastScore := 0

	for depth := 1; depth <= maxDepth; depth++ {
		w.selDepth = 0

		var alpha, beta, delta int
		if depth <= 4 {
			alpha, beta = -Infinite, Infinite
		} else {
			delta = 16 + abs(lastScore)/100
			alpha = lastScore - delta
			beta = lastScore + delta
		}

		var score int
		for {
			w.pvTable.length[0] = 0
			score = w.negamax(depth, 0, alpha, beta, NodeRoot, false)
			if w.aborted {
				break
			}
			if score <= alpha {
				beta = (alpha + beta) / 2
				alpha = score - delta
			} else if score >= beta {
				beta = score + delta
			} else {
				break
			}
			delta += delta / 2
			alpha = maxInt(alpha, -Infinite)
			beta = minInt(beta, Infinite)
		}

		if w.aborted {
			if depth == 1 {
				pv := w.pvTable.PV()
				if len(pv) > 0 {
					best = SearchResult{BestMove: pv[0], Score: score, Depth: 1, PV: pv}
				} else {
					best = SearchResult{BestMove: fallback, Score: 0, Depth: 0}
				}
			}
			break
		}

		lastScore = score
		pv := w.pvTable.PV()
		bestMove := fallback
		if len(pv) > 0 {
			bestMove = pv[0]
		}
		best = SearchResult{BestMove: bestMove, Score: score, Depth: depth, PV: pv}

		if w.OnInfo != nil {
			elapsed := time.Since(startTime)
			var nps uint64
			if elapsed > 0 {
				nps = uint64(float64(w.nodes) / elapsed.Seconds())
			}
			w.OnInfo(SearchInfo{
				Depth:    depth,
				SelDepth: w.selDepth,
				Score:    score,
				Nodes:    w.nodes,
				NPS:      nps,
				Elapsed:  elapsed,
				HashFull: w.tt.HashFull(),
				PV:       pv,
			})
		}
	}

	return best
}

// shouldAbort samples the clock every nodeCheckInterval nodes, per spec
// §4.8's "sampled once every 1024 nodes" time-manager contract.
func (w *Worker) shouldAbort() bool {
	if w.aborted {
		return true
	}
	if w.nodes&(nodeCheckInterval-1) == 0 && w.tm.ShouldStop(w.nodes) {
		w.aborted = true
	}
	return w.aborted
}

// negamax implements the PVS tree search described in spec.md §4.8. depth<=0
// hands off to quiescence; everything else is one alpha-beta node shared by
// root, PV and non-PV callers, distinguished by nodeType.
func (w *Worker) negamax(depth, ply int, alpha, beta int, nodeType NodeType, prevWasNull bool) int {
	isPV := nodeType != NodeNonPV
	isRoot := nodeType == NodeRoot

	if depth <= 0 {
		return w.quiescence(0, ply, alpha, beta)
	}

	if isPV {
		w.selDepth = maxInt(w.selDepth, ply+1)
	}

	if !isRoot {
		if w.shouldAbort() {
			return 0
		}

		alpha = maxInt(alpha, -Mate+ply)
		beta = minInt(beta, Mate-ply-1)
		if alpha >= beta {
			return alpha
		}

		if isDrawByRule(w.pos) {
			return 1 - int(w.nodes&2)
		}
	}

	if ply >= MaxPly {
		return Evaluate(w.pos)
	}

	hash := w.pos.Hash
	ttData, ttHit := w.tt.Probe(hash)
	ttMove := board.NoMove
	if ttHit {
		ttMove = ttData.Move
		ttScore := AdjustScoreFromTT(ttData.Score, ply)
		if !isPV && ttData.Depth >= depth {
			switch {
			case ttData.Bound == TTLowerBound && ttScore >= beta:
				return ttScore
			case ttData.Bound == TTUpperBound && ttScore <= alpha:
				return ttScore
			case ttData.Bound == TTExact:
				return ttScore
			}
		}
	}

	inCheck := w.pos.InCheck()
	var staticEval int
	switch {
	case inCheck:
		staticEval = ScoreNone
	case ttHit && ttData.Eval != ScoreNone:
		staticEval = ttData.Eval
	default:
		staticEval = Evaluate(w.pos)
		if !ttHit {
			// Cache the eval now so a later probe of this position (even one
			// that aborts before reaching this node's own Store call) finds
			// it, per spec.md §4.8 step 8.
			w.tt.Store(hash, 1, ScoreNone, staticEval, TTBoundNone, board.NoMove, isPV)
		}
	}

	if !isPV && !inCheck && depth <= 4 && staticEval != ScoreNone && staticEval-100*depth >= beta {
		return staticEval
	}

	if !isPV && !inCheck && !prevWasNull && staticEval != ScoreNone && staticEval >= beta && w.pos.HasNonPawnMaterial() {
		r := 4 + depth/4
		undo := w.pos.MakeNullMove()
		score := -w.negamax(depth-r, ply+1, -beta, -beta+1, NodeNonPV, true)
		w.pos.UnmakeNullMove(undo)
		if w.aborted {
			return 0
		}
		if score >= beta {
			if score > MateMaxPly {
				score = beta
			}
			return score
		}
	}

	if isPV && inCheck && depth <= 2 {
		depth++
	}

	w.hist.ClearKillers(ply + 1)

	picker := NewMovePicker(w.pos, w.hist, ttMove, ply, MainSearch)
	bestScore := -Infinite
	bestMove := board.NoMove
	origAlpha := alpha
	movesSearched := 0

	for {
		m, ok := picker.Next()
		if !ok {
			break
		}
		if isRoot && len(w.rootMoves) > 0 && !containsMove(w.rootMoves, m) {
			continue
		}

		w.tt.Prefetch(w.pos.HashAfter(m))
		if !w.pos.DoMove(m) {
			// History stack exhausted (spec.md §3); treat as having no
			// further legal continuation rather than corrupting the stack.
			continue
		}
		w.nodes++

		var score int
		if movesSearched == 0 {
			childType := NodeNonPV
			if isPV {
				childType = NodePV
			}
			score = -w.negamax(depth-1, ply+1, -beta, -alpha, childType, false)
		} else {
			score = -w.negamax(depth-1, ply+1, -alpha-1, -alpha, NodeNonPV, false)
			if isPV && score > alpha && score < beta {
				score = -w.negamax(depth-1, ply+1, -beta, -alpha, NodePV, false)
			}
		}

		w.pos.UndoMove(m)
		movesSearched++

		if w.aborted {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = m
		}
		if score > alpha {
			alpha = score
			if isPV {
				w.pvTable.Update(ply, m)
			}
			if score >= beta {
				if !isTactical(w.pos, m) {
					w.hist.UpdateQuietCutoff(w.pos.SideToMove, ply, picker.PrevPiece(), picker.PrevTo(), m, picker.Tried(), depth)
				}
				break
			}
		}
	}

	if movesSearched == 0 {
		if inCheck {
			return -Mate + ply
		}
		return DrawScore
	}

	var bound TTBound
	switch {
	case bestScore >= beta:
		bound = TTLowerBound
	case bestScore <= origAlpha:
		bound = TTUpperBound
	default:
		bound = TTExact
	}
	w.tt.Store(hash, depth, AdjustScoreToTT(bestScore, ply), staticEval, bound, bestMove, isPV)

	return bestScore
}

// quiescence resolves captures/checks until the position is "quiet", per the
// 7-step algorithm of spec.md §4.8. depth counts down from 0 and gates the
// "skip quiet TT move" heuristic; it is unrelated to the main search's ply.
func (w *Worker) quiescence(depth, ply, alpha, beta int) int {
	if w.shouldAbort() {
		return 0
	}

	alpha = maxInt(alpha, -Mate+ply)
	beta = minInt(beta, Mate-ply-1)
	if alpha >= beta {
		return alpha
	}

	if isDrawByRule(w.pos) {
		return 1 - int(w.nodes&2)
	}
	if ply >= MaxPly {
		return Evaluate(w.pos)
	}

	inCheck := w.pos.InCheck()
	var bestScore, standPat int
	if inCheck {
		bestScore = -Mate + ply
	} else {
		standPat = Evaluate(w.pos)
		bestScore = standPat
		if standPat >= beta {
			return standPat
		}
		if standPat > alpha {
			alpha = standPat
		}
	}

	ttDepth := 0
	if inCheck {
		ttDepth = 1
	}

	hash := w.pos.Hash
	ttData, ttHit := w.tt.Probe(hash)
	ttMove := board.NoMove
	if ttHit {
		ttMove = ttData.Move
		ttScore := AdjustScoreFromTT(ttData.Score, ply)
		if ttData.Depth >= ttDepth {
			switch {
			case ttData.Bound == TTLowerBound && ttScore >= beta:
				return ttScore
			case ttData.Bound == TTUpperBound && ttScore <= alpha:
				return ttScore
			case ttData.Bound == TTExact:
				return ttScore
			}
		}
		if ttMove != board.NoMove && !inCheck && depth < -7 && !isTactical(w.pos, ttMove) {
			ttMove = board.NoMove
		}
	}

	picker := NewMovePicker(w.pos, w.hist, ttMove, ply, Quiescence)
	origAlpha := alpha
	bestMove := board.NoMove

	for {
		m, ok := picker.Next()
		if !ok {
			break
		}

		w.tt.Prefetch(w.pos.HashAfter(m))
		if !w.pos.DoMove(m) {
			continue
		}
		w.nodes++
		score := -w.quiescence(depth-1, ply+1, -beta, -alpha)
		w.pos.UndoMove(m)

		if w.aborted {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = m
		}
		if score > alpha {
			alpha = score
			if score >= beta {
				break
			}
		}
	}

	var bound TTBound
	switch {
	case bestScore >= beta:
		bound = TTLowerBound
	case bestScore <= origAlpha:
		bound = TTUpperBound
	default:
		bound = TTExact
	}
	w.tt.Store(hash, ttDepth, AdjustScoreToTT(bestScore, ply), standPat, bound, bestMove, false)

	return bestScore
}
