package engine

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"golang.org/x/sync/semaphore"

	"github.com/hailam/chessplay/internal/board"
)

// ErrSearchInProgress is returned by Search when a previous search on this
// Engine hasn't returned yet; the engine runs exactly one search at a time.
var ErrSearchInProgress = errors.New("engine: search already in progress")

// Engine owns the transposition table and move-ordering history shared
// across searches and wraps a single Worker with the re-entrancy guard and
// logging the UCI front-end needs. Unlike a Lazy-SMP design, only one search
// runs at a time; the semaphore rejects a second concurrent call instead of
// starting a helper thread, matching the single-worker concurrency model.
type Engine struct {
	tt     *TranspositionTable
	worker *Worker
	sem    *semaphore.Weighted

	stopFlag bool // set via Stop; read by the stopped() callback passed into Worker.Search

	log logr.Logger

	// OnInfo, when set, is invoked once per completed iterative-deepening
	// depth during Search.
	OnInfo func(SearchInfo)
}

// NewEngine creates an Engine with a transposition table of the given size
// in megabytes.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	e := &Engine{
		tt:     tt,
		worker: NewWorker(tt),
		sem:    semaphore.NewWeighted(1),
		log:    stdr.New(log.New(os.Stderr, "", log.LstdFlags)),
	}
	e.worker.OnInfo = func(info SearchInfo) {
		if e.OnInfo != nil {
			e.OnInfo(info)
		}
	}
	return e
}

// SetLogger replaces the engine's logger; the UCI front-end passes down the
// logger it was given. The "Debug Log File" transcript does not go through it.
func (e *Engine) SetLogger(l logr.Logger) {
	e.log = l
}

// Search runs one search to completion (or to an external Stop/time-out),
// guarded by the engine's semaphore so a GUI that sends overlapping `go`
// commands gets ErrSearchInProgress instead of corrupting shared state.
func (e *Engine) Search(pos *board.Position, limits UCILimits, searchMoves []board.Move) (SearchResult, error) {
	if !e.sem.TryAcquire(1) {
		return SearchResult{}, ErrSearchInProgress
	}
	defer e.sem.Release(1)

	e.stopFlag = false
	e.log.V(1).Info("search start", "fen", pos.ToFEN(), "depth", limits.Depth, "movetime", limits.MoveTime)

	result := e.worker.Search(pos, limits, searchMoves, func() bool { return e.stopFlag })

	e.log.V(1).Info("search done", "bestmove", result.BestMove.String(), "score", result.Score, "depth", result.Depth, "nodes", e.worker.Nodes())
	return result, nil
}

// Stop requests that the in-progress search return as soon as it next
// samples the clock. Safe to call from a different goroutine than Search.
func (e *Engine) Stop() {
	e.stopFlag = true
}

// IsSearching reports whether a search currently holds the engine's
// re-entrancy semaphore.
func (e *Engine) IsSearching() bool {
	if e.sem.TryAcquire(1) {
		e.sem.Release(1)
		return false
	}
	return true
}

// NewGame resets the transposition table and move-ordering history for a
// new game (UCI ucinewgame), refusing while a search is in progress.
func (e *Engine) NewGame() {
	if !e.sem.TryAcquire(1) {
		return
	}
	defer e.sem.Release(1)
	e.tt.Clear()
	e.worker.ClearHistory()
}

// SetHashSize resizes the transposition table to sizeMB megabytes. Only
// valid between searches; the UCI layer enforces this by only handling
// `setoption name Hash` while idle.
func (e *Engine) SetHashSize(sizeMB int) {
	e.tt.Resize(sizeMB)
}

// Nodes returns the node count of the most recently completed (or
// in-progress) search.
func (e *Engine) Nodes() uint64 {
	return e.worker.Nodes()
}

// Evaluate returns the static evaluation of pos from the side-to-move's
// perspective, for the UCI `eval` debug command.
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// Perft counts the leaf nodes of the legal-move tree rooted at pos to the
// given depth, for the UCI `perft` and `test` commands.
func Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}
	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		if !pos.DoMove(m) {
			continue
		}
		nodes += Perft(pos, depth-1)
		pos.UndoMove(m)
	}
	return nodes
}

// PerftDivide returns, for each legal move at pos, the perft count of the
// subtree it leads to — the standard "perft divide" debugging aid for
// isolating a move generator bug to a single root move.
func PerftDivide(pos *board.Position, depth int) []struct {
	Move  board.Move
	Nodes uint64
} {
	moves := pos.GenerateLegalMoves()
	out := make([]struct {
		Move  board.Move
		Nodes uint64
	}, 0, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		if !pos.DoMove(m) {
			out = append(out, struct {
				Move  board.Move
				Nodes uint64
			}{m, 0})
			continue
		}
		nodes := Perft(pos, depth-1)
		pos.UndoMove(m)
		out = append(out, struct {
			Move  board.Move
			Nodes uint64
		}{m, nodes})
	}
	return out
}

// BenchPositions is the fixed suite used by the `bench` UCI sub-command: the
// starting position plus the standard perft-exercise FENs (spec.md §8), wide
// enough to touch quiet middlegame play, tactics and promotions.
var BenchPositions = []string{
	"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
}

// BenchResult summarizes a `bench` run: total nodes over the fixed suite,
// elapsed wall time and the resulting nodes-per-second.
type BenchResult struct {
	Nodes   uint64
	Elapsed time.Duration
	NPS     uint64
}

// Bench runs a fixed-depth search over BenchPositions and reports aggregate
// throughput. It drives the worker directly and does not take the Search
// semaphore. The UCI `bench` command does not call it; that command runs its
// own loop over BenchPositions through Search.
func (e *Engine) Bench(depth int) BenchResult {
	if depth <= 0 {
		depth = 12
	}
	e.tt.Clear()
	e.worker.ClearHistory()

	start := time.Now()
	var totalNodes uint64
	for _, fen := range BenchPositions {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			continue
		}
		limits := UCILimits{Depth: depth}
		e.worker.Search(pos, limits, nil, func() bool { return false })
		totalNodes += e.worker.Nodes()
	}
	elapsed := time.Since(start)

	var nps uint64
	if elapsed > 0 {
		nps = uint64(float64(totalNodes) / elapsed.Seconds())
	}
	e.log.Info("bench complete", "nodes", humanize.Comma(int64(totalNodes)), "nps", humanize.Comma(int64(nps)), "elapsed", elapsed)
	return BenchResult{Nodes: totalNodes, Elapsed: elapsed, NPS: nps}
}

// ScoreToString renders a search score the way the `eval` command's
// human-readable output does: "Mate in N" / "Mated in N" near a forced mate,
// else pawns with the centipawns after the point (a whole number of pawns
// shows as "N.0").
func ScoreToString(score int) string {
	if mate := MateIn(score); mate != 0 {
		if mate > 0 {
			return "Mate in " + itoa(mate)
		}
		return "Mated in " + itoa(-mate)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100
	if centipawns > 0 && centipawns < 10 {
		return sign + itoa(pawns) + ".0" + itoa(centipawns)
	}
	return sign + itoa(pawns) + "." + itoa(centipawns)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
