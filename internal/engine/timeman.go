package engine

import (
	"time"

	"github.com/hailam/chessplay/internal/board"
)

// UCILimits contains UCI `go` command time control and search-bound
// parameters.
type UCILimits struct {
	Time      [2]time.Duration // wtime, btime: remaining time for each color
	Inc       [2]time.Duration // winc, binc: increment per move
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth, 0 = unbounded
	Nodes     uint64           // maximum nodes to search, 0 = unbounded
	Infinite  bool             // search until stopped
}

// defaultMovesToGo is the assumed moves remaining under sudden death, used
// by the allocation formula when the GUI doesn't send movestogo.
const defaultMovesToGo = 40

// nodeCheckInterval is how often (in nodes) the search samples the clock.
const nodeCheckInterval = 1024

// TimeManager allocates a time budget for one search and reports when to
// stop, per spec.md §4.8: allocatedTime = timeLeft/moves + increment, with
// moves = movestogo if given, else a fixed 40.
type TimeManager struct {
	allocated time.Duration
	maximum   time.Duration
	startTime time.Time
	nodeLimit uint64
	stopped   func() bool
}

// NewTimeManager creates an unconfigured time manager; call Init before use.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init configures the manager for a new search. us is the side to move,
// whose clock/increment the allocation is based on. stopped is polled
// alongside the clock/node checks to observe an external stop() request.
func (tm *TimeManager) Init(limits UCILimits, us board.Color, stopped func() bool) {
	tm.startTime = time.Now()
	tm.nodeLimit = limits.Nodes
	tm.stopped = stopped

	if limits.MoveTime > 0 {
		tm.allocated = limits.MoveTime
		tm.maximum = limits.MoveTime
		return
	}

	if limits.Infinite || limits.Time[us] == 0 {
		tm.allocated = 365 * 24 * time.Hour
		tm.maximum = tm.allocated
		return
	}

	moves := limits.MovesToGo
	if moves <= 0 {
		moves = defaultMovesToGo
	}

	tm.allocated = limits.Time[us]/time.Duration(moves) + limits.Inc[us]
	tm.maximum = tm.allocated
}

// Elapsed returns the time elapsed since the search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.startTime)
}

// Allocated returns the budget the search should try to stay within between
// iterative-deepening depths.
func (tm *TimeManager) Allocated() time.Duration {
	return tm.allocated
}

// ShouldStop is sampled once every nodeCheckInterval nodes (the caller is
// responsible for the modulo check) and reports whether the search has
// exceeded its time/node budget or an external stop() has been requested.
func (tm *TimeManager) ShouldStop(nodes uint64) bool {
	if tm.stopped != nil && tm.stopped() {
		return true
	}
	if tm.nodeLimit > 0 && nodes >= tm.nodeLimit {
		return true
	}
	return tm.Elapsed() >= tm.maximum
}
