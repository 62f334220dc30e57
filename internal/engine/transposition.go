package engine

import (
	"math/bits"

	"github.com/hailam/chessplay/internal/board"
)

// TTBound indicates which side of the search window a stored score bounds.
type TTBound uint8

const (
	TTBoundNone  TTBound = 0
	TTUpperBound TTBound = 1 // Failed low: score is an upper bound
	TTLowerBound TTBound = 2 // Failed high (beta cutoff): score is a lower bound
	TTExact      TTBound = 3
)

// ttGenerationDelta is added to the generation counter on every NewSearch,
// leaving the low 3 bits of genBoundPV free for the PV flag and bound.
const (
	ttGenerationDelta = 8
	ttGenerationCycle = 256 + ttGenerationDelta
	ttGenerationMask  = 0xF8
)

// ttEntry is one 10-byte slot: a 16-bit verification tag, the packed move,
// the cached static eval, the bounded score, the search depth and a byte
// combining generation/pv/bound. Three of these plus 2 padding bytes make up
// a 32-byte cache-line-sized bucket.
type ttEntry struct {
	key16      uint16
	move       uint16
	eval       int16
	score      int16
	depth      uint8
	genBoundPV uint8
}

func (e *ttEntry) bound() TTBound { return TTBound(e.genBoundPV & 0x3) }
func (e *ttEntry) pv() bool       { return e.genBoundPV&0x4 != 0 }
func (e *ttEntry) generation() uint8 {
	return e.genBoundPV & ttGenerationMask
}

// relativeAge measures how many NewSearch generations old this entry is,
// wrapping correctly across the 8-bit generation counter.
func (e *ttEntry) relativeAge(currentGen uint8) uint8 {
	return uint8(ttGenerationCycle+currentGen-e.generation()) & ttGenerationMask
}

// quality is the replacement metric: deeper, fresher entries win ties.
func (e *ttEntry) quality(currentGen uint8) int {
	return int(e.depth) - int(e.relativeAge(currentGen))
}

const ttBucketSize = 3

// ttBucket is the unit of storage and lookup: a cache-line-sized cluster
// probed linearly (3 entries) rather than separately chained.
type ttBucket struct {
	entries [ttBucketSize]ttEntry
	_       [2]byte // pad to 32 bytes
}

// TranspositionTable is a bucketed hash table: each Zobrist hash maps to one
// bucket via a wide multiply, and the bucket's 3 entries are searched
// linearly for a tag match or, on miss, for the lowest-quality slot to evict.
type TranspositionTable struct {
	buckets    []ttBucket
	nbBuckets  uint64
	generation uint8

	hits   uint64
	probes uint64
}

// NewTranspositionTable creates a table sized to approximately sizeMB
// megabytes, rounding the bucket count so every bucket is a full 32 bytes.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	nbBuckets := (uint64(sizeMB) * 1024 * 1024) / 32
	if nbBuckets == 0 {
		nbBuckets = 1
	}
	return &TranspositionTable{
		buckets:   make([]ttBucket, nbBuckets),
		nbBuckets: nbBuckets,
	}
}

// Resize reallocates the table for a new size in MB, discarding all entries.
func (tt *TranspositionTable) Resize(sizeMB int) {
	nbBuckets := (uint64(sizeMB) * 1024 * 1024) / 32
	if nbBuckets == 0 {
		nbBuckets = 1
	}
	tt.buckets = make([]ttBucket, nbBuckets)
	tt.nbBuckets = nbBuckets
	tt.generation = 0
	tt.hits = 0
	tt.probes = 0
}

// bucketIndex maps a 64-bit hash onto [0, nbBuckets) via the high half of a
// 128-bit product, avoiding the modulo-bias and power-of-2-size constraint
// of a masked index.
func (tt *TranspositionTable) bucketIndex(hash uint64) uint64 {
	hi, _ := bits.Mul64(hash, tt.nbBuckets)
	return hi
}

// Prefetch is a documented no-op: Go exposes no portable cache-line-prefetch
// intrinsic, so probe/store pay the full memory latency instead of hiding it
// behind earlier move-generation work the way the source engine does with
// __builtin_prefetch.
func (tt *TranspositionTable) Prefetch(hash uint64) {}

// TTData is the decoded result of a successful Probe.
type TTData struct {
	Move  board.Move
	Score int
	Eval  int
	Depth int
	Bound TTBound
	PV    bool
}

// Probe looks up hash in its bucket, returning the decoded entry and true on
// a tag match. On a miss it still reports found=false but callers that want
// to store afterwards should call Store, which re-derives the eviction slot.
func (tt *TranspositionTable) Probe(hash uint64) (TTData, bool) {
	tt.probes++
	tag := uint16(hash)
	bucket := &tt.buckets[tt.bucketIndex(hash)]

	for i := range bucket.entries {
		e := &bucket.entries[i]
		if e.depth != 0 && e.key16 == tag {
			tt.hits++
			e.genBoundPV = tt.generation | (e.genBoundPV & 0x7)
			return TTData{
				Move:  board.Move(e.move),
				Score: int(e.score),
				Eval:  int(e.eval),
				Depth: int(e.depth),
				Bound: e.bound(),
				PV:    e.pv(),
			}, true
		}
	}
	return TTData{}, false
}

// Store writes (or refreshes) an entry for hash. The move field is only
// overwritten when a non-null move is supplied, so a bound-only re-store
// doesn't clobber a previously remembered best move. Among non-matching
// slots, the one with the lowest quality() is evicted; an exact bound at
// greater depth always replaces a matching tag, matching the source
// engine's bias toward keeping deep PV information around.
func (tt *TranspositionTable) Store(hash uint64, depth int, score int, eval int, bound TTBound, move board.Move, pv bool) {
	tag := uint16(hash)
	bucket := &tt.buckets[tt.bucketIndex(hash)]

	var victim *ttEntry
	victimQuality := 1 << 30

	for i := range bucket.entries {
		e := &bucket.entries[i]
		if e.depth == 0 {
			victim = e
			break
		}
		if e.key16 == tag {
			if move != board.NoMove {
				e.move = uint16(move)
			}
			if bound == TTExact || depth+4 > int(e.depth) || e.generation() != tt.generation {
				e.eval = int16(eval)
				e.score = int16(score)
				e.depth = uint8(depth)
				e.genBoundPV = tt.generation | boolBit(pv)<<2 | uint8(bound)
			}
			return
		}
		if q := e.quality(tt.generation); q < victimQuality {
			victimQuality = q
			victim = e
		}
	}

	if victim == nil {
		victim = &bucket.entries[0]
	}
	victim.key16 = tag
	victim.move = uint16(move)
	victim.eval = int16(eval)
	victim.score = int16(score)
	victim.depth = uint8(depth)
	victim.genBoundPV = tt.generation | boolBit(pv)<<2 | uint8(bound)
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// NewSearch advances the generation counter, making every existing entry one
// generation staler for replacement purposes without touching its contents.
func (tt *TranspositionTable) NewSearch() {
	tt.generation += ttGenerationDelta
}

// Clear zeroes the whole table and resets generation/statistics.
func (tt *TranspositionTable) Clear() {
	for i := range tt.buckets {
		tt.buckets[i] = ttBucket{}
	}
	tt.generation = 0
	tt.hits = 0
	tt.probes = 0
}

// HashFull samples 1000 buckets (3000 entries) and reports the permille that
// are occupied by the current generation, per the `info hashfull` UCI field.
func (tt *TranspositionTable) HashFull() int {
	sample := uint64(1000)
	if sample > tt.nbBuckets {
		sample = tt.nbBuckets
	}
	used := 0
	total := 0
	for i := uint64(0); i < sample; i++ {
		for _, e := range tt.buckets[i].entries {
			total++
			if e.depth != 0 && e.generation() == tt.generation {
				used++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return used * 1000 / total
}

// HitRate returns the cache hit rate as a percentage, for diagnostics.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Size returns the number of buckets in the table.
func (tt *TranspositionTable) Size() uint64 {
	return tt.nbBuckets
}

// AdjustScoreFromTT converts a stored mate score back to the current
// search's ply (mate scores are stored relative to the node they were found
// at, not the root, so they must be shifted on the way out of the table).
func AdjustScoreFromTT(score, ply int) int {
	if score == ScoreNone {
		return ScoreNone
	}
	if score > MateMaxPly {
		return score - ply
	}
	if score < -MateMaxPly {
		return score + ply
	}
	return score
}

// AdjustScoreToTT is the inverse of AdjustScoreFromTT, applied before Store.
func AdjustScoreToTT(score, ply int) int {
	if score == ScoreNone {
		return ScoreNone
	}
	if score > MateMaxPly {
		return score + ply
	}
	if score < -MateMaxPly {
		return score - ply
	}
	return score
}
