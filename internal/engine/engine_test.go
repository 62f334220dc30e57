package engine

import (
	"testing"
	"time"

	"github.com/hailam/chessplay/internal/board"
)

func TestSearchBasic(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	result, err := eng.Search(pos, UCILimits{Depth: 4}, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.BestMove == board.NoMove {
		t.Error("Search returned NoMove for starting position")
	}
	t.Logf("Best move: %s (score %d, depth %d)", result.BestMove.String(), result.Score, result.Depth)
}

func TestSearchRespectsSearchMoves(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	allowed := []board.Move{board.NewMove(board.E2, board.E4), board.NewMove(board.D2, board.D4)}
	result, err := eng.Search(pos, UCILimits{Depth: 4}, allowed)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.BestMove != allowed[0] && result.BestMove != allowed[1] {
		t.Errorf("bestmove %s not among searchmoves", result.BestMove.String())
	}
}

func TestSearchRejectsReentry(t *testing.T) {
	eng := NewEngine(16)
	if !eng.sem.TryAcquire(1) {
		t.Fatal("expected semaphore to be free before any search")
	}
	_, err := eng.Search(board.NewPosition(), UCILimits{Depth: 1}, nil)
	if err != ErrSearchInProgress {
		t.Errorf("expected ErrSearchInProgress while semaphore held, got %v", err)
	}
	eng.sem.Release(1)
}

func TestSearchMoveTimeStopsPromptly(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	start := time.Now()
	result, err := eng.Search(pos, UCILimits{MoveTime: 100 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.BestMove == board.NoMove {
		t.Error("Search returned NoMove under a move-time budget")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("search took %v, expected to stop near the 100ms budget", elapsed)
	}
}

func TestSearchVariousPositions(t *testing.T) {
	positions := []string{
		board.StartFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3", // Italian Game
		"8/8/8/4k3/8/4K3/4P3/8 w - - 0 1",                                  // KP endgame
	}

	eng := NewEngine(16)
	for i, fen := range positions {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("Failed to parse position %d: %v", i, err)
		}

		result, err := eng.Search(pos, UCILimits{Depth: 5}, nil)
		if err != nil {
			t.Fatalf("position %d: Search: %v", i, err)
		}
		if result.BestMove == board.NoMove && pos.GenerateLegalMoves().Len() > 0 {
			t.Errorf("position %d: Search returned NoMove with legal moves available", i)
		} else {
			t.Logf("position %d: best move = %s", i, result.BestMove.String())
		}
	}
}

func TestNewGameClearsHashAndHistory(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	if _, err := eng.Search(pos, UCILimits{Depth: 6}, nil); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if eng.tt.HashFull() == 0 {
		t.Fatal("expected transposition table entries after a depth-6 search")
	}

	eng.NewGame()
	if eng.tt.HashFull() != 0 {
		t.Errorf("expected an empty hash table after NewGame, got %d permille full", eng.tt.HashFull())
	}
	if *eng.worker.hist != (History{}) {
		t.Error("expected cleared move-ordering history after NewGame")
	}
}

func TestPerftStartingPosition(t *testing.T) {
	pos := board.NewPosition()
	cases := []struct {
		depth int
		nodes uint64
	}{
		{1, 20},
		{2, 400},
		{3, 8902},
		{4, 197281},
	}
	for _, c := range cases {
		if got := Perft(pos, c.depth); got != c.nodes {
			t.Errorf("Perft(%d) = %d, want %d", c.depth, got, c.nodes)
		}
	}
}

func TestPerftKiwipete(t *testing.T) {
	pos, err := board.ParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	if got := Perft(pos, 3); got != 97862 {
		t.Errorf("Perft(3) on kiwipete = %d, want 97862", got)
	}
}

func TestScoreToString(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, "0.0"},
		{100, "1.0"},
		{-50, "-0.50"},
		{Mate - 1, "Mate in 1"},
		{-(Mate - 1), "Mated in 1"},
	}
	for _, c := range cases {
		if got := ScoreToString(c.score); got != c.want {
			t.Errorf("ScoreToString(%d) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestEvaluateSymmetric(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(1)
	if got := eng.Evaluate(pos); got != tempoBonus {
		t.Errorf("starting position eval = %d, want tempo bonus %d", got, tempoBonus)
	}
}

func TestBenchCompletes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bench in short mode")
	}
	eng := NewEngine(16)
	result := eng.Bench(4)
	if result.Nodes == 0 {
		t.Error("expected Bench to search a nonzero number of nodes")
	}
}
