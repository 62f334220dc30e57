package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/go-logr/stdr"

	"github.com/hailam/chessplay/internal/engine"
	"github.com/hailam/chessplay/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	hashMB     = flag.Int("hash", 16, "transposition table size in MiB")
	verbose    = flag.Bool("v", false, "enable verbose (V(1)) logging to stderr")
)

func main() {
	flag.Parse()

	// Start CPU profiling if requested (via flag or environment variable).
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	if *verbose {
		stdr.SetVerbosity(1)
	}

	eng := engine.NewEngine(*hashMB)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	protocol := uci.New(eng)
	protocol.SetLogger(logger)
	protocol.Run()
}
