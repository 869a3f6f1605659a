// Command sectorsim drives a cache-hierarchy simulation against one or
// more instruction/memory traces and reports per-level hit rates and
// retirement-latency percentiles once the run ends (under the default
// early_exit policy, when the first core finishes or the cycle cap is hit).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sectorsim/sectorsim"
	"github.com/sectorsim/sectorsim/internal/config"
	"github.com/sectorsim/sectorsim/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a simulator config file (options like sectoredDRAM=on)")
		traceList  = flag.String("traces", "", "Comma-separated list of per-core trace files")
		verbose    = flag.Bool("v", false, "Verbose (debug-level) output")
		maxCycles  = flag.Int64("max-cycles", 0, "Stop after this many cycles even if traces haven't finished (0 = no cap)")
	)
	flag.Parse()

	if *traceList == "" {
		log.Fatal("at least one -traces file is required")
	}
	traceFiles := strings.Split(*traceList, ",")

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys, err := sectorsim.NewSystem(cfg, traceFiles, &sectorsim.Options{
		Context:   ctx,
		Logger:    logger,
		MaxCycles: *maxCycles,
	})
	if err != nil {
		logger.Error("failed to build system", "error", err)
		os.Exit(1)
	}

	logger.Info("simulation starting", "cores", len(traceFiles))

	// SIGUSR1 dumps every cache level's current counters, the simulator
	// equivalent of a goroutine stack dump: useful for seeing where a
	// long run is spending its misses without stopping it.
	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go func() {
		for range dumpCh {
			dumpDiagnostics(sys, logger)
		}
	}()

	done := make(chan struct{})
	var result sectorsim.Result
	var runErr error
	go func() {
		result, runErr = sys.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-sigCh:
		logger.Info("received shutdown signal, stopping")
		sys.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			logger.Info("shutdown timeout, forcing exit")
			os.Exit(1)
		}
	}

	if runErr != nil && runErr != context.Canceled {
		logger.Error("run ended with error", "error", runErr)
		os.Exit(1)
	}

	printSummary(result)
}

func dumpDiagnostics(sys *sectorsim.System, logger *logging.Logger) {
	snap := sys.Metrics().Snapshot()
	logger.Info("=== CACHE DIAGNOSTIC DUMP ===")
	for i, lvl := range snap.Levels {
		logger.Info("level", "index", i, "hits", lvl.Hits, "misses", lvl.Misses,
			"mshr_hits", lvl.MSHRHits, "hit_rate", lvl.HitRate, "evictions", lvl.Evictions,
			"dirty_evicts", lvl.DirtyEvicts, "backpressure", lvl.Backpressure)
	}
	logger.Info("dram", "reads", snap.DRAMReads, "writes", snap.DRAMWrites, "queue_depth", snap.DRAMQueueDepth)
	logger.Info("=== END DUMP ===")
}

func printSummary(result sectorsim.Result) {
	fmt.Printf("cycles: %d\n", result.Cycles)
	fmt.Printf("instructions: %d\n", result.Insts)
	fmt.Printf("ipc: %.4f\n", result.IPC)
	fmt.Printf("retired: %d  avg_latency: %.2f  p50: %d  p99: %d\n",
		result.Snapshot.RetiredInsts, result.Snapshot.AvgLatency,
		result.Snapshot.LatencyP50, result.Snapshot.LatencyP99)
	for i, lvl := range result.Snapshot.Levels {
		fmt.Printf("L%d: hits=%d misses=%d mshr_hits=%d hit_rate=%.4f evictions=%d dirty=%d\n",
			i, lvl.Hits, lvl.Misses, lvl.MSHRHits, lvl.HitRate, lvl.Evictions, lvl.DirtyEvicts)
	}
	fmt.Printf("dram: reads=%d writes=%d\n", result.Snapshot.DRAMReads, result.Snapshot.DRAMWrites)
}
