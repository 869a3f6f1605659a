package sectorsim

import (
	"context"

	"github.com/sectorsim/sectorsim/internal/config"
	"github.com/sectorsim/sectorsim/internal/constants"
	"github.com/sectorsim/sectorsim/internal/core"
	"github.com/sectorsim/sectorsim/internal/dram"
	"github.com/sectorsim/sectorsim/internal/interfaces"
	"github.com/sectorsim/sectorsim/internal/logging"
	"github.com/sectorsim/sectorsim/internal/simerrutil"
)

// Options carries the optional collaborators a System is built with; any
// left nil get a sensible default, mirroring the reference CreateAndServe's
// Options (Context/Logger/Observer all optional).
type Options struct {
	Context context.Context

	Logger   *logging.Logger
	Observer Observer

	// DRAM overrides the default fixed-latency controller built from cfg;
	// tests typically pass a *MockDRAM here instead.
	DRAM interfaces.DRAMInterface

	// MaxCycles bounds Run when the traces never naturally finish (e.g. a
	// config with expected_limit_insts == 0 on every core); 0 means no cap.
	MaxCycles int64
}

// System is the assembled simulator: a Processor driving one or more
// traces through the cache hierarchy config.Config selects, backed by
// either a provided DRAMInterface or the built-in fixed-latency
// internal/dram.Controller.
type System struct {
	cfg  *config.Config
	proc *core.Processor

	metrics  *Metrics
	observer Observer
	logger   *logging.Logger

	maxCycles int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSystem assembles a System from a parsed Config and the list of
// per-core trace files. This is the constructor a CLI driver or a test
// harness calls instead of reaching into internal/core directly.
func NewSystem(cfg *config.Config, traceFiles []string, options *Options) (*System, error) {
	if cfg == nil {
		return nil, simerrutil.New("sectorsim.NewSystem", simerrutil.CodeConfigError, "cfg must not be nil")
	}
	if options == nil {
		options = &Options{}
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}

	numLevels := 0
	if cfg.HasCoreCaches() {
		numLevels += 2
	}
	if cfg.HasL3Cache() {
		numLevels++
	}

	metrics := NewMetrics(numLevels)
	var observer Observer = &NoOpObserver{}
	if options.Observer != nil {
		observer = options.Observer
	} else {
		observer = NewMetricsObserver(metrics)
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}

	dramIface := options.DRAM
	if dramIface == nil {
		dramIface = buildDefaultDRAM(cfg, observer)
	}

	// Observer's method set is identical to interfaces.Observer/StatsSink,
	// so it satisfies both structurally without an adapter.
	proc, err := core.NewProcessor(cfg, traceFiles, dramIface, observer, observer)
	if err != nil {
		return nil, err
	}

	sys := &System{
		cfg:       cfg,
		proc:      proc,
		metrics:   metrics,
		observer:  observer,
		logger:    logger,
		maxCycles: options.MaxCycles,
	}
	sys.ctx, sys.cancel = context.WithCancel(ctx)
	return sys, nil
}

func buildDefaultDRAM(cfg *config.Config, observer Observer) interfaces.DRAMInterface {
	latency := int64(100)
	blockSize := constants.DefaultBlockSize
	numLevels := 0
	if cfg.HasCoreCaches() {
		numLevels += 2
	}
	if cfg.HasL3Cache() {
		numLevels++
	}
	dramCfg := dram.Config{
		BlockSize:         blockSize,
		SectorSize:        cfg.SectorSize(),
		NumLevels:         numLevels,
		QueueDepth:        64,
		ReadLatency:       latency,
		WriteLatency:      latency,
		Sectored:          cfg.IsSectoredDRAM() || cfg.IsDGMS(),
		Half:              cfg.IsHalfDRAM(),
		FineGrained:       cfg.IsFineGrainedDRAM(),
		BurstChop:         cfg.IsBurstChopDRAM(),
		BurstCycles:       4,
	}
	dramObs, _ := observer.(dram.Observer)
	return dram.NewController(dramCfg, dramObs)
}

// Result summarizes one Run call.
type Result struct {
	Cycles int64
	Insts  int64
	IPC    float64
	Snapshot MetricsSnapshot
}

// Run ticks the Processor until it finishes (per the early_exit policy),
// MaxCycles is reached, or ctx is cancelled, then returns a summary.
// Mirrors the reference's top-level "while (!proc.finished()) proc.tick()"
// driver loop, which lives outside Processor itself in the original.
func (s *System) Run(ctx context.Context) (Result, error) {
	if ctx == nil {
		ctx = s.ctx
	}
	var cycles int64
	for {
		select {
		case <-ctx.Done():
			return s.result(cycles), ctx.Err()
		case <-s.ctx.Done():
			return s.result(cycles), s.ctx.Err()
		default:
		}
		if s.proc.Finished() {
			break
		}
		if s.maxCycles > 0 && cycles >= s.maxCycles {
			break
		}
		s.proc.Tick()
		cycles++
	}
	return s.result(cycles), nil
}

func (s *System) result(cycles int64) Result {
	return Result{
		Cycles:   cycles,
		Insts:    s.proc.Insts(),
		IPC:      s.proc.IPC(),
		Snapshot: s.metrics.Snapshot(),
	}
}

// Stop cancels the System's context, causing any in-flight Run to return
// on its next loop iteration.
func (s *System) Stop() { s.cancel() }

// Metrics exposes the System's metrics sink for a caller that wants a
// snapshot mid-run (e.g. a SIGUSR1 diagnostic dump).
func (s *System) Metrics() *Metrics { return s.metrics }

// Processor exposes the underlying Processor for diagnostics.
func (s *System) Processor() *core.Processor { return s.proc }

// Logger exposes the System's logger.
func (s *System) Logger() *logging.Logger { return s.logger }
