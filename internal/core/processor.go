package core

import (
	"github.com/sectorsim/sectorsim/internal/cachesim"
	"github.com/sectorsim/sectorsim/internal/config"
	"github.com/sectorsim/sectorsim/internal/constants"
	"github.com/sectorsim/sectorsim/internal/interfaces"
	"github.com/sectorsim/sectorsim/internal/predictor"
	"github.com/sectorsim/sectorsim/internal/reqpool"
	"github.com/sectorsim/sectorsim/internal/simerrutil"
	"github.com/sectorsim/sectorsim/internal/trace"
)

// Processor owns every core's trace-driven stream, the cache hierarchy
// topology those streams share (private L1/L2 per core feeding one shared
// L3, per §5's "a core's L2 is referenced by the shared L3 as a higher
// cache"), and the single CacheSystem clock/wait-list/hit-list all of it
// runs on.
type Processor struct {
	cores []*Core
	sys   *cachesim.CacheSystem
	llc   *cachesim.Cache // nil when the config has no shared cache

	// terminals[i] is core i's own last-level cache, used to kick off the
	// Callback recursion when there is no shared LLC to do it for every
	// core at once; nil entries mean that core has no private cache at all.
	terminals []*cachesim.Cache

	earlyExit          bool
	expectedLimitInsts int64

	ipcs []float64
	ipc  float64
}

// NewProcessor builds the cache topology HasCoreCaches()/HasL3Cache()
// select, one Core per trace file, and wires every completion callback
// back through Processor.receive the way the reference's Processor
// constructor binds cores[i]->callback to std::bind(&Processor::receive).
func NewProcessor(cfg *config.Config, traceFiles []string, dram interfaces.DRAMInterface, obs interfaces.Observer, statsSink interfaces.StatsSink) (*Processor, error) {
	if len(traceFiles) == 0 {
		return nil, simerrutil.New("core.NewProcessor", simerrutil.CodeConfigError, "at least one trace file is required")
	}
	cfg.SetCoreNum(len(traceFiles))

	hasCoreCaches := cfg.HasCoreCaches()
	hasL3 := cfg.HasL3Cache()
	numLevels := 0
	if hasCoreCaches {
		numLevels += 2
	}
	if hasL3 {
		numLevels++
	}

	sys := cachesim.NewCacheSystem(dram)
	pool := reqpool.New(numLevels)

	blockSize := constants.DefaultBlockSize
	sectorSize := cfg.SectorSize()
	l1Latency, l2Latency, l3Latency := int64(constants.DefaultL1Latency), int64(constants.DefaultL2Latency), int64(constants.DefaultL3Latency)
	if cfg.IsSlowCache() {
		l1Latency, l2Latency, l3Latency = constants.SlowL1Latency, constants.SlowL2Latency, constants.SlowL3Latency
	}
	partialActivation := cfg.IsPartialActivationDRAM()

	var llc *cachesim.Cache
	llcLevel := 0
	if hasCoreCaches {
		llcLevel = 2
	}
	if hasL3 {
		llc = cachesim.NewCache(cachesim.Config{
			Level:                 cachesim.Level(llcLevel),
			Size:                  constants.DefaultL3Size,
			Assoc:                 constants.DefaultL3Assoc,
			BlockSize:             blockSize,
			MSHRs:                 constants.DefaultL3MSHRsPerCore * len(traceFiles),
			Latency:               l3Latency,
			SectorSize:            sectorSize,
			PartialActivationDRAM: partialActivation,
			IsLastLevel:           true,
		}, numLevels, obs)
		llc.SetSystem(sys)
	}

	p := &Processor{
		sys:                sys,
		llc:                llc,
		earlyExit:          cfg.IsEarlyExit(),
		expectedLimitInsts: cfg.ExpectedLimitInsts(),
		ipcs:               make([]float64, len(traceFiles)),
	}

	var higherForLLC []*cachesim.Cache
	for id, fname := range traceFiles {
		trc, err := trace.Open(fname, trace.Config{
			BlockSize:             int64(blockSize),
			SectorSize:            sectorSize,
			SectoredDRAM:          cfg.IsSectoredDRAM(),
			DGMS:                  cfg.IsDGMS(),
			PartialActivationDRAM: partialActivation,
			DynamicOn:             !cfg.IsDynamicPolicy(),
		})
		if err != nil {
			return nil, err
		}

		coreCfg := Config{
			WindowDepth:        constants.DefaultWindowDepth,
			WindowIPC:          constants.DefaultWindowIPC,
			ExpectedLimitInsts: cfg.ExpectedLimitInsts(),
		}

		var firstLevel *cachesim.Cache
		var send func(*cachesim.Request) bool

		switch {
		case hasCoreCaches:
			l2 := cachesim.NewCache(cachesim.Config{
				Level:                 cachesim.Level(1),
				Size:                  constants.DefaultL2Size,
				Assoc:                 constants.DefaultL2Assoc,
				BlockSize:             blockSize,
				MSHRs:                 constants.DefaultL2MSHRs,
				Latency:               l2Latency,
				SectorSize:            sectorSize,
				PartialActivationDRAM: partialActivation,
				IsLastLevel:           !hasL3,
			}, numLevels, obs)
			l1 := cachesim.NewCache(cachesim.Config{
				Level:                 cachesim.Level(0),
				Size:                  constants.DefaultL1Size,
				Assoc:                 constants.DefaultL1Assoc,
				BlockSize:             blockSize,
				MSHRs:                 constants.DefaultL1MSHRs,
				Latency:               l1Latency,
				SectorSize:            sectorSize,
				PartialActivationDRAM: partialActivation,
				IsFirstLevel:          true,
			}, numLevels, obs)
			l1.SetSystem(sys)
			l2.SetSystem(sys)

			if cfg.IsSpatialPredictorEnabled() {
				pred := predictor.New(predictor.Config{
					Enabled:               true,
					SectorSize:            sectorSize,
					BlockSize:             blockSize,
					PatternTableSize:      cfg.PatternTableSize(),
					Ways:                  cfg.PatternTableWays(),
					UtilizationWindow:     cfg.UtilizationWindow(),
					UntrainedNoPrediction: cfg.IsUntrainedPolicyNoPrediction(),
					Seed:                  int64(id) + 1,
				})
				l1.AttachPredictor(pred)
			}

			if hasL3 {
				l2.Link(llc)
				higherForLLC = append(higherForLLC, l2)
			} else {
				l2.Link(nil)
			}
			l1.Link(l2)

			firstLevel = l1
			send = l1.Send
			if !hasL3 {
				p.terminals = append(p.terminals, l2)
			} else {
				p.terminals = append(p.terminals, nil)
			}

		case hasL3:
			// No private per-core caches: every core sends straight into
			// the shared L3.
			send = llc.Send
			p.terminals = append(p.terminals, nil)

		default:
			// No caching at all: requests go directly to DRAM, bypassing
			// CacheSystem's wait/hit lists entirely, mirroring the
			// reference's no_core_caches && no_shared_cache degenerate mode.
			send = func(req *cachesim.Request) bool { return dram.SendMemory(req) }
			p.terminals = append(p.terminals, nil)
		}

		c := NewCore(id, coreCfg, trc, firstLevel, send, pool, statsSink)
		p.cores = append(p.cores, c)
	}

	if llc != nil {
		llc.Link(nil, higherForLLC...)
	}

	for _, c := range p.cores {
		core := c
		core.SetCallback(func(req *cachesim.Request) { p.receive(req, core) })
	}

	return p, nil
}

// receive routes a completed request through the cache callback chain (if
// any) and then to every core's window, mirroring Processor::receive: with
// a shared LLC its one callback recurses into every core's private caches
// already; without one, each core's own last-level cache is kicked off
// individually. Every core's window is then given a chance to clear a
// waiting sector, since a write-back or fill can in principle satisfy
// more than one core's wait entry at the same address.
func (p *Processor) receive(req *cachesim.Request, origin *Core) {
	if p.llc != nil {
		p.llc.Callback(req)
	} else {
		for _, term := range p.terminals {
			if term != nil {
				term.Callback(req)
			}
		}
	}
	for _, c := range p.cores {
		c.Receive(req)
	}
}

// Tick advances the whole processor by one cycle: the shared CacheSystem
// first (draining DRAM and hit-list completions), then every core.
func (p *Processor) Tick() {
	p.sys.Tick()
	for _, c := range p.cores {
		c.Tick()
	}
}

// Finished reports simulation completion per the early_exit policy: with
// early_exit, true as soon as any one core finishes (total IPC is then the
// sum of every core's IPC at that instant); without it, true only once
// every core has finished.
func (p *Processor) Finished() bool {
	if p.earlyExit {
		for _, c := range p.cores {
			if c.Finished() {
				p.ipc = 0
				for _, c2 := range p.cores {
					p.ipc += c2.IPC()
				}
				return true
			}
		}
		return false
	}
	for i, c := range p.cores {
		if !c.Finished() {
			return false
		}
		if p.ipcs[i] == 0 {
			p.ipcs[i] = c.IPC()
			p.ipc += p.ipcs[i]
		}
	}
	return true
}

// HasReachedLimit reports whether every core has issued its configured
// ExpectedLimitInsts; a core with a zero limit never reaches it, so any
// such core keeps this false.
func (p *Processor) HasReachedLimit() bool {
	for _, c := range p.cores {
		if !c.HasReachedLimit() {
			return false
		}
	}
	return true
}

// Insts returns the total instructions issued across every core.
func (p *Processor) Insts() int64 {
	var total int64
	for _, c := range p.cores {
		total += c.Insts()
	}
	return total
}

// IPC returns the aggregate IPC computed the last time Finished() returned
// true.
func (p *Processor) IPC() float64 { return p.ipc }

// Cores exposes the per-core drivers for diagnostics (e.g. a SIGUSR1 dump).
func (p *Processor) Cores() []*Core { return p.cores }
