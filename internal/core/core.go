// Package core drives one in-order instruction stream against a private
// L1 (and, when core-private caching is enabled, L2) cache chain, feeding
// a fixed-depth retirement window exactly the way ramulator's Core/Window
// pair does: bubbles enter ready, reads block retirement until their
// sectors come back, writes never occupy a window slot at all.
package core

import (
	"github.com/sectorsim/sectorsim/internal/cachesim"
	"github.com/sectorsim/sectorsim/internal/interfaces"
	"github.com/sectorsim/sectorsim/internal/reqpool"
	"github.com/sectorsim/sectorsim/internal/trace"
	"github.com/sectorsim/sectorsim/internal/window"
)

// Config configures one Core's window geometry and termination policy.
type Config struct {
	WindowDepth int
	WindowIPC   int
	// ExpectedLimitInsts bounds replay length for weighted-speedup style
	// multi-trace runs; 0 means "run forever" (the caller must stop the
	// simulation by some other means, e.g. a wall-clock cycle cap).
	ExpectedLimitInsts int64
}

// Core is one instruction stream. Send is the entry point into this core's
// cache hierarchy: either its private first-level cache's Send, or a
// shared LLC's Send directly when core-private caching is disabled.
type Core struct {
	id     int
	cfg    Config
	trace  *trace.Trace
	window *window.Window
	pool   *reqpool.Pool

	// firstLevelCache is ticked once per cycle if this core owns a private
	// hierarchy; nil when requests go straight to a shared cache.
	firstLevelCache *cachesim.Cache
	send            func(*cachesim.Request) bool
	callback        func(*cachesim.Request)

	observer interfaces.StatsSink

	clk         int64
	retired     int64
	cpuInst     int64
	reachedLimit bool
	recordCycles int64
	recordInsts  int64

	// issueClk is a FIFO of issue clocks paralleling window's own FIFO
	// ordering, letting retirement latency be recovered without widening
	// Window's exported surface.
	issueClk []int64

	// current entry awaiting issue; fetched ahead of need so that a
	// backpressured send can be retried next tick without losing state.
	curEntry      trace.Entry
	bubblesLeft   int64
	lastFetchErr  error
}

// NewCore builds a Core around trc, replaying it into send (which may be a
// private L1's Send or a shared LLC's Send). firstLevelCache, if non-nil,
// is ticked once per cycle before this core issues anything, mirroring
// Core::tick()'s "first_level_cache->tick()" call preceding window
// processing.
func NewCore(id int, cfg Config, trc *trace.Trace, firstLevelCache *cachesim.Cache, send func(*cachesim.Request) bool, pool *reqpool.Pool, obs interfaces.StatsSink) *Core {
	if cfg.WindowDepth <= 0 {
		cfg.WindowDepth = 128
	}
	if cfg.WindowIPC <= 0 {
		cfg.WindowIPC = 4
	}
	c := &Core{
		id:              id,
		cfg:             cfg,
		trace:           trc,
		window:          window.New(cfg.WindowDepth, cfg.WindowIPC),
		pool:            pool,
		firstLevelCache: firstLevelCache,
		send:            send,
		observer:        obs,
	}
	c.fetchNext()
	return c
}

// SetCallback wires the completion handler a Request should carry once
// issued; Processor sets this to its own receive method after every core
// exists, breaking the construction-order cycle between Processor and Core.
func (c *Core) SetCallback(cb func(*cachesim.Request)) { c.callback = cb }

// ID returns this core's index within the Processor.
func (c *Core) ID() int { return c.id }

// Receive notifies this core that req has completed (hit or fill),
// clearing whatever sectors of its window entry at req.Addr it was still
// waiting on.
func (c *Core) Receive(req *cachesim.Request) {
	c.window.SetReady(req.Addr, ^int64(0), uint64(req.SectorBits[0]))
}

func (c *Core) fetchNext() {
	e, err := c.trace.NextEntry()
	if err != nil {
		c.lastFetchErr = err
		return
	}
	c.curEntry = e
	c.bubblesLeft = e.BubbleCnt
}

// Finished reports whether this core is done contributing work: either it
// has issued its configured ExpectedLimitInsts and drained every
// in-flight access out of its window, or (when no limit is configured)
// its trace has genuinely run dry. A rewinding trace never signals EOF on
// its own (see Trace), so a finite replay's only real termination signal
// is ExpectedLimitInsts; without one configured, Finished can only ever
// become true via a malformed-line fetch error.
func (c *Core) Finished() bool {
	if c.cfg.ExpectedLimitInsts != 0 {
		return c.reachedLimit && c.window.IsEmpty()
	}
	return c.lastFetchErr != nil && c.window.IsEmpty()
}

// HasReachedLimit reports whether this core has issued ExpectedLimitInsts
// instructions (and is therefore done contributing new work, though
// already-issued requests may still be draining).
func (c *Core) HasReachedLimit() bool { return c.reachedLimit }

// Insts returns the number of instructions issued so far (bubbles plus
// memory accesses), matching Core::get_insts.
func (c *Core) Insts() int64 { return c.cpuInst }

// IPC returns retired instructions per cycle over the core's lifetime.
func (c *Core) IPC() float64 {
	if c.clk == 0 {
		return 0
	}
	return float64(c.retired) / float64(c.clk)
}

func (c *Core) checkLimit() {
	if c.cfg.ExpectedLimitInsts != 0 && c.cpuInst >= c.cfg.ExpectedLimitInsts && !c.reachedLimit {
		c.recordCycles = c.clk
		c.recordInsts = c.cpuInst
		c.reachedLimit = true
	}
}

// Tick advances this core by one cycle: ticks its private first-level
// cache (if any), retires whatever the window has made ready, then issues
// bubbles and at most one memory access, stopping the instant the window
// or its per-cycle IPC budget is exhausted. A failed send (backpressure)
// leaves the pending entry in place for the next Tick to retry.
func (c *Core) Tick() {
	c.clk++

	if c.firstLevelCache != nil {
		c.firstLevelCache.Tick()
	}

	retiredNow := c.window.Retire()
	for i := 0; i < retiredNow && len(c.issueClk) > 0; i++ {
		latency := c.clk - c.issueClk[0]
		c.issueClk = c.issueClk[1:]
		c.retired++
		if c.observer != nil {
			c.observer.ObserveRetirement(uint64(latency))
		}
	}

	if c.reachedLimit {
		return
	}

	inserted := 0
	for c.bubblesLeft > 0 {
		if inserted == c.window.IPC || c.window.IsFull() {
			return
		}
		c.window.Insert(true, -1, 0)
		c.issueClk = append(c.issueClk, c.clk)
		inserted++
		c.bubblesLeft--
		c.cpuInst++
		c.checkLimit()
		if c.reachedLimit {
			return
		}
	}

	if c.lastFetchErr != nil {
		return
	}

	entry := c.curEntry
	req := c.pool.Get(entry.Addr, entry.Type, c.callback)
	req.SectorBits[0] = entry.SectorBits
	req.Size = entry.Size
	req.InstAddr = entry.InstAddr
	req.ActualAccess = entry.ActualAccess
	req.CoreID = c.id

	if entry.Type == cachesim.Write {
		if !c.send(req) {
			c.pool.Put(req)
			return
		}
		c.cpuInst++
	} else {
		if inserted == c.window.IPC || c.window.IsFull() {
			c.pool.Put(req)
			return
		}
		if !c.send(req) {
			c.pool.Put(req)
			return
		}
		c.window.Insert(false, entry.Addr, uint64(entry.SectorBits))
		c.issueClk = append(c.issueClk, c.clk)
		c.cpuInst++
	}

	c.checkLimit()
	c.fetchNext()
}
