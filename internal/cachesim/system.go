package cachesim

import "github.com/sectorsim/sectorsim/internal/interfaces"

// CacheSystem owns the simulated clock and the two queues every cache
// level in a hierarchy shares: wait_list holds requests handed off to
// DRAM, hit_list holds requests whose completion is already scheduled
// (a hit, or a sector access fully covered by an in-flight MSHR) and just
// needs its configured latency to elapse.
type CacheSystem struct {
	Clk int64

	dram interfaces.DRAMInterface

	waitList []*Request
	hitList  []hitEntry
}

type hitEntry struct {
	fireAt int64
	req    *Request
}

// ticker is satisfied by any DRAMInterface that also keeps its own
// internal clock (internal/dram.Controller does); CacheSystem advances it
// every cycle so queued fills actually complete. A DRAMInterface that has
// no notion of simulated time (e.g. a test double releasing completions
// manually) simply doesn't implement it, and Tick skips the call.
type ticker interface {
	Tick()
}

// NewCacheSystem builds a CacheSystem dispatching completed misses to dram.
func NewCacheSystem(dram interfaces.DRAMInterface) *CacheSystem {
	return &CacheSystem{dram: dram}
}

func (cs *CacheSystem) enqueueHit(req *Request, latency int64) {
	cs.hitList = append(cs.hitList, hitEntry{fireAt: cs.Clk + latency, req: req})
}

func (cs *CacheSystem) enqueueWait(req *Request) {
	cs.waitList = append(cs.waitList, req)
}

// Tick advances the clock by one cycle, retries anything on wait_list
// against the DRAM interface (leaving it queued on backpressure), and
// fires every hit_list entry whose latency has elapsed. Firing a hit
// invokes the request's own completion callback directly — the same path
// DRAM uses on a fill — so cache-hierarchy fill propagation and window
// notification live in one place regardless of whether a request
// completed as a pure hit or a DRAM round trip.
func (cs *CacheSystem) Tick() {
	cs.Clk++

	if t, ok := cs.dram.(ticker); ok {
		t.Tick()
	}

	if len(cs.waitList) > 0 {
		kept := cs.waitList[:0]
		for _, req := range cs.waitList {
			if !cs.dram.SendMemory(req) {
				kept = append(kept, req)
			}
		}
		cs.waitList = kept
	}

	if len(cs.hitList) == 0 {
		return
	}
	var remaining []hitEntry
	for _, e := range cs.hitList {
		if e.fireAt <= cs.Clk {
			e.req.Callback()
		} else {
			remaining = append(remaining, e)
		}
	}
	cs.hitList = remaining
}

// WaitListLen and HitListLen expose queue depths for diagnostics and
// tests; neither is read by the simulation core itself.
func (cs *CacheSystem) WaitListLen() int { return len(cs.waitList) }
func (cs *CacheSystem) HitListLen() int  { return len(cs.hitList) }
