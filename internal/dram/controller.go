package dram

import (
	"container/heap"

	"github.com/sectorsim/sectorsim/internal/cachesim"
	"github.com/sectorsim/sectorsim/internal/interfaces"
)

// Observer is the narrow slice of accounting the DRAM interface needs,
// satisfied structurally (no import of the root package, avoiding a
// cycle) by sectorsim.MetricsObserver.
type Observer interface {
	ObserveDRAMDispatch(isWrite bool)
	ObserveDRAMQueueDepth(depth int)
}

var _ interfaces.DRAMInterface = (*Controller)(nil)

type noopObserver struct{}

func (noopObserver) ObserveDRAMDispatch(bool)  {}
func (noopObserver) ObserveDRAMQueueDepth(int) {}

// Config selects the stub controller's geometry and which of the config
// surface's DRAM "flavors" (§6) is active. Exactly one of Sectored,
// FineGrained, BurstChop, Half should normally be set; PartialActivation
// is orthogonal (it only changes what Cache derives as the demand mask,
// already applied before Send reaches here) and DGMS reuses Sectored
// accounting with no predictor upstream.
type Config struct {
	BlockSize  int
	SectorSize int
	// NumLevels is the cache hierarchy depth, so SectorBits[NumLevels] is
	// the mask the last cache level asked of DRAM.
	NumLevels int
	// QueueDepth bounds outstanding requests; SendMemory backpressures
	// (returns false) once it is reached.
	QueueDepth int

	ReadLatency  int64
	WriteLatency int64

	// Sectored models a partially-activatable row: latency scales down
	// with the fraction of the block's sectors actually demanded.
	Sectored bool
	// Half halves latency outright when the demand mask covers at most
	// half of the block's sectors, a cruder variant than Sectored.
	Half bool
	// FineGrained and BurstChop both add a per-demanded-sector burst cost
	// on top of the base latency rather than scaling it down; FineGrained
	// charges BurstCycles per demanded sector and BurstChop charges
	// BurstCycles/2+1, modeling a shorter burst-chop transfer granularity.
	FineGrained bool
	BurstChop   bool
	BurstCycles int64
}

// pendingEntry is one outstanding DRAM operation, ordered by readyAt in a
// min-heap so that a write-back queued after an earlier read but with a
// shorter latency still completes in true deadline order (§5, Ordering
// guarantees: per-block FIFO is enforced upstream by MSHRs; across
// unrelated blocks no order is promised, which the heap reflects exactly).
type pendingEntry struct {
	readyAt int64
	seq     int64 // tie-break for entries with equal readyAt, heap-stable
	req     *cachesim.Request
}

type readyQueue []*pendingEntry

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool {
	if q[i].readyAt != q[j].readyAt {
		return q[i].readyAt < q[j].readyAt
	}
	return q[i].seq < q[j].seq
}
func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *readyQueue) Push(x any)   { *q = append(*q, x.(*pendingEntry)) }
func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Controller is the stub DRAM interface (§4.6): it accepts requests tagged
// with a sector bitmask, holds them for a fixed (policy-derived) latency,
// round-trips read/write data through Store, and invokes each request's
// callback once ready. It is not a timing-accurate DRAM model (spec.md
// Non-goals): no row buffer, no bank conflicts, no tFAW.
type Controller struct {
	cfg   Config
	store *Store
	obs   Observer

	clk     int64
	seq     int64
	pending readyQueue
}

// NewController builds a Controller backed by a fresh Store. obs may be
// nil, in which case DRAM dispatch/queue-depth accounting is dropped.
func NewController(cfg Config, obs Observer) *Controller {
	if obs == nil {
		obs = noopObserver{}
	}
	return &Controller{
		cfg:   cfg,
		store: NewStore(cfg.BlockSize),
		obs:   obs,
	}
}

// Store exposes the backing memory image for tests that want to assert on
// round-tripped byte content (Law L1) rather than only sector bitmaps.
func (c *Controller) Store() *Store { return c.store }

func (c *Controller) latencyFor(mask cachesim.SectorMask, isWrite bool) int64 {
	base := c.cfg.ReadLatency
	if isWrite {
		base = c.cfg.WriteLatency
	}
	if c.cfg.SectorSize <= 0 {
		return base
	}
	sectorsPerBlock := c.cfg.BlockSize / c.cfg.SectorSize
	if sectorsPerBlock <= 0 {
		return base
	}
	demanded := mask.PopCount()
	if demanded == 0 {
		demanded = sectorsPerBlock
	}

	switch {
	case c.cfg.FineGrained:
		return base + int64(demanded)*c.cfg.BurstCycles
	case c.cfg.BurstChop:
		return base + int64(demanded)*(c.cfg.BurstCycles/2+1)
	case c.cfg.Half:
		if demanded*2 <= sectorsPerBlock {
			return base / 2
		}
		return base
	case c.cfg.Sectored:
		scaled := base * int64(demanded) / int64(sectorsPerBlock)
		if scaled < 1 {
			scaled = 1
		}
		return scaled
	default:
		return base
	}
}

// SendMemory implements interfaces.DRAMInterface. It returns false once
// QueueDepth outstanding requests are already pending.
func (c *Controller) SendMemory(req interfaces.Request) bool {
	creq, ok := req.(*cachesim.Request)
	if !ok {
		return false
	}
	if c.cfg.QueueDepth > 0 && len(c.pending) >= c.cfg.QueueDepth {
		return false
	}

	mask := creq.SectorBits[c.cfg.NumLevels]
	isWrite := creq.Type == cachesim.Write

	blockMask := mask
	if blockMask == 0 {
		blockMask = fullMask(c.cfg.BlockSize, c.cfg.SectorSize)
	}
	if isWrite {
		c.store.WriteSectors(creq.Addr, c.cfg.SectorSize, uint64(blockMask), writePattern(c.cfg.BlockSize))
	}

	latency := c.latencyFor(mask, isWrite)
	c.seq++
	heap.Push(&c.pending, &pendingEntry{readyAt: c.clk + latency, seq: c.seq, req: creq})
	c.obs.ObserveDRAMDispatch(isWrite)
	c.obs.ObserveDRAMQueueDepth(len(c.pending))
	return true
}

// Tick advances the controller's clock by one cycle and fires every
// request whose latency has elapsed, in true deadline order.
func (c *Controller) Tick() {
	c.clk++
	for len(c.pending) > 0 && c.pending[0].readyAt <= c.clk {
		e := heap.Pop(&c.pending).(*pendingEntry)
		e.req.Callback()
	}
	c.obs.ObserveDRAMQueueDepth(len(c.pending))
}

// QueueDepth reports the number of requests currently outstanding. Nothing
// in this module reads it to adjust sectoring; dynamic_policy does not
// consult it.
func (c *Controller) QueueDepth() int { return len(c.pending) }

func fullMask(blockSize, sectorSize int) cachesim.SectorMask {
	if sectorSize <= 0 {
		return 0
	}
	n := blockSize / sectorSize
	if n <= 0 || n >= 64 {
		return ^cachesim.SectorMask(0)
	}
	return cachesim.SectorMask(1)<<uint(n) - 1
}

// writePattern returns a deterministic, non-zero fill so round-trip tests
// can tell a written sector apart from a never-touched one without the
// controller needing to know what the processor actually stored.
func writePattern(blockSize int) []byte {
	b := make([]byte, blockSize)
	for i := range b {
		b[i] = 0xA5
	}
	return b
}
