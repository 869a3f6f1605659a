package cachesim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorsim/sectorsim/internal/interfaces"
)

// fakeDRAM completes every SendMemory call immediately (on the same Tick
// that dispatches it), unless full is set. A completed request that has an
// OnComplete hook is first routed back through cache's Callback, the way
// Processor.receive fills the hierarchy before notifying the core.
type fakeDRAM struct {
	full      bool
	delivered []interfaces.Request
	cache     *Cache
}

func (d *fakeDRAM) SendMemory(req interfaces.Request) bool {
	if d.full {
		return false
	}
	d.delivered = append(d.delivered, req)
	if r, ok := req.(*Request); ok && d.cache != nil && r.OnComplete != nil {
		d.cache.Callback(r)
	}
	req.Callback()
	return true
}

type noopObserver struct{}

func (noopObserver) ObserveHit(int, bool)                      {}
func (noopObserver) ObserveMiss(int)                           {}
func (noopObserver) ObserveMSHRHit(int)                        {}
func (noopObserver) ObserveEviction(int, bool)                 {}
func (noopObserver) ObserveBackpressure(int)                   {}
func (noopObserver) ObserveFetchAccounting(int, int, int, int) {}
func (noopObserver) ObserveMSHROccupancy(int, int)             {}
func (noopObserver) ObserveRetirement(uint64)                  {}

// singleLevelCache builds a one-level hierarchy (L1 is also last level) for
// focused unit tests; sector tests pass sectorSize>0.
func singleLevelCache(assoc, mshrs, sectorSize int, dram interfaces.DRAMInterface) (*Cache, *CacheSystem) {
	sys := NewCacheSystem(dram)
	c := NewCache(Config{
		Level:        L1,
		Size:         64 * assoc, // one set
		Assoc:        assoc,
		BlockSize:    64,
		MSHRs:        mshrs,
		Latency:      4,
		SectorSize:   sectorSize,
		IsFirstLevel: true,
		IsLastLevel:  true,
	}, 1, noopObserver{})
	c.SetSystem(sys)
	c.Link(nil)
	if fd, ok := dram.(*fakeDRAM); ok {
		fd.cache = c
	}
	return c, sys
}

func TestSendMissThenHit(t *testing.T) {
	dram := &fakeDRAM{}
	c, sys := singleLevelCache(4, 4, 0, dram)

	var retired *Request
	req := NewRequest(0x1000, Read, 1, func(r *Request) { retired = r })
	req.ActualAccess = 1

	require.True(t, c.Send(req))
	assert.Equal(t, 1, sys.WaitListLen(), "a miss queues onto wait_list rather than dispatching synchronously")
	assert.Nil(t, retired)

	sys.Tick()
	assert.Len(t, dram.delivered, 1, "Tick drains wait_list against the DRAM interface")
	require.NotNil(t, retired, "DRAM completion must invoke the request's own callback")
	assert.False(t, retired.CacheHit, "a fill from DRAM is not tagged as a cache hit")

	// second access to the same address now hits, landing on hit_list
	// instead of going back to DRAM.
	var retired2 *Request
	req2 := NewRequest(0x1000, Read, 1, func(r *Request) { retired2 = r })
	require.True(t, c.Send(req2))
	assert.Equal(t, 0, sys.WaitListLen())
	require.Equal(t, 1, sys.HitListLen())

	for i := 0; i < 10; i++ {
		sys.Tick()
	}
	require.NotNil(t, retired2)
	assert.Equal(t, 0, retired2.HitLevel)
	assert.Len(t, dram.delivered, 1, "a hit never reaches DRAM")
}

func TestMSHRTableFullCausesBackpressure(t *testing.T) {
	dram := &fakeDRAM{full: true}
	c, _ := singleLevelCache(4, 1, 0, dram)

	req1 := NewRequest(0x1000, Read, 1, func(*Request) {})
	require.True(t, c.Send(req1))

	req2 := NewRequest(0x2000, Read, 1, func(*Request) {})
	assert.False(t, c.Send(req2), "a second distinct-block miss must backpressure once the MSHR table is full")
}

func TestBackpressuredDRAMLeavesRequestQueued(t *testing.T) {
	dram := &fakeDRAM{full: true}
	c, sys := singleLevelCache(4, 4, 0, dram)

	req := NewRequest(0x1000, Read, 1, func(*Request) {})
	require.True(t, c.Send(req))
	sys.Tick()
	assert.Equal(t, 1, sys.WaitListLen(), "a full DRAM controller must leave the request queued for the next tick")

	dram.full = false
	sys.Tick()
	assert.Equal(t, 0, sys.WaitListLen())
	assert.Len(t, dram.delivered, 1)
}

func TestSectorPartialHitRequiresFetch(t *testing.T) {
	dram := &fakeDRAM{}
	c, sys := singleLevelCache(4, 4, 8, dram) // 8 sectors of 8B each in a 64B block

	var done1 *Request
	req1 := NewRequest(0x1000, Read, 1, func(r *Request) { done1 = r })
	req1.SectorBits[0] = 0x01 // demand sector 0 only
	req1.ActualAccess = 0x01
	require.True(t, c.Send(req1))
	sys.Tick()
	require.NotNil(t, done1)
	assert.False(t, done1.CacheHit, "a fill from DRAM is not tagged as a cache hit")

	// a second request demanding a different sector of the SAME block must
	// miss again (sector 1 was never fetched) rather than hit on sector 0's
	// residency.
	var done2 *Request
	req2 := NewRequest(0x1000, Read, 1, func(r *Request) { done2 = r })
	req2.SectorBits[0] = 0x02
	req2.ActualAccess = 0x02
	require.True(t, c.Send(req2))
	sys.Tick()
	require.NotNil(t, done2)
	assert.Equal(t, 2, len(dram.delivered), "the missing sector must be fetched even though the block is already resident")
}

func TestWriteSectorMissOnValidBlockNeedsNoFetch(t *testing.T) {
	dram := &fakeDRAM{}
	c, sys := singleLevelCache(4, 4, 8, dram)

	var done1 *Request
	req1 := NewRequest(0x1000, Read, 1, func(r *Request) { done1 = r })
	req1.SectorBits[0] = 0x01
	req1.ActualAccess = 0x01
	require.True(t, c.Send(req1))
	sys.Tick()
	require.NotNil(t, done1)

	// a write to a different sector of the same, now-valid, block installs
	// that sector directly without a DRAM round trip.
	wreq := NewRequest(0x1000, Write, 1, func(*Request) {})
	wreq.SectorBits[0] = 0x02
	wreq.ActualAccess = 0x02
	require.True(t, c.Send(wreq))
	sys.Tick()
	assert.Equal(t, 1, len(dram.delivered), "no additional fetch for a write sector miss on a valid block")
	assert.True(t, wreq.CacheHit)
}

func TestEvictionWritesBackDirtyData(t *testing.T) {
	dram := &fakeDRAM{}
	c, sys := singleLevelCache(1, 2, 0, dram) // 1-way: every new tag evicts the resident block

	wreq := NewRequest(0x1000, Write, 1, func(*Request) {})
	wreq.ActualAccess = 1
	require.True(t, c.Send(wreq))
	sys.Tick()
	require.Equal(t, 1, len(dram.delivered))

	// block 0x1000 is now resident and dirty (the write fill marked it so
	// via Callback's willBeDirtySectors pledge). A miss to a colliding
	// block must evict it and write it back before installing the new one.
	req2 := NewRequest(0x2000, Read, 1, func(*Request) {})
	req2.ActualAccess = 1
	require.True(t, c.Send(req2))
	sys.Tick()
	assert.Equal(t, 3, len(dram.delivered), "fetch for block 2 plus a write-back for the evicted dirty block 1")
}

func TestPrefetchHitOnFullyValidBlockIsCheap(t *testing.T) {
	dram := &fakeDRAM{}
	c, sys := singleLevelCache(4, 4, 0, dram)

	req := NewRequest(0x1000, Read, 1, func(*Request) {})
	req.ActualAccess = 1
	require.True(t, c.Send(req))
	sys.Tick()

	pf := NewRequest(0x1000, Prefetch, 1, func(*Request) {})
	assert.True(t, c.Send(pf), "a prefetch hit on an already-valid block just bumps a counter")
	assert.Equal(t, 0, sys.HitListLen(), "prefetch hits never occupy hit_list; nothing retires on them")
}
