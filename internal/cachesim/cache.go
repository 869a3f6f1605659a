package cachesim

import (
	"fmt"

	"github.com/sectorsim/sectorsim/internal/interfaces"
	"github.com/sectorsim/sectorsim/internal/predictor"
	"github.com/sectorsim/sectorsim/internal/simerrutil"
)

// Level identifies a cache's position in the hierarchy, L1 being closest
// to the core.
type Level int

const (
	L1 Level = iota
	L2
	L3
)

func (l Level) String() string {
	switch l {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	default:
		return "L?"
	}
}

// Config describes one cache level's geometry and behavior. Size, Assoc and
// BlockSize must each be a power of two; NewCache does not check this, and
// the geometry is not read or validated by internal/config.
type Config struct {
	Level     Level
	Size      int
	Assoc     int
	BlockSize int
	MSHRs     int
	// Latency is the number of cycles a hit (or an MSHR-covered access) at
	// this level takes to land on CacheSystem's hit_list.
	Latency int64
	// SectorSize is the byte granularity of the sector bitmaps; 0 disables
	// sectoring at this level (every access demands the whole block).
	SectorSize int
	// PartialActivationDRAM forces writes to demand every sector of the
	// block rather than just the bytes touched, modeling a DRAM that
	// cannot activate a sub-block region.
	PartialActivationDRAM bool
	IsFirstLevel          bool
	IsLastLevel           bool
}

func (c *Config) numSectors() int {
	if c.SectorSize <= 0 {
		return 1
	}
	n := c.BlockSize / c.SectorSize
	if n <= 0 || n > 64 {
		return 64
	}
	return n
}

func (c *Config) fullSectorMask() SectorMask {
	n := c.numSectors()
	if n >= 64 {
		return ^SectorMask(0)
	}
	return SectorMask(1)<<uint(n) - 1
}

// Cache is one level of the hierarchy: a set-associative array of
// CacheSets plus a table of outstanding fills (MSHRs). higher holds the
// caches that sit closer to the core (consumers of this cache's fills);
// lower is the next cache toward DRAM, nil at the last level.
type Cache struct {
	cfg       Config
	numLevels int
	sys       *CacheSystem
	higher    []*Cache
	lower     *Cache
	sets      []*CacheSet
	numSets   int
	indexBits uint
	blockBits uint
	tagBits   uint

	mshrs     *mshrTable
	retryList []*Request

	predictor *predictor.SpatialPredictor // non-nil only at the first level
	observer  interfaces.Observer
}

// NewCache allocates one cache level. numLevels is the total number of
// cache levels in the hierarchy (used to size Request.SectorBits
// consistently across the chain). obs must not be nil: Cache calls it
// unconditionally and does not substitute a no-op default.
func NewCache(cfg Config, numLevels int, obs interfaces.Observer) *Cache {
	numSets := cfg.Size / (cfg.BlockSize * cfg.Assoc)
	if numSets < 1 {
		numSets = 1
	}
	c := &Cache{
		cfg:       cfg,
		numLevels: numLevels,
		sets:      make([]*CacheSet, numSets),
		numSets:   numSets,
		indexBits: uint(log2(numSets)),
		blockBits: uint(log2(cfg.BlockSize)),
		mshrs:     newMSHRTable(cfg.MSHRs),
		observer:  obs,
	}
	c.tagBits = c.blockBits + c.indexBits
	for i := range c.sets {
		c.sets[i] = NewCacheSet(cfg.Assoc)
	}
	return c
}

// AttachPredictor wires a core's spatial predictor into this (first)
// level; it is a no-op at any level other than IsFirstLevel.
func (c *Cache) AttachPredictor(p *predictor.SpatialPredictor) {
	if c.cfg.IsFirstLevel {
		c.predictor = p
	}
}

// SetSystem binds the CacheSystem that owns this hierarchy's clock and
// wait/hit lists. Every cache level in a hierarchy shares the same system.
func (c *Cache) SetSystem(sys *CacheSystem) { c.sys = sys }

// Link wires c between a lower (DRAM-ward) cache and its higher (core-ward)
// consumers. lower is nil at the last level.
func (c *Cache) Link(lower *Cache, higher ...*Cache) {
	c.lower = lower
	c.higher = higher
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

func (c *Cache) setIndex(addr int64) int {
	return int((addr >> c.blockBits) & int64(c.numSets-1))
}

func (c *Cache) tagOf(addr int64) int64 {
	return addr >> c.tagBits
}

// blockNum identifies a block uniquely across the whole cache (tag and set
// index folded together), which is what MSHRs are keyed on.
func (c *Cache) blockNum(addr int64) int64 {
	return addr >> c.blockBits
}

func (c *Cache) addrFromTagAndSet(tag int64, setIdx int) int64 {
	return (tag << c.tagBits) | (int64(setIdx) << c.blockBits)
}

func (c *Cache) dumpDiagnostics(addr int64) string {
	idx := c.setIndex(addr)
	tag := c.tagOf(addr)
	return fmt.Sprintf("level=%s addr=%#x set=%d tag=%#x mshrs=%d/%d",
		c.cfg.Level, addr, idx, tag, c.mshrs.len(), c.mshrs.limit)
}

// levelSectorBits computes the demand sector bitmap this level should use
// for req: 0 if sectoring is disabled at this level, otherwise whatever
// the level above demanded of it, widened to every sector for a
// partial-activation write.
func (c *Cache) levelSectorBits(req *Request) SectorMask {
	if c.cfg.SectorSize == 0 {
		return 0
	}
	bits := req.SectorBits[int(c.cfg.Level)]
	if c.cfg.PartialActivationDRAM && req.Type == Write {
		bits = c.cfg.fullSectorMask()
	}
	return bits
}

// Send attempts to service req at this level, recursing toward DRAM on a
// miss. It returns false only on backpressure (a full MSHR table, or a
// busy/unevictable victim; the victim is whichever way FindVictim picks, so
// a busy pick backpressures even when another way of the set is empty) —
// the caller must retry req on a later tick.
func (c *Cache) Send(req *Request) bool {
	levelBits := c.levelSectorBits(req)
	idx := c.setIndex(req.Addr)
	set := c.sets[idx]
	tag := c.tagOf(req.Addr)
	blockNum := c.blockNum(req.Addr)

	way := set.WayOf(tag)
	if way >= 0 && set.IsValidWay(way) {
		if set.AreSectorsValidWay(way, levelBits) {
			return c.hit(req, set, way, levelBits)
		}
		if req.Type == Write {
			set.InsertSectorsWay(way, req.ActualAccess)
			set.AccessWay(way, req.ActualAccess, true)
			req.CacheHit = true
			req.HitLevel = int(c.cfg.Level)
			c.observer.ObserveHit(int(c.cfg.Level), true)
			return true
		}
		return c.readSectorMissOnValidBlock(req, set, way, blockNum, levelBits)
	}

	return c.missNoValidBlock(req, set, way, tag, idx, blockNum, levelBits)
}

func (c *Cache) hit(req *Request, set *CacheSet, way int, levelBits SectorMask) bool {
	level := int(c.cfg.Level)
	if req.Type == Prefetch {
		c.observer.ObserveHit(level, false)
		return true
	}
	set.AccessWay(way, req.ActualAccess&levelBits, req.Type == Write)
	req.CacheHit = true
	req.HitLevel = level
	c.sys.enqueueHit(req, c.cfg.Latency)
	c.observer.ObserveHit(level, req.Type == Write)
	return true
}

// readSectorMissOnValidBlock handles a READ that finds the block resident
// but missing the demanded sectors: §4.2 step 4, MSHR coverage.
func (c *Cache) readSectorMissOnValidBlock(req *Request, set *CacheSet, way int, blockNum int64, levelBits SectorMask) bool {
	level := int(c.cfg.Level)
	remaining, anyMatch, singleCovers := c.mshrs.scanCoverage(blockNum, levelBits)

	if singleCovers || (anyMatch && remaining == 0) {
		set.InsertSectorsWay(way, req.ActualAccess)
		set.AccessWay(way, req.ActualAccess, false)
		req.CacheHit = true
		req.HitLevel = level
		c.sys.enqueueHit(req, c.cfg.Latency)
		c.observer.ObserveMSHRHit(level)
		return true
	}

	if anyMatch {
		filtered := set.FindMissingSectorsWay(way, remaining)
		if filtered == 0 {
			set.InsertSectorsWay(way, req.ActualAccess)
			set.AccessWay(way, req.ActualAccess, false)
			req.CacheHit = true
			req.HitLevel = level
			c.sys.enqueueHit(req, c.cfg.Latency)
			c.observer.ObserveMSHRHit(level)
			return true
		}
		if c.mshrs.full() {
			c.observer.ObserveBackpressure(level)
			return false
		}
		return c.allocateMSHRAndForward(req, set, way, blockNum, filtered, false)
	}

	if c.mshrs.full() {
		c.observer.ObserveBackpressure(level)
		return false
	}
	return c.allocateMSHRAndForward(req, set, way, blockNum, remaining, false)
}

// missNoValidBlock handles every access where the block is not currently
// valid here: either its tag is absent, or present but still busy from an
// earlier fill (§4.2, the "!is_valid" branch).
func (c *Cache) missNoValidBlock(req *Request, set *CacheSet, way int, tag int64, setIdx int, blockNum int64, levelBits SectorMask) bool {
	level := int(c.cfg.Level)
	remaining, anyMatch, singleCovers := c.mshrs.scanCoverage(blockNum, levelBits)

	if anyMatch {
		c.mshrs.mergeIntoExisting(blockNum, req.ActualAccess, req.Type == Write)
	}

	if singleCovers || (anyMatch && remaining == 0) {
		c.observer.ObserveMSHRHit(level)
		if req.Type == Write {
			return true
		}
		req.CacheHit = true
		req.HitLevel = level
		c.sys.enqueueHit(req, c.cfg.Latency)
		return true
	}

	if anyMatch {
		if req.Type == Write {
			return true
		}
		if c.mshrs.full() {
			c.observer.ObserveBackpressure(level)
			return false
		}
		return c.allocateMSHRAndForward(req, set, way, blockNum, remaining, false)
	}

	if way < 0 {
		victim := set.FindVictim()
		if !set.IsValidWay(victim) && !set.IsBusyWay(victim) {
			if c.mshrs.full() {
				c.observer.ObserveBackpressure(level)
				return false
			}
			set.InsertWay(victim, tag, req.InstAddr, 0)
			way = victim
		} else {
			victimTag := set.Tags()[victim]
			victimAddr := c.addrFromTagAndSet(victimTag, setIdx)
			if set.IsBusyWay(victim) || !c.evictable(victimAddr) {
				c.observer.ObserveBackpressure(level)
				return false
			}
			if c.mshrs.full() {
				c.observer.ObserveBackpressure(level)
				return false
			}
			c.evict(victimAddr)
			set.InsertWay(victim, tag, req.InstAddr, 0)
			way = victim
		}
	} else {
		if req.Type == Prefetch {
			return false
		}
		simerrutil.InvariantViolation("Cache.Send", level, c.dumpDiagnostics(req.Addr))
	}

	if c.mshrs.full() {
		c.observer.ObserveBackpressure(level)
		return false
	}
	return c.allocateMSHRAndForward(req, set, way, blockNum, remaining, true)
}

// allocateMSHRAndForward creates a new MSHR covering missing and forwards
// req toward DRAM (or onto CacheSystem's wait_list at the last level). The
// caller must have already verified the MSHR table has room. freshBlock
// indicates way was just installed by InsertWay (as opposed to an already
// resident, valid-but-partial block), which only affects nothing here but
// documents the two call sites.
func (c *Cache) allocateMSHRAndForward(req *Request, set *CacheSet, way int, blockNum int64, missing SectorMask, freshBlock bool) bool {
	level := int(c.cfg.Level)
	_ = freshBlock

	if c.cfg.IsFirstLevel && c.predictor != nil {
		predicted := SectorMask(c.predictor.Predict(req.InstAddr, req.Addr))
		missing |= predicted
		req.SectorBits[0] |= predicted
	}

	dirty := req.Type == Write
	var willDirty SectorMask
	if dirty {
		willDirty = missing & req.ActualAccess
	}
	c.mshrs.allocate(mshrEntry{
		tag:                blockNum,
		sectorBits:         missing,
		dirty:              dirty,
		willBeDirtySectors: willDirty,
	})
	set.MakeBusyWay(way)
	req.SectorBits[level+1] = missing
	if req.Type != Prefetch {
		req.Type = Read
	}
	c.forwardOrWait(req)
	c.observer.ObserveMiss(level)
	return true
}

func (c *Cache) forwardOrWait(req *Request) {
	if c.cfg.IsLastLevel {
		c.sys.enqueueWait(req)
		return
	}
	if !c.lower.Send(req) {
		c.retryList = append(c.retryList, req)
	}
}

// getUsedSectors recursively unions the used-sector bitmap for addr across
// every higher cache and this level.
func (c *Cache) getUsedSectors(addr int64) SectorMask {
	var u SectorMask
	for _, hc := range c.higher {
		u |= hc.getUsedSectors(addr)
	}
	set := c.sets[c.setIndex(addr)]
	if way := set.WayOf(c.tagOf(addr)); way >= 0 {
		u |= set.GetUsedSectorsWay(way)
	}
	return u
}

func (c *Cache) getDirtySectors(addr int64) SectorMask {
	var d SectorMask
	for _, hc := range c.higher {
		d |= hc.getDirtySectors(addr)
	}
	set := c.sets[c.setIndex(addr)]
	if way := set.WayOf(c.tagOf(addr)); way >= 0 {
		d |= set.GetDirtySectorsWay(way)
	}
	return d
}

// evictable reports whether addr can be evicted right now at this level
// and every level above holding it (none of them may be busy).
func (c *Cache) evictable(addr int64) bool {
	ok := true
	for _, hc := range c.higher {
		ok = hc.evictable(addr) && ok
	}
	set := c.sets[c.setIndex(addr)]
	if way := set.WayOf(c.tagOf(addr)); way >= 0 {
		ok = set.CanEvictWay(way) && ok
	}
	return ok
}

// evictBlock recurses into every higher cache first, invalidating addr
// there before examining this level: by the time this level reads its own
// used-sector bitmap, any higher level holding addr has already folded its
// usage down via Update, so this level's used-sector bitmap already
// reflects the whole subtree's usage; the getUsedSectors union across the
// already-cleared higher levels adds nothing to it.
func (c *Cache) evictBlock(addr int64) bool {
	dirty := false
	for _, hc := range c.higher {
		if hc.evictBlock(addr) {
			dirty = true
		}
	}

	idx := c.setIndex(addr)
	set := c.sets[idx]
	tag := c.tagOf(addr)
	way := set.WayOf(tag)
	if way < 0 || !set.IsValidWay(way) {
		return dirty
	}

	used := c.getUsedSectors(addr)
	if c.cfg.IsFirstLevel && c.predictor != nil {
		c.predictor.Update(set.GetInstAddrWay(way), addr, uint64(used))
	}
	if !set.CanEvictWay(way) {
		simerrutil.InvariantViolation("Cache.evictBlock", int(c.cfg.Level), c.dumpDiagnostics(addr))
	}

	sectorValid := set.GetSectorValidWay(way)
	fetchedUsed := used.PopCount()
	fetchedUnused := (sectorValid &^ used).PopCount()
	c.observer.ObserveFetchAccounting(int(c.cfg.Level), fetchedUsed, fetchedUnused, 0)

	wasDirty := set.IsDirtyWay(way) || dirty
	if !c.cfg.IsLastLevel {
		c.lower.Update(addr, wasDirty, sectorValid, used, set.GetDirtySectorsWay(way))
	}

	return set.EvictWay(way) || dirty
}

// evict replaces the block at addr: it captures the dirty-sector union
// before any level is mutated (evictBlock's own mutation order would lose
// it), invalidates the block everywhere it is held, and issues a
// write-back to DRAM if it leaves the hierarchy dirty.
func (c *Cache) evict(addr int64) {
	dirtySectors := c.getDirtySectors(addr)
	dirty := c.evictBlock(addr)
	c.observer.ObserveEviction(int(c.cfg.Level), dirty)
	if c.cfg.IsLastLevel && dirty {
		wb := NewRequest(addr, Write, c.numLevels, nil)
		wb.SectorBits[c.numLevels] = dirtySectors
		c.sys.enqueueWait(wb)
	}
}

// Update absorbs a higher (or this-level-initiating) cache's observed
// sector validity/usage/dirtiness into this level's own bookkeeping. The
// block must already be resident here, valid or busy (§7, P4): Update
// against an absent block is a corrupted-state invariant violation.
func (c *Cache) Update(addr int64, dirty bool, sectorBits, used, dirtySectors SectorMask) {
	idx := c.setIndex(addr)
	set := c.sets[idx]
	tag := c.tagOf(addr)
	way := set.WayOf(tag)
	if way < 0 || !(set.IsValidWay(way) || set.IsBusyWay(way)) {
		simerrutil.InvariantViolation("Cache.Update", int(c.cfg.Level), c.dumpDiagnostics(addr))
		return
	}
	set.InsertSectorsWay(way, sectorBits)
	set.AccessWay(way, used, false)
	if dirty {
		set.MakeDirtyWay(way)
		set.AccessWay(way, dirtySectors, true)
	}
}

// Callback propagates a completed fill (or a no-op guard pass for a pure
// hit) through the hierarchy. It always recurses into every higher cache
// first: a request that hit at L2 still needs L1's outstanding MSHR (if
// any) serviced before L2 itself considers the transaction done, so the
// deepest-first recursion order matters, not just the final state.
func (c *Cache) Callback(req *Request) {
	level := int(c.cfg.Level)

	if req.Type == Prefetch && level > 0 {
		req.SectorBits[level-1] = req.SectorBits[level]
	}

	for _, hc := range c.higher {
		hc.Callback(req)
	}

	if req.CacheHit && req.HitLevel <= level {
		return
	}

	idx := c.setIndex(req.Addr)
	set := c.sets[idx]
	tag := c.tagOf(req.Addr)
	blockNum := c.blockNum(req.Addr)
	way := set.WayOf(tag)
	arrived := req.SectorBits[level+1]

	completed := c.mshrs.applyArrival(blockNum, arrived)
	if len(completed) == 0 {
		return
	}
	if way < 0 || !set.IsBusyWay(way) {
		simerrutil.InvariantViolation("Cache.Callback", level, c.dumpDiagnostics(req.Addr))
		return
	}

	var willUsed, willDirty SectorMask
	anyDirty := false
	for _, i := range completed {
		e := c.mshrs.entries[i]
		willUsed |= e.willBeUsedSectors
		if e.dirty {
			anyDirty = true
			willDirty |= e.willBeDirtySectors
		}
	}
	for _, i := range completed {
		c.mshrs.removeAt(i)
	}

	if !c.mshrs.anyForTag(blockNum) {
		set.MakeIdleWay(way)
		set.ValidateWay(way)
	}
	set.InsertSectorsWay(way, arrived|willUsed)
	set.AccessWay(way, (req.ActualAccess&arrived)|willUsed, false)
	if anyDirty {
		set.MakeDirtyWay(way)
		set.AccessWay(way, willDirty, true)
	}
}

// Tick drains this level's retry list, attempting to forward any request
// that was backpressured on a previous tick. It recurses into lower only
// when lower itself is not the last level, mirroring the reference: the
// last level never needs its own retry list drained since it never
// appends to one (it always hands straight to CacheSystem's wait_list).
func (c *Cache) Tick() {
	if c.lower != nil && !c.lower.cfg.IsLastLevel {
		c.lower.Tick()
	}
	if len(c.retryList) == 0 {
		c.observer.ObserveMSHROccupancy(int(c.cfg.Level), c.mshrs.len())
		return
	}
	kept := c.retryList[:0]
	for _, req := range c.retryList {
		if !c.lower.Send(req) {
			kept = append(kept, req)
		}
	}
	c.retryList = kept
	c.observer.ObserveMSHROccupancy(int(c.cfg.Level), c.mshrs.len())
}
