package cachesim

// sentinelTag marks a way that has never held a block.
const sentinelTag int64 = -1

// CacheSet is one associative set of a Cache: a fixed number of ways, each
// tracking a block tag plus per-sector valid/used/dirty bitmaps and a
// busy flag for in-flight fills. Mutating operations are addressed by way
// index rather than by tag: the caller (Cache) resolves tag to way once via
// WayOf, which sidesteps the ambiguity of looking up a never-used way by
// its sentinel tag when more than one way in a set is still empty.
type CacheSet struct {
	ways int

	tags        []int64
	valid       []bool
	busy        []bool
	dirty       []bool
	sectorValid []SectorMask
	sectorUsed  []SectorMask
	sectorDirty []SectorMask
	instAddr    []int64

	mru uint64 // one bit per way; see FindVictim
}

// NewCacheSet allocates an empty set with the given associativity.
func NewCacheSet(ways int) *CacheSet {
	s := &CacheSet{
		ways:        ways,
		tags:        make([]int64, ways),
		valid:       make([]bool, ways),
		busy:        make([]bool, ways),
		dirty:       make([]bool, ways),
		sectorValid: make([]SectorMask, ways),
		sectorUsed:  make([]SectorMask, ways),
		sectorDirty: make([]SectorMask, ways),
		instAddr:    make([]int64, ways),
	}
	for i := range s.tags {
		s.tags[i] = sentinelTag
		s.instAddr[i] = sentinelTag
	}
	return s
}

// Tags exposes the raw tag array for diagnostics and for Cache's recursive
// eviction walk, which needs to resolve a tag in a higher/lower cache's own
// set.
func (s *CacheSet) Tags() []int64 { return s.tags }

// WayOf returns the way holding tag, or -1 if absent.
func (s *CacheSet) WayOf(tag int64) int {
	for i, t := range s.tags {
		if t == tag {
			return i
		}
	}
	return -1
}

func (s *CacheSet) IsValidWay(way int) bool { return s.valid[way] }
func (s *CacheSet) IsBusyWay(way int) bool  { return s.busy[way] }
func (s *CacheSet) IsDirtyWay(way int) bool { return s.dirty[way] }

func (s *CacheSet) GetUsedSectorsWay(way int) SectorMask  { return s.sectorUsed[way] }
func (s *CacheSet) GetDirtySectorsWay(way int) SectorMask { return s.sectorDirty[way] }
func (s *CacheSet) GetSectorValidWay(way int) SectorMask  { return s.sectorValid[way] }
func (s *CacheSet) GetInstAddrWay(way int) int64          { return s.instAddr[way] }

// CanEvictWay reports whether the block in way may be evicted: a block
// in flight (busy) can never be evicted out from under its MSHRs.
func (s *CacheSet) CanEvictWay(way int) bool {
	return !s.busy[way]
}

// FindVictim returns the lowest-indexed way whose MRU bit is clear
// (pseudo-MRU replacement); a fully-idle set has every bit clear and
// yields way 0. If every way's MRU bit is set, which the saturation rule in
// touchMRU leaves only in a 1-way set once its way has been touched, way 0
// is returned.
func (s *CacheSet) FindVictim() int {
	full := uint64(1)<<uint(s.ways) - 1
	plru := ^s.mru & full
	if plru == 0 {
		return 0
	}
	for i := 0; i < s.ways; i++ {
		if plru&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 0
}

// touchMRU sets way's MRU bit. If doing so would saturate every way's bit
// (all ways now MRU), the bitmask wraps: every bit is cleared except the
// one just touched, so the next FindVictim call has candidates again.
func (s *CacheSet) touchMRU(way int) {
	full := uint64(1)<<uint(s.ways) - 1
	bit := uint64(1) << uint(way)
	if s.mru|bit == full {
		s.mru = bit
	} else {
		s.mru |= bit
	}
}

// EvictWay clears way entirely and returns whether it was dirty.
func (s *CacheSet) EvictWay(way int) bool {
	wasDirty := s.dirty[way]
	s.tags[way] = sentinelTag
	s.valid[way] = false
	s.busy[way] = false
	s.dirty[way] = false
	s.sectorValid[way] = 0
	s.sectorUsed[way] = 0
	s.sectorDirty[way] = 0
	s.instAddr[way] = sentinelTag
	s.mru &^= uint64(1) << uint(way)
	return wasDirty
}

// AccessWay marks sectors used (and, if isWrite, dirty) in way and touches
// its MRU bit. sectors must already be a subset of sectorValid[way]; the
// caller enforces the sector_used ⊆ sector_valid invariant before calling.
func (s *CacheSet) AccessWay(way int, sectors SectorMask, isWrite bool) {
	s.sectorUsed[way] |= sectors
	if isWrite {
		s.sectorDirty[way] |= sectors
		s.dirty[way] = true
	}
	s.touchMRU(way)
}

// InsertWay installs a fresh identity into way: tag, originating
// instruction address, and an initial sector-valid mask (usually 0, filled
// in later as fetch sectors complete). The way is left invalid here — a
// freshly allocated fill is busy but not yet valid (§4.2 step 5); Cache
// marks it busy immediately after calling this, and only Callback's
// ValidateWay flips it valid once every outstanding MSHR for the block
// clears.
func (s *CacheSet) InsertWay(way int, tag int64, instAddr int64, sectors SectorMask) {
	s.tags[way] = tag
	s.instAddr[way] = instAddr
	s.valid[way] = false
	s.busy[way] = false
	s.dirty[way] = false
	s.sectorValid[way] = sectors
	s.sectorUsed[way] = 0
	s.sectorDirty[way] = 0
}

// InsertSectorsWay ORs additional sectors into sectorValid[way], used both
// as fill sectors complete and when Update absorbs another level's state.
func (s *CacheSet) InsertSectorsWay(way int, sectors SectorMask) {
	s.sectorValid[way] |= sectors
}

// AreSectorsValidWay reports whether every bit in sectors is already set in
// sectorValid[way].
func (s *CacheSet) AreSectorsValidWay(way int, sectors SectorMask) bool {
	return sectors&^s.sectorValid[way] == 0
}

// FindMissingSectorsWay returns the subset of sectors not yet valid in way.
func (s *CacheSet) FindMissingSectorsWay(way int, sectors SectorMask) SectorMask {
	return sectors &^ s.sectorValid[way]
}

func (s *CacheSet) MakeBusyWay(way int)  { s.busy[way] = true }
func (s *CacheSet) MakeIdleWay(way int)  { s.busy[way] = false }
func (s *CacheSet) MakeDirtyWay(way int) { s.dirty[way] = true }
func (s *CacheSet) ValidateWay(way int)  { s.valid[way] = true }
func (s *CacheSet) InvalidateWay(way int) {
	s.valid[way] = false
}
