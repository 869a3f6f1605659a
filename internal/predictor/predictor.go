// Package predictor implements the spatial (sector) footprint predictor
// consulted by the first-level cache on an outgoing miss: given the
// instruction that issued the access and the address it touched, it
// predicts which sectors of the target block will end up used, so the
// cache can fetch more than the demanded sectors up front.
//
// It deliberately works in plain uint64 sector masks rather than
// cachesim.SectorMask so that internal/cachesim can depend on this package
// without a cycle back.
package predictor

import "math/rand"

// Config configures one SpatialPredictor instance, mirroring the knobs the
// distilled source reads out of its config file.
type Config struct {
	Enabled bool
	// SectorSize is the byte size of one sector; BlockSize/SectorSize gives
	// the number of sectors per block, capped at 64 by the mask width.
	SectorSize int
	BlockSize  int
	// PatternTableSize is the number of indexed entries per way; 0 selects
	// the infinite (hashmap-backed) table instead.
	PatternTableSize int
	Ways             int
	// UtilizationWindow is the number of trailing updates averaged to
	// decide whether an untrained lookup should predict "all sectors"
	// rather than the configured untrained policy.
	UtilizationWindow int
	// UntrainedNoPrediction is the untrained-lookup fallback: true predicts
	// nothing, false predicts every sector.
	UntrainedNoPrediction bool
	// Seed makes replacement-way selection reproducible across runs; two
	// predictors built with the same seed and driven with the same access
	// sequence replace identically.
	Seed int64
}

// SpatialPredictor is a PC+offset indexed, W-way associative pattern table
// (or, in infinite mode, an unbounded map) recording which sectors of a
// block were used the last several times a given instruction touched it.
type SpatialPredictor struct {
	cfg              Config
	logTableSize     int
	logBlockSize     int
	infinite         bool
	patternTable     [][]uint64 // [way][index] -> predicted sector mask
	tagArray         [][]uint64 // [way][index] -> tag owning that slot
	wayMeta          []int      // [index] -> most recently used way
	hashtable        map[uint64]uint64
	rollingWindow    []int
	rollingAvg       float64
	rollingIdx       int
	rng              *rand.Rand
	fullSectorMask   uint64
}

// New builds a SpatialPredictor from cfg. Ways must be at least 1 even when
// PatternTableSize is 0 (infinite mode ignores Ways/UtilizationWindow).
func New(cfg Config) *SpatialPredictor {
	logBlock := log2(cfg.BlockSize)
	sp := &SpatialPredictor{
		cfg:          cfg,
		logBlockSize: logBlock,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
	}

	sectorsPerBlock := cfg.BlockSize / cfg.SectorSize
	if sectorsPerBlock <= 0 || sectorsPerBlock > 64 {
		sectorsPerBlock = 64
	}
	if sectorsPerBlock == 64 {
		sp.fullSectorMask = ^uint64(0)
	} else {
		sp.fullSectorMask = uint64(1)<<uint(sectorsPerBlock) - 1
	}

	if cfg.Enabled && cfg.PatternTableSize == 0 {
		sp.infinite = true
		sp.hashtable = make(map[uint64]uint64)
		return sp
	}

	sp.logTableSize = log2(cfg.PatternTableSize)
	ways := cfg.Ways
	if ways < 1 {
		ways = 1
	}
	sp.patternTable = make([][]uint64, ways)
	sp.tagArray = make([][]uint64, ways)
	for i := 0; i < ways; i++ {
		sp.patternTable[i] = make([]uint64, cfg.PatternTableSize)
		sp.tagArray[i] = make([]uint64, cfg.PatternTableSize)
	}
	sp.wayMeta = make([]int, cfg.PatternTableSize)
	if cfg.UtilizationWindow > 0 {
		sp.rollingWindow = make([]int, cfg.UtilizationWindow)
	}
	return sp
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// index mixes the instruction address (masked to a 4KiB page plus the raw
// address) with a fixed 3-bit alignment component of the load address
// (DGMS indexing), folded into the table's index space.
func (p *SpatialPredictor) index(instAddr, loadAddr int64) uint64 {
	mixed := (uint64(instAddr)>>12 ^ uint64(instAddr)) ^ ((uint64(loadAddr) >> 3) & 0x7)
	return mixed & (uint64(p.cfg.PatternTableSize) - 1)
}

func (p *SpatialPredictor) tag(instAddr, loadAddr int64) uint64 {
	if p.infinite {
		return uint64(instAddr) ^ uint64(loadAddr)
	}
	return ((uint64(instAddr)>>12 ^ uint64(instAddr)) + ((uint64(loadAddr) >> 3) & 0x7)) >> uint(p.logTableSize)
}

// Predict returns the predicted sector mask for an access by instAddr to
// loadAddr. Called only on an outgoing miss at the first level; never
// re-consulted on an MSHR hit so a later merge can't retroactively grow an
// already-shrinking MSHR mask.
func (p *SpatialPredictor) Predict(instAddr, loadAddr int64) uint64 {
	if !p.cfg.Enabled {
		return 0
	}

	if p.infinite {
		key := p.tag(instAddr, loadAddr)
		if v, ok := p.hashtable[key]; ok {
			return v
		}
		if p.cfg.UntrainedNoPrediction {
			return 0
		}
		return p.fullSectorMask
	}

	idx := p.index(instAddr, loadAddr)
	tag := p.tag(instAddr, loadAddr)

	for way := 0; way < len(p.tagArray); way++ {
		if p.tagArray[way][idx] == tag {
			p.wayMeta[idx] = way
			return p.patternTable[way][idx]
		}
	}

	if p.cfg.UtilizationWindow > 0 && p.rollingAvg >= 4 {
		return p.fullSectorMask
	}
	if p.cfg.UntrainedNoPrediction {
		return 0
	}
	return p.fullSectorMask
}

// Update records the sectors actually used by a block just evicted from
// the first level, training the predictor for the instruction (and load
// address) that brought it in.
func (p *SpatialPredictor) Update(instAddr, loadAddr int64, usedSectors uint64) {
	if !p.cfg.Enabled {
		return
	}

	if p.infinite {
		p.hashtable[p.tag(instAddr, loadAddr)] = usedSectors
		return
	}

	idx := p.index(instAddr, loadAddr)
	tag := p.tag(instAddr, loadAddr)

	if p.cfg.UtilizationWindow > 0 {
		p.updateRollingAverage(usedSectors)
	}

	way := 0
	if len(p.tagArray) > 1 {
		way = (p.wayMeta[idx] + p.rng.Intn(len(p.tagArray)-1)) % len(p.tagArray)
	}
	p.tagArray[way][idx] = tag
	p.patternTable[way][idx] = usedSectors
}

func (p *SpatialPredictor) updateRollingAverage(usedSectors uint64) {
	window := float64(p.cfg.UtilizationWindow)
	p.rollingAvg -= float64(p.rollingWindow[p.rollingIdx]) / window
	used := popcount(usedSectors)
	p.rollingAvg += float64(used) / window
	p.rollingWindow[p.rollingIdx] = used
	p.rollingIdx = (p.rollingIdx + 1) % len(p.rollingWindow)

	if p.rollingAvg > 8 {
		p.rollingAvg = 8
	}
	if p.rollingAvg < 0 {
		p.rollingAvg = 0
	}
}

func popcount(v uint64) int {
	count := 0
	for v != 0 {
		v &= v - 1
		count++
	}
	return count
}
