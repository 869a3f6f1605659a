// Package dram implements the core's one external collaborator that this
// module ships a real (if deliberately non-timing-accurate) implementation
// of: a fixed-latency DRAM interface behind interfaces.DRAMInterface, plus
// the backing byte store its reads and writes round-trip through.
//
// DRAM timing correctness (row conflicts, tFAW budgets) stays explicitly
// out of scope (spec.md §1 Non-goals); Controller only ever adds a fixed,
// policy-selected latency and tracks queue occupancy.
package dram

import "sync"

// ShardCount is the number of independent locks Store spreads its blocks
// across, the same sharded-locking technique the reference's backend/mem.go
// Memory type uses to let concurrent queues touch disjoint regions without
// contending on one mutex. A cooperative single-goroutine simulator never
// actually contends, but the technique is kept because the shape —
// resolve-shard-then-lock — is also the cleanest way to key a sparse,
// block-addressed store instead of a flat array sized to the largest
// address ever seen.
const ShardCount = 64

// Store is the flat byte-addressable memory image backing every cache
// level's fills and write-backs. Blocks are allocated lazily and keyed by
// block-aligned address, since trace addresses are sparse virtual
// addresses rather than a dense offset into a small device.
type Store struct {
	blockSize int
	shards    [ShardCount]storeShard
}

type storeShard struct {
	mu     sync.RWMutex
	blocks map[int64][]byte
}

// NewStore allocates an empty store for blocks of blockSize bytes.
func NewStore(blockSize int) *Store {
	s := &Store{blockSize: blockSize}
	for i := range s.shards {
		s.shards[i].blocks = make(map[int64][]byte)
	}
	return s
}

func (s *Store) shardFor(blockAddr int64) *storeShard {
	idx := uint64(blockAddr) % uint64(len(s.shards))
	return &s.shards[idx]
}

// blockLocked returns the shard's backing slice for blockAddr, allocating
// a zero-filled block on first touch. Caller must hold the shard's lock.
func (sh *storeShard) blockLocked(blockAddr int64, blockSize int) []byte {
	b, ok := sh.blocks[blockAddr]
	if !ok {
		b = make([]byte, blockSize)
		sh.blocks[blockAddr] = b
	}
	return b
}

// ReadSectors returns a copy of the bytes covered by mask within the block
// at blockAddr, with sectors outside mask left zeroed. sectorSize must
// divide blockSize evenly; sector i occupies
// [i*sectorSize, (i+1)*sectorSize).
func (s *Store) ReadSectors(blockAddr int64, sectorSize int, mask uint64) []byte {
	out := make([]byte, s.blockSize)
	if mask == 0 || sectorSize <= 0 {
		return out
	}
	sh := s.shardFor(blockAddr)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	block, ok := sh.blocks[blockAddr]
	if !ok {
		return out
	}
	numSectors := s.blockSize / sectorSize
	for i := 0; i < numSectors; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		start := i * sectorSize
		copy(out[start:start+sectorSize], block[start:start+sectorSize])
	}
	return out
}

// WriteSectors writes data into the sectors named by mask within the block
// at blockAddr, leaving every other sector untouched. data must be at
// least s.blockSize bytes; only the masked regions are consulted.
func (s *Store) WriteSectors(blockAddr int64, sectorSize int, mask uint64, data []byte) {
	if mask == 0 || sectorSize <= 0 {
		return
	}
	sh := s.shardFor(blockAddr)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	block := sh.blockLocked(blockAddr, s.blockSize)
	numSectors := s.blockSize / sectorSize
	for i := 0; i < numSectors; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		start := i * sectorSize
		end := start + sectorSize
		if end > len(data) {
			break
		}
		copy(block[start:end], data[start:end])
	}
}
