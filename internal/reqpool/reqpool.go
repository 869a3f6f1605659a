// Package reqpool pools cachesim.Request allocations. The simulator
// allocates one Request per trace entry, plus one per block-straddling
// split and one per dirty eviction write-back, at a rate where allocation
// pressure is measurable in a tight tick loop, the same motivation behind
// the reference's buffer pool.
package reqpool

import (
	"sync"

	"github.com/sectorsim/sectorsim/internal/cachesim"
)

// Pool hands out *cachesim.Request objects sized for a fixed hierarchy
// depth (numLevels). A pool is only valid for one hierarchy depth: mixing
// requests from hierarchies of different depth back into the same pool
// would hand a caller a SectorBits slice of the wrong length.
type Pool struct {
	numLevels int
	pool      sync.Pool
}

// New builds a Pool for a hierarchy of numLevels cache levels.
func New(numLevels int) *Pool {
	p := &Pool{numLevels: numLevels}
	p.pool.New = func() any {
		return cachesim.NewRequest(0, cachesim.Read, numLevels, nil)
	}
	return p
}

// Get returns a Request reset to the given fields, pulled from the pool
// when possible.
func (p *Pool) Get(addr int64, typ cachesim.ReqType, onComplete func(*cachesim.Request)) *cachesim.Request {
	req := p.pool.Get().(*cachesim.Request)
	req.Reset(addr, typ, onComplete)
	return req
}

// Put returns req to the pool. Callers must not touch req afterward.
func (p *Pool) Put(req *cachesim.Request) {
	if len(req.SectorBits) != p.numLevels+1 {
		return // wrong hierarchy depth; let the GC reclaim it instead
	}
	p.pool.Put(req)
}
