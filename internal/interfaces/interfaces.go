// Package interfaces provides internal interface definitions for sectorsim.
// These are separate from the public package to avoid circular imports
// between the root package and the internal simulation packages.
package interfaces

// DRAMInterface is the contract the cache hierarchy's last level uses to
// dispatch requests to the memory controller. It is intentionally minimal:
// DRAM timing correctness (row conflicts, tFAW budgets) is out of scope for
// the core, so any implementation from a fixed-latency stub to a detailed
// timing model can sit behind it.
type DRAMInterface interface {
	// SendMemory attempts to accept req for service. It returns false if the
	// controller's queue is currently full; the caller must retry on a later
	// tick. On eventual completion the implementation must invoke
	// req.Callback().
	SendMemory(req Request) bool
}

// Request is the subset of the cache hierarchy's request shape the DRAM
// interface needs, expressed independently to avoid an import cycle between
// internal/cachesim and internal/dram.
type Request interface {
	Callback()
}

// Logger interface for optional logging, mirrored from the leveled logger
// in internal/logging so callers can accept either without importing it
// directly.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer interface for metrics collection. Implementations must be
// thread-safe since a future parallel driver may call these from more than
// one core's goroutine even though the reference driver is single-threaded.
type Observer interface {
	ObserveHit(level int, isWrite bool)
	ObserveMiss(level int)
	ObserveMSHRHit(level int)
	ObserveEviction(level int, dirty bool)
	ObserveBackpressure(level int)
	ObserveFetchAccounting(level int, fetchedUsed, fetchedUnused, notFetchedUnused int)
	ObserveMSHROccupancy(level int, occupied int)
	ObserveRetirement(latencyCycles uint64)
}

// StatsSink is the narrower contract internal/core needs to report
// per-instruction retirement accounting without depending on the full
// Observer surface.
type StatsSink interface {
	ObserveRetirement(latencyCycles uint64)
}
